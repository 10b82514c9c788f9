//go:build gcp

package blobstore

import "context"

func newGCS(ctx context.Context, opts Options) (Backend, error) {
	return NewGCS(ctx, GCSConfig{Bucket: opts.Bucket, Prefix: opts.Prefix})
}
