//go:build !gcp

package blobstore

import (
	"context"
	"fmt"
)

func newGCS(ctx context.Context, opts Options) (Backend, error) {
	return nil, fmt.Errorf("gcs storage is not enabled in this build (use -tags gcp)")
}
