package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Type names a storage backend implementation.
type Type string

const (
	TypeFS  Type = "fs"
	TypeS3  Type = "s3"
	TypeGCS Type = "gcs"
)

// Options selects and configures a backend.
type Options struct {
	Type Type
	// Root is the directory used by the fs backend.
	Root     string
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string

	// RetryMaxTries bounds attempts for transient failures. Values below 2
	// disable retries.
	RetryMaxTries    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
}

// New builds the configured backend, wrapped with retries when enabled.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch opts.Type {
	case TypeFS, "":
		backend, err = NewLocalFS(opts.Root)
	case TypeS3:
		region := opts.Region
		if region == "" {
			region = "us-east-1"
		}
		backend, err = NewS3(ctx, S3Config{
			Bucket:   opts.Bucket,
			Region:   region,
			Endpoint: opts.Endpoint,
			Prefix:   opts.Prefix,
		})
	case TypeGCS:
		backend, err = newGCS(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", opts.Type)
	}
	if err != nil {
		return nil, err
	}

	if opts.RetryMaxTries > 1 {
		backend = NewRetrying(backend, RetryPolicy{
			MaxTries:    uint(opts.RetryMaxTries),
			InitialWait: opts.RetryInitialWait,
			MaxWait:     opts.RetryMaxWait,
		}, logger)
	}
	return backend, nil
}
