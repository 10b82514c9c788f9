package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no object exists under a key.
var ErrNotFound = errors.New("blob not found")

// PutResult describes one persisted object.
type PutResult struct {
	Key       string
	SHA256    string
	SizeBytes int64
}

// Backend is the byte-storage abstraction shared by originals and derivatives.
// Put must be atomic: readers see either the previous object or the complete
// new one, never a partial write.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, mediaType string) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object. Missing objects are ignored.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Close releases clients held by b, looking through wrappers.
func Close(b Backend) error {
	for b != nil {
		if c, ok := b.(io.Closer); ok {
			return c.Close()
		}
		u, ok := b.(interface{ Unwrap() Backend })
		if !ok {
			return nil
		}
		b = u.Unwrap()
	}
	return nil
}
