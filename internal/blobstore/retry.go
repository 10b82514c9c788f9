package blobstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"vignette/internal/models"
)

const (
	defaultRetryInitialWait = 100 * time.Millisecond
	defaultRetryMaxWait     = 2 * time.Second
)

// RetryPolicy bounds retries of transient backend failures.
type RetryPolicy struct {
	MaxTries    uint
	InitialWait time.Duration
	MaxWait     time.Duration
}

// Retrying wraps a backend and retries operations that fail with a
// transient storage error. Permanent failures return immediately.
type Retrying struct {
	next   Backend
	policy RetryPolicy
	logger *slog.Logger
}

func NewRetrying(next Backend, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxTries == 0 {
		policy.MaxTries = 3
	}
	if policy.InitialWait <= 0 {
		policy.InitialWait = defaultRetryInitialWait
	}
	if policy.MaxWait <= 0 {
		policy.MaxWait = defaultRetryMaxWait
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

func (r *Retrying) Name() string { return r.next.Name() }

// Unwrap returns the wrapped backend.
func (r *Retrying) Unwrap() Backend { return r.next }

func (r *Retrying) Put(ctx context.Context, key string, src io.Reader, mediaType string) (PutResult, error) {
	if src == nil {
		return r.next.Put(ctx, key, src, mediaType)
	}
	// Each attempt needs a fresh reader.
	data, err := io.ReadAll(src)
	if err != nil {
		return PutResult{}, models.StorageIO(key, false, err)
	}
	return retry(ctx, r, "put", key, func() (PutResult, error) {
		return r.next.Put(ctx, key, bytes.NewReader(data), mediaType)
	})
}

func (r *Retrying) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return retry(ctx, r, "open", key, func() (io.ReadCloser, error) {
		return r.next.Open(ctx, key)
	})
}

func (r *Retrying) Exists(ctx context.Context, key string) (bool, error) {
	return retry(ctx, r, "exists", key, func() (bool, error) {
		return r.next.Exists(ctx, key)
	})
}

func (r *Retrying) Delete(ctx context.Context, key string) error {
	_, err := retry(ctx, r, "delete", key, func() (struct{}, error) {
		return struct{}{}, r.next.Delete(ctx, key)
	})
	return err
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]string, error) {
	return retry(ctx, r, "list", prefix, func() ([]string, error) {
		return r.next.List(ctx, prefix)
	})
}

func (r *Retrying) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

func retry[T any](ctx context.Context, r *Retrying, op, key string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialWait
	b.MaxInterval = r.policy.MaxWait

	return backoff.Retry(ctx, func() (T, error) {
		res, err := fn()
		if err != nil && !models.IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log().Warn("storage retry", "op", op, "key", key, "wait", wait, "error", err)
		}),
	)
}
