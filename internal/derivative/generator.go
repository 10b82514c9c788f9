// Package derivative resolves (image, preset) pairs to stored derivatives,
// generating each one at most once per key at a time.
package derivative

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"vignette/internal/blobstore"
	"vignette/internal/cache"
	"vignette/internal/metrics"
	"vignette/internal/models"
	"vignette/internal/store"
	"vignette/internal/transform"
)

const (
	defaultMaxConcurrent = 4
	fingerprintParamLen  = 12
)

// Presets is the read side of the preset registry.
type Presets interface {
	Get(name string) (models.PresetSpec, error)
	Fingerprint(name string) (string, error)
	Fingerprints() map[string]string
}

// Records resolves image identities to metadata and original bytes.
type Records interface {
	LoadRecord(ctx context.Context, id string) (models.ImageRecord, error)
	OpenOriginal(ctx context.Context, rec models.ImageRecord) (io.ReadCloser, error)
}

// Options tunes generation and fallbacks.
type Options struct {
	// PublicBaseURL prefixes URLs built by CreateURL.
	PublicBaseURL string
	MissingPolicy MissingPolicy
	// Placeholders maps placeholder names to URLs.
	Placeholders       map[string]string
	DefaultPlaceholder string
	// MaxConcurrent bounds transforms running at once across all keys.
	MaxConcurrent int64
	// WaitTimeout bounds how long a caller waits on generation before
	// falling back to the original. Zero waits indefinitely.
	WaitTimeout time.Duration
	// GenerateTimeout bounds one generation run. Zero means no limit.
	GenerateTimeout time.Duration
}

// Deps are the collaborators of a Generator.
type Deps struct {
	Presets Presets
	Records Records
	Store   store.DerivativeStore
	Backend blobstore.Backend
	Engine  transform.Engine
	Index   cache.Index
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Generator is the single writer of derivative rows and blobs.
type Generator struct {
	presets Presets
	records Records
	store   store.DerivativeStore
	backend blobstore.Backend
	engine  transform.Engine
	index   cache.Index
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	opts   Options
	flight singleflight.Group
	sem    *semaphore.Weighted
}

// New wires a Generator. Presets, Records, Store, Backend and Engine are
// required.
func New(deps Deps, opts Options) (*Generator, error) {
	if deps.Presets == nil || deps.Records == nil || deps.Store == nil || deps.Backend == nil || deps.Engine == nil {
		return nil, fmt.Errorf("derivative generator: presets, records, store, backend and engine are required")
	}
	if deps.Index == nil {
		deps.Index = cache.NoOp{}
	}
	if opts.MissingPolicy == "" {
		opts.MissingPolicy = MissingPlaceholder
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &Generator{
		presets: deps.Presets,
		records: deps.Records,
		store:   deps.Store,
		backend: deps.Backend,
		engine:  deps.Engine,
		index:   deps.Index,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		tracer:  otel.Tracer("vignette/derivative"),
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
	}, nil
}

// GetOrGenerate returns the derivative of imageID for preset, generating it
// when missing or stale. An empty imageID yields a placeholder result.
func (g *Generator) GetOrGenerate(ctx context.Context, imageID, preset string) (Result, error) {
	if g == nil {
		return Result{}, fmt.Errorf("derivative generator is not configured")
	}
	spec, err := g.presets.Get(preset)
	if err != nil {
		return Result{}, err
	}
	fp, err := g.presets.Fingerprint(preset)
	if err != nil {
		return Result{}, err
	}

	if imageID == "" {
		return g.placeholder(ctx, "", spec), nil
	}

	rec, err := g.records.LoadRecord(ctx, imageID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) && g.opts.MissingPolicy == MissingPlaceholder {
			return g.placeholder(ctx, imageID, spec), nil
		}
		return Result{}, err
	}

	if d, err := g.lookup(ctx, rec.ID, spec.Name, fp); err != nil {
		return Result{}, err
	} else if d != nil {
		return derivativeResult(rec.ID, spec.Name, *d, false), nil
	}

	return g.await(ctx, rec, spec, fp)
}

// Render resolves (imageID, preset) and opens the resulting bytes.
func (g *Generator) Render(ctx context.Context, imageID, preset string) (Content, error) {
	res, err := g.GetOrGenerate(ctx, imageID, preset)
	if err != nil {
		return Content{}, err
	}
	return g.Open(ctx, res)
}

// Open streams the bytes behind a result. Placeholders return ErrNoContent.
func (g *Generator) Open(ctx context.Context, res Result) (Content, error) {
	switch res.Kind {
	case KindDerivative:
		rc, err := g.backend.Open(ctx, res.Derivative.BlobKey)
		if err != nil {
			return Content{}, err
		}
		return Content{ReadCloser: rc, Result: res, MediaType: res.Derivative.MediaType, SizeBytes: res.Derivative.SizeBytes}, nil
	case KindOriginal:
		rc, err := g.records.OpenOriginal(ctx, *res.Original)
		if err != nil {
			return Content{}, err
		}
		return Content{ReadCloser: rc, Result: res, MediaType: res.Original.MediaType, SizeBytes: res.Original.SizeBytes}, nil
	default:
		return Content{}, ErrNoContent
	}
}

// CreateURL returns the URL of a derivative without generating it. The URL
// carries the preset fingerprint so clients refetch after preset changes.
func (g *Generator) CreateURL(imageID, preset string) (string, error) {
	spec, err := g.presets.Get(preset)
	if err != nil {
		return "", err
	}
	if imageID == "" {
		return g.placeholderURL(spec), nil
	}
	fp, err := g.presets.Fingerprint(preset)
	if err != nil {
		return "", err
	}
	if len(fp) > fingerprintParamLen {
		fp = fp[:fingerprintParamLen]
	}
	return fmt.Sprintf("%s/v1/images/%s/presets/%s?v=%s",
		g.opts.PublicBaseURL, url.PathEscape(imageID), url.PathEscape(spec.Name), fp), nil
}

// Regenerate drops any stored derivative for (imageID, preset) and produces
// a fresh one.
func (g *Generator) Regenerate(ctx context.Context, imageID, preset string) (Result, error) {
	if _, err := g.presets.Get(preset); err != nil {
		return Result{}, err
	}
	if err := g.Invalidate(ctx, imageID, preset); err != nil {
		return Result{}, err
	}
	return g.GetOrGenerate(ctx, imageID, preset)
}

// lookup checks the index then the table for a current derivative whose
// bytes still exist. Stale or dangling entries count as misses.
func (g *Generator) lookup(ctx context.Context, imageID, preset, fp string) (*models.Derivative, error) {
	d, ok, err := g.index.Get(ctx, imageID, preset)
	if err != nil {
		g.log().Warn("derivative index get failed", "image_id", imageID, "preset", preset, "error", err)
		ok = false
	}
	if !ok {
		d, err = g.store.GetDerivative(ctx, imageID, preset)
		if err != nil {
			return nil, fmt.Errorf("load derivative: %w", err)
		}
	}
	if d == nil {
		g.metrics.Lookup(ctx, preset, "miss")
		return nil, nil
	}
	if d.Fingerprint != fp {
		g.metrics.Lookup(ctx, preset, "stale")
		return nil, nil
	}

	exists, err := g.backend.Exists(ctx, d.BlobKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		g.log().Warn("derivative bytes missing, regenerating", "image_id", imageID, "preset", preset, "key", d.BlobKey)
		_ = g.index.Delete(ctx, imageID, preset)
		g.metrics.Lookup(ctx, preset, "dangling")
		return nil, nil
	}

	if !ok {
		if err := g.index.Set(ctx, *d); err != nil {
			g.log().Warn("derivative index set failed", "image_id", imageID, "preset", preset, "error", err)
		}
	}
	g.metrics.Lookup(ctx, preset, "hit")
	return d, nil
}

// await joins or starts the generation for the key and waits for it, the
// caller's context, or the configured wait timeout.
func (g *Generator) await(ctx context.Context, rec models.ImageRecord, spec models.PresetSpec, fp string) (Result, error) {
	key := rec.ID + "/" + spec.Name
	// Generation must not die with the first caller; others may be waiting.
	genCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (any, error) {
		return g.produce(genCtx, rec, spec, fp)
	})

	var timeout <-chan time.Time
	if g.opts.WaitTimeout > 0 {
		timer := time.NewTimer(g.opts.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		if res.Shared {
			g.metrics.Collapsed(ctx, spec.Name)
		}
		if res.Err != nil {
			if errors.Is(res.Err, models.ErrNotFound) && g.opts.MissingPolicy == MissingPlaceholder {
				return g.placeholder(ctx, rec.ID, spec), nil
			}
			return Result{}, res.Err
		}
		return derivativeResult(rec.ID, spec.Name, res.Val.(models.Derivative), true), nil
	case <-timeout:
		g.log().Info("derivative generation slow, serving original", "image_id", rec.ID, "preset", spec.Name, "wait", g.opts.WaitTimeout)
		g.metrics.Fallback(ctx, spec.Name, string(KindOriginal))
		original := rec
		return Result{Kind: KindOriginal, ImageID: rec.ID, Preset: spec.Name, Original: &original}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// produce runs one generation: original bytes, transform, store, index.
func (g *Generator) produce(ctx context.Context, rec models.ImageRecord, spec models.PresetSpec, fp string) (_ models.Derivative, err error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "derivative.generate", trace.WithAttributes(
		attribute.String("image.id", rec.ID),
		attribute.String("preset", spec.Name),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		g.metrics.Generation(ctx, spec.Name, outcome, time.Since(start))
		span.End()
	}()

	if g.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.GenerateTimeout)
		defer cancel()
	}

	// A previous flight may have finished between our lookup and DoChan.
	previous, err := g.store.GetDerivative(ctx, rec.ID, spec.Name)
	if err != nil {
		return models.Derivative{}, fmt.Errorf("load derivative: %w", err)
	}
	if previous != nil && previous.Fingerprint == fp {
		if ok, _ := g.backend.Exists(ctx, previous.BlobKey); ok {
			return *previous, nil
		}
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return models.Derivative{}, err
	}
	out, err := g.transform(ctx, rec, spec)
	g.sem.Release(1)
	if err != nil {
		g.log().Warn("derivative generation failed", "image_id", rec.ID, "preset", spec.Name, "error", err)
		return models.Derivative{}, err
	}

	key := blobstore.DerivativeKey(rec.ID, spec.Name, fp, out.Format.Extension())
	put, err := g.backend.Put(ctx, key, bytes.NewReader(out.Data), out.MediaType)
	if err != nil {
		return models.Derivative{}, err
	}

	d := models.Derivative{
		ImageID:     rec.ID,
		Preset:      spec.Name,
		Fingerprint: fp,
		BlobKey:     put.Key,
		MediaType:   out.MediaType,
		Width:       out.Width,
		Height:      out.Height,
		SizeBytes:   put.SizeBytes,
		GeneratedAt: time.Now().UTC(),
	}
	if err := g.store.UpsertDerivative(ctx, &d); err != nil {
		if delErr := g.backend.Delete(ctx, put.Key); delErr != nil {
			g.log().Warn("derivative cleanup failed", "key", put.Key, "error", delErr)
		}
		// The image was deleted while we were working.
		if errors.Is(err, store.ErrImageGone) {
			g.log().Info("image deleted during generation", "image_id", rec.ID, "preset", spec.Name)
			return models.Derivative{}, models.NotFound(rec.ID)
		}
		return models.Derivative{}, fmt.Errorf("record derivative: %w", err)
	}

	if previous != nil && previous.BlobKey != d.BlobKey {
		if err := g.backend.Delete(ctx, previous.BlobKey); err != nil {
			g.log().Warn("stale derivative cleanup failed", "key", previous.BlobKey, "error", err)
		}
	}
	if err := g.index.Set(ctx, d); err != nil {
		g.log().Warn("derivative index set failed", "image_id", rec.ID, "preset", spec.Name, "error", err)
	}

	g.log().Debug("derivative generated", "image_id", rec.ID, "preset", spec.Name, "key", d.BlobKey, "bytes", d.SizeBytes, "elapsed", time.Since(start))
	return d, nil
}

func (g *Generator) transform(ctx context.Context, rec models.ImageRecord, spec models.PresetSpec) (transform.Output, error) {
	rc, err := g.records.OpenOriginal(ctx, rec)
	if err != nil {
		return transform.Output{}, err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return transform.Output{}, models.StorageIO(rec.OriginalKey, false, err)
	}
	return g.engine.Transform(ctx, data, spec)
}

func (g *Generator) placeholder(ctx context.Context, imageID string, spec models.PresetSpec) Result {
	if imageID != "" {
		g.log().Warn("dangling image reference", "image_id", imageID, "preset", spec.Name)
	}
	g.metrics.Fallback(ctx, spec.Name, string(KindPlaceholder))
	return Result{
		Kind:           KindPlaceholder,
		ImageID:        imageID,
		Preset:         spec.Name,
		PlaceholderURL: g.placeholderURL(spec),
	}
}

func (g *Generator) placeholderURL(spec models.PresetSpec) string {
	if spec.Holder != "" {
		if u, ok := g.opts.Placeholders[spec.Holder]; ok {
			return u
		}
	}
	return g.opts.DefaultPlaceholder
}

func (g *Generator) log() *slog.Logger {
	if g != nil && g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

func derivativeResult(imageID, preset string, d models.Derivative, generated bool) Result {
	return Result{
		Kind:       KindDerivative,
		ImageID:    imageID,
		Preset:     preset,
		Derivative: &d,
		Generated:  generated,
	}
}
