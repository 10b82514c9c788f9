// Package images owns original uploads: their bytes, their metadata rows and
// their deletion.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vignette/internal/blobstore"
	"vignette/internal/derivative"
	"vignette/internal/metrics"
	"vignette/internal/models"
	"vignette/internal/store"
	"vignette/internal/transform"
)

const (
	defaultMaxUploadBytes = 20 << 20
	defaultListLimit      = 50
	maxListLimit          = 500
	defaultGCBatchSize    = 500
)

// Purger removes derivatives on behalf of image deletes and sweeps.
type Purger interface {
	Purge(ctx context.Context, imageID string) error
	CollectStale(ctx context.Context, limit int, apply bool) (derivative.StaleResult, error)
	CurrentKey(imageID, key string) bool
}

// Upload is one original image submitted by a client.
type Upload struct {
	Content  io.Reader
	Filename string
	// DeclaredMediaType is what the client claimed; it is logged but never
	// trusted.
	DeclaredMediaType string
}

// Options tunes upload validation and sweeps.
type Options struct {
	MaxUploadBytes    int64
	AllowedMediaTypes []string
	GCBatchSize       int
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Store       store.ImageStore
	Derivatives store.DerivativeStore
	Backend     blobstore.Backend
	Engine      transform.Engine
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Manager stores originals and resolves identities to records.
type Manager struct {
	store       store.ImageStore
	derivatives store.DerivativeStore
	backend     blobstore.Backend
	engine      transform.Engine
	metrics     *metrics.Metrics
	logger      *slog.Logger
	purger      Purger

	maxUploadBytes int64
	allowed        map[string]struct{}
	gcBatchSize    int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New wires a Manager. Store, Derivatives, Backend and Engine are required.
func New(deps Deps, opts Options) (*Manager, error) {
	if deps.Store == nil || deps.Derivatives == nil || deps.Backend == nil || deps.Engine == nil {
		return nil, fmt.Errorf("image manager: store, derivatives, backend and engine are required")
	}
	m := &Manager{
		store:          deps.Store,
		derivatives:    deps.Derivatives,
		backend:        deps.Backend,
		engine:         deps.Engine,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		maxUploadBytes: opts.MaxUploadBytes,
		gcBatchSize:    opts.GCBatchSize,
		inflight:       map[string]struct{}{},
	}
	if m.maxUploadBytes <= 0 {
		m.maxUploadBytes = defaultMaxUploadBytes
	}
	if m.gcBatchSize <= 0 {
		m.gcBatchSize = defaultGCBatchSize
	}

	allowed := opts.AllowedMediaTypes
	if len(allowed) == 0 {
		allowed = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	}
	m.allowed = map[string]struct{}{}
	for _, raw := range allowed {
		mt := strings.ToLower(strings.TrimSpace(raw))
		if mt == "" {
			continue
		}
		if _, ok := models.FormatFromMediaType(mt); !ok {
			return nil, fmt.Errorf("image manager: unsupported allowed media type %q", raw)
		}
		m.allowed[mt] = struct{}{}
	}
	return m, nil
}

// SetPurger connects the derivative side. Deletes and sweeps fail until it
// is set.
func (m *Manager) SetPurger(p Purger) {
	if m != nil {
		m.purger = p
	}
}

// SaveOriginal validates and stores an uploaded original, returning its new
// record.
func (m *Manager) SaveOriginal(ctx context.Context, up Upload) (models.ImageRecord, error) {
	var zero models.ImageRecord
	if m == nil {
		return zero, fmt.Errorf("image manager is not configured")
	}
	if up.Content == nil {
		m.metrics.Upload(ctx, "rejected")
		return zero, models.InvalidImage("content is required", nil)
	}

	data, err := io.ReadAll(io.LimitReader(up.Content, m.maxUploadBytes+1))
	if err != nil {
		return zero, models.InvalidImage("read upload", err)
	}
	if int64(len(data)) > m.maxUploadBytes {
		m.metrics.Upload(ctx, "rejected")
		return zero, models.InvalidImage(fmt.Sprintf("upload exceeds %d bytes", m.maxUploadBytes), nil)
	}

	info, err := m.engine.Probe(data)
	if err != nil {
		m.metrics.Upload(ctx, "rejected")
		return zero, err
	}
	if _, ok := m.allowed[info.MediaType]; !ok {
		m.metrics.Upload(ctx, "rejected")
		return zero, models.InvalidImage("media type not allowed", errors.New(info.MediaType))
	}
	if declared := strings.TrimSpace(up.DeclaredMediaType); declared != "" && !strings.EqualFold(declared, info.MediaType) {
		m.log().Debug("declared media type differs from content", "declared", declared, "sniffed", info.MediaType)
	}

	id, err := store.GenerateImageID(func(candidate string) (bool, error) {
		return m.store.ImageExists(ctx, candidate)
	})
	if err != nil {
		return zero, err
	}
	m.track(id)
	defer m.untrack(id)

	key := blobstore.OriginalKey(id)
	put, err := m.backend.Put(ctx, key, bytes.NewReader(data), info.MediaType)
	if err != nil {
		m.metrics.Upload(ctx, "error")
		return zero, err
	}

	sum := sha256.Sum256(data)
	rec := models.ImageRecord{
		ID:          id,
		OriginalKey: put.Key,
		Filename:    cleanFilename(up.Filename),
		MediaType:   info.MediaType,
		Format:      info.Format,
		Width:       info.Width,
		Height:      info.Height,
		SizeBytes:   int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.CreateImage(ctx, &rec); err != nil {
		if delErr := m.backend.Delete(context.WithoutCancel(ctx), put.Key); delErr != nil {
			m.log().Warn("original cleanup failed", "image_id", id, "key", put.Key, "error", delErr)
		}
		m.metrics.Upload(ctx, "error")
		return zero, fmt.Errorf("record image: %w", err)
	}

	m.metrics.Upload(ctx, "accepted")
	m.log().Info("image stored", "image_id", id, "media_type", rec.MediaType, "width", rec.Width, "height", rec.Height, "bytes", rec.SizeBytes)
	return rec, nil
}

// LoadRecord resolves an identity. An empty id is the "no image" state and
// yields an absent not-found; an unknown id is a dangling reference.
func (m *Manager) LoadRecord(ctx context.Context, id string) (models.ImageRecord, error) {
	var zero models.ImageRecord
	if m == nil {
		return zero, fmt.Errorf("image manager is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, models.NoImage()
	}
	rec, err := m.store.GetImage(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("load image: %w", err)
	}
	if rec == nil {
		m.log().Warn("image reference has no record", "image_id", id)
		return zero, models.NotFound(id)
	}
	if rec.Deleting() {
		return zero, models.NotFound(id)
	}
	return *rec, nil
}

// OpenOriginal streams the original bytes of rec.
func (m *Manager) OpenOriginal(ctx context.Context, rec models.ImageRecord) (io.ReadCloser, error) {
	if m == nil {
		return nil, fmt.Errorf("image manager is not configured")
	}
	rc, err := m.backend.Open(ctx, rec.OriginalKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		m.log().Error("original bytes missing", "image_id", rec.ID, "key", rec.OriginalKey)
		return nil, models.NotFound(rec.ID)
	}
	return rc, err
}

// List returns live records, newest first, and the total count.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]models.ImageRecord, int, error) {
	if m == nil {
		return nil, 0, fmt.Errorf("image manager is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := m.store.ListImages(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.CountImages(ctx)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// DeleteRecord removes an image and everything derived from it. The row is
// marked first so it stops resolving, and dropped last so an interrupted
// delete can be resumed.
func (m *Manager) DeleteRecord(ctx context.Context, id string) error {
	if m == nil {
		return fmt.Errorf("image manager is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	marked, err := m.store.MarkImageDeleting(ctx, id, time.Now().UTC())
	if err != nil {
		return models.DeletionFailed(id, fmt.Errorf("mark image: %w", err))
	}
	if !marked {
		return models.NotFound(id)
	}
	return m.finishDelete(ctx, id)
}

// ResumeDeletes completes deletes that were interrupted after the mark phase.
func (m *Manager) ResumeDeletes(ctx context.Context, limit int) (int, []string, error) {
	if m == nil {
		return 0, nil, fmt.Errorf("image manager is not configured")
	}
	if limit <= 0 {
		limit = m.gcBatchSize
	}
	pending, err := m.store.ListDeletingImages(ctx, limit)
	if err != nil {
		return 0, nil, err
	}
	done := 0
	var failed []string
	for _, rec := range pending {
		if err := m.finishDelete(ctx, rec.ID); err != nil {
			m.log().Warn("resume delete failed", "image_id", rec.ID, "error", err)
			failed = append(failed, rec.ID)
			continue
		}
		done++
	}
	if done > 0 {
		m.log().Info("resumed deletes", "completed", done, "failed", len(failed))
	}
	return done, failed, nil
}

func (m *Manager) finishDelete(ctx context.Context, id string) error {
	if m.purger == nil {
		return models.DeletionFailed(id, fmt.Errorf("derivative purger is not configured"))
	}
	if err := m.purger.Purge(ctx, id); err != nil {
		return err
	}
	if err := m.backend.Delete(ctx, blobstore.OriginalKey(id)); err != nil {
		return models.DeletionFailed(id, err)
	}
	// A generation that read the original before the mark may have stored
	// its blob after the first purge.
	if err := m.purger.Purge(ctx, id); err != nil {
		return err
	}
	if err := m.store.DeleteImage(ctx, id); err != nil {
		return models.DeletionFailed(id, fmt.Errorf("drop image row: %w", err))
	}
	m.metrics.Deleted(ctx)
	m.log().Info("image deleted", "image_id", id)
	return nil
}

func (m *Manager) track(id string) {
	m.mu.Lock()
	m.inflight[id] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

func (m *Manager) uploading(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

func (m *Manager) log() *slog.Logger {
	if m != nil && m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
