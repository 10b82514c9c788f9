package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vignette/internal/blobstore"
	"vignette/internal/cache"
	"vignette/internal/derivative"
	"vignette/internal/models"
	"vignette/internal/presets"
	"vignette/internal/store"
	"vignette/internal/transform"
)

type countingEngine struct {
	transform.Engine
	transforms atomic.Int32
}

func (c *countingEngine) Transform(ctx context.Context, data []byte, spec models.PresetSpec) (transform.Output, error) {
	c.transforms.Add(1)
	return c.Engine.Transform(ctx, data, spec)
}

type failingCreateStore struct {
	*store.Store
}

func (failingCreateStore) CreateImage(context.Context, *models.ImageRecord) error {
	return errors.New("disk full")
}

type failingPurger struct {
	Purger
	err error
}

func (f failingPurger) Purge(context.Context, string) error { return f.err }

type fixture struct {
	st      *store.Store
	backend *blobstore.LocalFS
	engine  *countingEngine
	index   *cache.Memory
	reg     *presets.Registry
	mgr     *Manager
	gen     *derivative.Generator
}

func newFixture(t *testing.T, opts Options, policy derivative.MissingPolicy) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs, err := blobstore.NewLocalFS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	f := &fixture{
		st:      st,
		backend: fs,
		engine:  &countingEngine{Engine: transform.NewImagingEngine()},
		index:   cache.NewMemory(),
	}

	f.mgr, err = New(Deps{Store: st, Derivatives: st, Backend: fs, Engine: f.engine}, opts)
	require.NoError(t, err)

	f.reg, err = presets.New(map[string]models.PresetSpec{
		"thumb": {Width: 100, Height: 100, Fit: models.FitCover, Format: models.FormatJPEG},
		"wide":  {Width: 320, Height: 120, Fit: models.FitCover, Format: models.FormatPNG},
	}, nil)
	require.NoError(t, err)

	f.gen, err = derivative.New(derivative.Deps{
		Presets: f.reg,
		Records: f.mgr,
		Store:   st,
		Backend: fs,
		Engine:  f.engine,
		Index:   f.index,
	}, derivative.Options{MissingPolicy: policy, DefaultPlaceholder: "/static/missing.png"})
	require.NoError(t, err)
	f.mgr.SetPurger(f.gen)
	return f
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (f *fixture) keys(t *testing.T) []string {
	t.Helper()
	keys, err := f.backend.List(context.Background(), blobstore.RootPrefix)
	require.NoError(t, err)
	return keys
}

func TestSaveOriginalRoundTrip(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()
	data := encodePNG(t, 64, 48)

	rec, err := f.mgr.SaveOriginal(ctx, Upload{
		Content:           bytes.NewReader(data),
		Filename:          "uploads/cat.png",
		DeclaredMediaType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.True(t, store.ValidImageID(rec.ID))
	assert.Equal(t, "cat.png", rec.Filename)

	sum := sha256.Sum256(data)
	loaded, err := f.mgr.LoadRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), loaded.SHA256)
	assert.Equal(t, "image/png", loaded.MediaType)
	assert.Equal(t, models.FormatPNG, loaded.Format)
	assert.Equal(t, 64, loaded.Width)
	assert.Equal(t, 48, loaded.Height)
	assert.Equal(t, int64(len(data)), loaded.SizeBytes)
	assert.Equal(t, blobstore.OriginalKey(rec.ID), loaded.OriginalKey)

	rc, err := f.mgr.OpenOriginal(ctx, loaded)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	assert.Equal(t, []string{blobstore.OriginalKey(rec.ID)}, f.keys(t))
}

func TestSaveOriginalRejects(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		body []byte
	}{
		{name: "not an image", body: []byte("definitely not pixels")},
		{name: "empty", body: []byte{}},
		{name: "too large", opts: Options{MaxUploadBytes: 64}, body: nil},
		{name: "media type not allowed", opts: Options{AllowedMediaTypes: []string{"image/jpeg"}}, body: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.opts, derivative.MissingPlaceholder)
			body := tc.body
			if body == nil {
				body = encodePNG(t, 32, 32)
			}
			_, err := f.mgr.SaveOriginal(context.Background(), Upload{Content: bytes.NewReader(body)})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidImage)
			assert.Empty(t, f.keys(t))
		})
	}
}

func TestSaveOriginalRemovesBlobWhenInsertFails(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	mgr, err := New(Deps{Store: failingCreateStore{f.st}, Derivatives: f.st, Backend: f.backend, Engine: f.engine}, Options{})
	require.NoError(t, err)

	_, err = mgr.SaveOriginal(context.Background(), Upload{Content: bytes.NewReader(encodePNG(t, 16, 16))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, f.keys(t))
}

func TestLoadRecordIdentities(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()

	_, err := f.mgr.LoadRecord(ctx, "")
	require.Error(t, err)
	var merr *models.Error
	require.True(t, errors.As(err, &merr))
	assert.True(t, merr.Absent)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.mgr.LoadRecord(ctx, "img-00000000-0000-0000-0000-000000000000")
	require.True(t, errors.As(err, &merr))
	assert.False(t, merr.Absent)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestThumbLifecycle(t *testing.T) {
	for _, policy := range []derivative.MissingPolicy{derivative.MissingPlaceholder, derivative.MissingError} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, Options{}, policy)
			ctx := context.Background()

			rec, err := f.mgr.SaveOriginal(ctx, Upload{Content: bytes.NewReader(encodePNG(t, 800, 600))})
			require.NoError(t, err)

			res, err := f.gen.GetOrGenerate(ctx, rec.ID, "thumb")
			require.NoError(t, err)
			require.Equal(t, derivative.KindDerivative, res.Kind)
			assert.Equal(t, 100, res.Derivative.Width)
			assert.Equal(t, 100, res.Derivative.Height)
			assert.Equal(t, "image/jpeg", res.Derivative.MediaType)

			content, err := f.gen.Open(ctx, res)
			require.NoError(t, err)
			cfg, format, err := image.DecodeConfig(content)
			_ = content.Close()
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, 100, cfg.Width)

			_, err = f.gen.GetOrGenerate(ctx, rec.ID, "thumb")
			require.NoError(t, err)
			assert.Equal(t, int32(1), f.engine.transforms.Load())

			require.NoError(t, f.mgr.DeleteRecord(ctx, rec.ID))

			after, err := f.gen.GetOrGenerate(ctx, rec.ID, "thumb")
			if policy == derivative.MissingError {
				assert.ErrorIs(t, err, models.ErrNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, derivative.KindPlaceholder, after.Kind)
				assert.Equal(t, "/static/missing.png", after.PlaceholderURL)
			}

			assert.Empty(t, f.keys(t))
			assert.Zero(t, f.index.Len())
			rows, err := f.st.ListDerivatives(ctx, rec.ID)
			require.NoError(t, err)
			assert.Empty(t, rows)
			gone, err := f.st.GetImage(ctx, rec.ID)
			require.NoError(t, err)
			assert.Nil(t, gone)
		})
	}
}

func TestDeleteRecordUnknownAndEmpty(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()

	assert.NoError(t, f.mgr.DeleteRecord(ctx, ""))
	assert.ErrorIs(t, f.mgr.DeleteRecord(ctx, "img-missing"), models.ErrNotFound)
}

func TestDeleteRecordFailureIsResumable(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()

	rec, err := f.mgr.SaveOriginal(ctx, Upload{Content: bytes.NewReader(encodePNG(t, 200, 100))})
	require.NoError(t, err)
	_, err = f.gen.GetOrGenerate(ctx, rec.ID, "wide")
	require.NoError(t, err)

	f.mgr.SetPurger(failingPurger{Purger: f.gen, err: models.DeletionFailed(rec.ID, errors.New("bucket offline"))})
	err = f.mgr.DeleteRecord(ctx, rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDeletion)

	_, err = f.mgr.LoadRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "marked rows no longer resolve")
	row, err := f.st.GetImage(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.Deleting())

	f.mgr.SetPurger(f.gen)
	done, failed, err := f.mgr.ResumeDeletes(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Empty(t, failed)
	assert.Empty(t, f.keys(t))
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := f.mgr.SaveOriginal(ctx, Upload{Content: bytes.NewReader(encodePNG(t, 8+i, 8))})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, f.mgr.DeleteRecord(ctx, ids[1]))

	recs, total, err := f.mgr.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[2], recs[0].ID)
	assert.Equal(t, ids[0], recs[1].ID)
}

func TestCollectGarbage(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()

	rec, err := f.mgr.SaveOriginal(ctx, Upload{Content: bytes.NewReader(encodePNG(t, 300, 200))})
	require.NoError(t, err)
	res, err := f.gen.GetOrGenerate(ctx, rec.ID, "thumb")
	require.NoError(t, err)

	orphanOriginal := blobstore.OriginalKey("img-orphan")
	orphanDerivative := blobstore.DerivativeKey(rec.ID, "thumb", "deadbeefdeadbeef", "jpg")
	inFlight := blobstore.DerivativeKey(rec.ID, "wide", mustFingerprint(t, f, "wide"), "png")
	for _, key := range []string{orphanOriginal, orphanDerivative, inFlight} {
		_, err := f.backend.Put(ctx, key, strings.NewReader("bytes"), "application/octet-stream")
		require.NoError(t, err)
	}

	dry, err := f.mgr.CollectGarbage(ctx, GCOptions{})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.OrphanCandidates)
	assert.Zero(t, dry.OrphansDeleted)
	assert.Len(t, f.keys(t), 5)

	applied, err := f.mgr.CollectGarbage(ctx, GCOptions{Apply: true})
	require.NoError(t, err)
	assert.Equal(t, 2, applied.OrphansDeleted)
	assert.Empty(t, applied.FailedKeys)

	assert.ElementsMatch(t, []string{rec.OriginalKey, res.Derivative.BlobKey, inFlight}, f.keys(t))
}

func TestCollectGarbageResumesPendingDeletes(t *testing.T) {
	f := newFixture(t, Options{}, derivative.MissingPlaceholder)
	ctx := context.Background()

	rec, err := f.mgr.SaveOriginal(ctx, Upload{Content: bytes.NewReader(encodePNG(t, 40, 40))})
	require.NoError(t, err)
	marked, err := f.st.MarkImageDeleting(ctx, rec.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, marked)

	dry, err := f.mgr.CollectGarbage(ctx, GCOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, dry.PendingDeletes)
	assert.Zero(t, dry.ResumedDeletes)

	applied, err := f.mgr.CollectGarbage(ctx, GCOptions{Apply: true})
	require.NoError(t, err)
	assert.Equal(t, 1, applied.ResumedDeletes)
	assert.Empty(t, f.keys(t))
}

func mustFingerprint(t *testing.T, f *fixture, preset string) string {
	t.Helper()
	fp, err := f.reg.Fingerprint(preset)
	require.NoError(t, err)
	return fp
}
