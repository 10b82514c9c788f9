package derivative

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"vignette/internal/blobstore"
	"vignette/internal/cache"
	"vignette/internal/models"
	"vignette/internal/presets"
	"vignette/internal/store"
	"vignette/internal/transform"
)

type fakeRecords struct {
	st      *store.Store
	backend blobstore.Backend
}

func (f *fakeRecords) LoadRecord(ctx context.Context, id string) (models.ImageRecord, error) {
	if id == "" {
		return models.ImageRecord{}, models.NoImage()
	}
	rec, err := f.st.GetImage(ctx, id)
	if err != nil {
		return models.ImageRecord{}, err
	}
	if rec == nil || rec.Deleting() {
		return models.ImageRecord{}, models.NotFound(id)
	}
	return *rec, nil
}

func (f *fakeRecords) OpenOriginal(ctx context.Context, rec models.ImageRecord) (io.ReadCloser, error) {
	return f.backend.Open(ctx, rec.OriginalKey)
}

// spyEngine counts transforms and can block or fail them on demand.
type spyEngine struct {
	inner transform.Engine
	calls atomic.Int32
	gate  chan struct{}
	fail  atomic.Pointer[error]
}

func (s *spyEngine) Probe(data []byte) (models.ImageInfo, error) {
	return s.inner.Probe(data)
}

func (s *spyEngine) Transform(ctx context.Context, data []byte, spec models.PresetSpec) (transform.Output, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if errp := s.fail.Load(); errp != nil {
		return transform.Output{}, *errp
	}
	return s.inner.Transform(ctx, data, spec)
}

// countingBackend records how many operations reach the backend.
type countingBackend struct {
	blobstore.Backend
	ops atomic.Int32
}

func (c *countingBackend) Put(ctx context.Context, key string, r io.Reader, mt string) (blobstore.PutResult, error) {
	c.ops.Add(1)
	return c.Backend.Put(ctx, key, r, mt)
}

func (c *countingBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	c.ops.Add(1)
	return c.Backend.Open(ctx, key)
}

func (c *countingBackend) Exists(ctx context.Context, key string) (bool, error) {
	c.ops.Add(1)
	return c.Backend.Exists(ctx, key)
}

func (c *countingBackend) Delete(ctx context.Context, key string) error {
	c.ops.Add(1)
	return c.Backend.Delete(ctx, key)
}

func (c *countingBackend) List(ctx context.Context, prefix string) ([]string, error) {
	c.ops.Add(1)
	return c.Backend.List(ctx, prefix)
}

type testEnv struct {
	st      *store.Store
	backend *countingBackend
	engine  *spyEngine
	index   *cache.Memory
	records *fakeRecords
	reg     *presets.Registry
	gen     *Generator
}

func defaultPresets() map[string]models.PresetSpec {
	return map[string]models.PresetSpec{
		"thumb": {Width: 100, Height: 100, Fit: models.FitCover, Format: models.FormatJPEG, Quality: 80, Holder: "avatar"},
		"hero":  {Width: 400, Height: 200, Fit: models.FitContain, Format: models.FormatPNG},
	}
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs, err := blobstore.NewLocalFS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	env := &testEnv{
		st:      st,
		backend: &countingBackend{Backend: fs},
		engine:  &spyEngine{inner: transform.NewImagingEngine()},
		index:   cache.NewMemory(),
	}
	env.records = &fakeRecords{st: st, backend: env.backend}
	env.reg = mustRegistry(t, defaultPresets())
	env.gen = env.newGenerator(t, env.reg, opts)
	return env
}

func mustRegistry(t *testing.T, specs map[string]models.PresetSpec) *presets.Registry {
	t.Helper()
	reg, err := presets.New(specs, map[string]string{"avatar": "/static/avatar.png"})
	require.NoError(t, err)
	return reg
}

func (e *testEnv) newGenerator(t *testing.T, reg *presets.Registry, opts Options) *Generator {
	t.Helper()
	if opts.Placeholders == nil {
		opts.Placeholders = map[string]string{"avatar": "/static/avatar.png"}
	}
	gen, err := New(Deps{
		Presets: reg,
		Records: e.records,
		Store:   e.st,
		Backend: e.backend,
		Engine:  e.engine,
		Index:   e.index,
	}, opts)
	require.NoError(t, err)
	return gen
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// addImage stores an original and its metadata row, returning the record.
func (e *testEnv) addImage(t *testing.T, id string, w, h int) models.ImageRecord {
	t.Helper()
	ctx := context.Background()
	key := blobstore.OriginalKey(id)
	put, err := e.backend.Put(ctx, key, bytes.NewReader(pngBytes(t, w, h)), "image/png")
	require.NoError(t, err)

	rec := models.ImageRecord{
		ID:          id,
		OriginalKey: key,
		MediaType:   "image/png",
		Format:      models.FormatPNG,
		Width:       w,
		Height:      h,
		SizeBytes:   put.SizeBytes,
		SHA256:      put.SHA256,
	}
	require.NoError(t, e.st.CreateImage(ctx, &rec))
	return rec
}

func (e *testEnv) derivativeKeys(t *testing.T, id string) []string {
	t.Helper()
	keys, err := e.backend.List(context.Background(), blobstore.DerivativePrefix(id))
	require.NoError(t, err)
	return keys
}

func bytesReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}
