package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vignette/internal/models"
)

const (
	tmpDirName = ".tmp"
	// placeAttempts bounds how often Put recreates a parent directory that a
	// concurrent Delete pruned.
	placeAttempts = 3
)

// LocalFS stores objects as files below a root directory.
type LocalFS struct {
	root string

	// afterMkdir runs between creating the parent directory and the rename.
	afterMkdir func(dir string)
}

// NewLocalFS creates a filesystem backend rooted at root.
func NewLocalFS(root string) (*LocalFS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalFS{root: abs}, nil
}

func (l *LocalFS) Name() string { return "fs" }

// Put streams r into a temp file, hashing as it goes, then renames it over key.
func (l *LocalFS) Put(ctx context.Context, key string, r io.Reader, _ string) (PutResult, error) {
	var zero PutResult
	if l == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := l.pathFromKey(key)
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, tmpDirName), "put-*")
	if err != nil {
		return zero, models.StorageIO(key, false, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return zero, models.StorageIO(key, false, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, models.StorageIO(key, false, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, models.StorageIO(key, false, err)
	}

	if err := l.place(tmpPath, dst); err != nil {
		cleanup()
		return zero, models.StorageIO(key, errors.Is(err, os.ErrNotExist), err)
	}

	return PutResult{Key: key, SHA256: hex.EncodeToString(h.Sum(nil)), SizeBytes: n}, nil
}

// Open returns a reader for the object content.
func (l *LocalFS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if l == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, models.StorageIO(key, false, err)
	}
	return f, nil
}

func (l *LocalFS) Exists(ctx context.Context, key string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, models.StorageIO(key, false, err)
	}
	return true, nil
}

// Delete removes one object and prunes empty parent directories.
func (l *LocalFS) Delete(ctx context.Context, key string) error {
	if l == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.StorageIO(key, false, err)
	}
	l.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

func (l *LocalFS) List(ctx context.Context, prefix string) ([]string, error) {
	if l == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk only the deepest directory covered by the prefix.
	walkRoot := l.root
	if dir, _ := filepath.Split(filepath.FromSlash(prefix)); dir != "" {
		walkRoot = filepath.Join(l.root, filepath.Clean(dir))
	}

	keys := []string{}
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == tmpDirName && filepath.Dir(path) == l.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, models.StorageIO(prefix, false, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalFS) pathFromKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if clean == tmpDirName || strings.HasPrefix(clean, tmpDirName+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(l.root, clean), nil
}

// place renames tmp over dst. Delete prunes empty directories without
// coordinating with Put, so the parent may vanish before the rename lands.
func (l *LocalFS) place(tmp, dst string) error {
	dir := filepath.Dir(dst)
	var err error
	for attempt := 0; attempt < placeAttempts; attempt++ {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if l.afterMkdir != nil {
			l.afterMkdir(dir)
		}
		err = os.Rename(tmp, dst)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if _, statErr := os.Stat(tmp); statErr != nil {
			return err
		}
	}
	return err
}

func (l *LocalFS) pruneEmptyDirs(dir string) {
	for dir != l.root && strings.HasPrefix(dir, l.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
