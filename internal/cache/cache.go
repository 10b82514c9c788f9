// Package cache is the fast lookup tier in front of the derivative table.
// It only ever holds references to stored derivatives, never image bytes.
package cache

import (
	"context"
	"sync"

	"vignette/internal/models"
)

// Index maps (image identity, preset) to a stored derivative reference.
type Index interface {
	Get(ctx context.Context, imageID, preset string) (*models.Derivative, bool, error)
	Set(ctx context.Context, d models.Derivative) error
	// Delete drops the given presets of an image, or all of them when none
	// are named.
	Delete(ctx context.Context, imageID string, presets ...string) error
	Close() error
}

// NoOp is an Index that never holds anything.
type NoOp struct{}

func (NoOp) Get(context.Context, string, string) (*models.Derivative, bool, error) {
	return nil, false, nil
}

func (NoOp) Set(context.Context, models.Derivative) error { return nil }
func (NoOp) Delete(context.Context, string, ...string) error { return nil }
func (NoOp) Close() error { return nil }

// Memory is an in-process Index.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]models.Derivative
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]map[string]models.Derivative{}}
}

func (m *Memory) Get(_ context.Context, imageID, preset string) (*models.Derivative, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.entries[imageID][preset]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (m *Memory) Set(_ context.Context, d models.Derivative) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPreset := m.entries[d.ImageID]
	if byPreset == nil {
		byPreset = map[string]models.Derivative{}
		m.entries[d.ImageID] = byPreset
	}
	byPreset[d.Preset] = d
	return nil
}

func (m *Memory) Delete(_ context.Context, imageID string, presets ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(presets) == 0 {
		delete(m.entries, imageID)
		return nil
	}
	for _, p := range presets {
		delete(m.entries[imageID], p)
	}
	if len(m.entries[imageID]) == 0 {
		delete(m.entries, imageID)
	}
	return nil
}

// Len returns the number of cached references.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, byPreset := range m.entries {
		n += len(byPreset)
	}
	return n
}

func (m *Memory) Close() error { return nil }
