// Package transform decodes, resizes and re-encodes images for presets.
package transform

import (
	"context"

	"vignette/internal/models"
)

// Output is one encoded derivative.
type Output struct {
	Data      []byte
	Format    models.Format
	MediaType string
	Width     int
	Height    int
}

// Engine turns source bytes plus a preset into derivative bytes. For a given
// source and preset the output bytes are identical on every call.
type Engine interface {
	// Probe fully decodes data and reports its format and dimensions.
	Probe(data []byte) (models.ImageInfo, error)
	Transform(ctx context.Context, data []byte, spec models.PresetSpec) (Output, error)
}
