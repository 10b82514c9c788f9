//go:build !webp

package transform

import (
	"image"
	"io"

	"vignette/internal/models"
)

// WebP encoding needs libwebp through cgo; build with -tags webp to enable it.
const webpEnabled = false

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	return models.UnsupportedFormat(string(models.FormatWebP))
}
