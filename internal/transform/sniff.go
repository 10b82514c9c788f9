package transform

import (
	"github.com/gabriel-vasile/mimetype"

	"vignette/internal/models"
)

// SniffMediaType inspects content bytes and returns the detected media type.
// Declared types from clients are never consulted.
func SniffMediaType(data []byte) string {
	return mimetype.Detect(data).String()
}

// sniffFormat maps the sniffed media type onto a supported source format.
func sniffFormat(data []byte) (models.Format, string, bool) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if format, ok := models.FormatFromMediaType(m.String()); ok {
			return format, format.MediaType(), true
		}
	}
	return "", mt.String(), false
}
