package derivative

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"vignette/internal/models"
)

// ErrNoContent is returned when opening a placeholder result.
var ErrNoContent = errors.New("placeholder has no content")

// Kind says what a Result refers to.
type Kind string

const (
	// KindDerivative is a stored rendition of the image for the preset.
	KindDerivative Kind = "derivative"
	// KindPlaceholder stands in for an absent or dangling image.
	KindPlaceholder Kind = "placeholder"
	// KindOriginal is served when generation did not finish within the
	// configured wait.
	KindOriginal Kind = "original"
)

// MissingPolicy decides what a dangling image reference renders as.
type MissingPolicy string

const (
	MissingPlaceholder MissingPolicy = "placeholder"
	MissingError       MissingPolicy = "error"
)

func ParseMissingPolicy(raw string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MissingPlaceholder:
		return MissingPlaceholder, nil
	case MissingError:
		return MissingError, nil
	default:
		return "", fmt.Errorf("invalid missing image policy: %s", raw)
	}
}

// Result is the outcome of resolving (image, preset).
type Result struct {
	Kind       Kind                `json:"kind"`
	ImageID    string              `json:"image_id,omitempty"`
	Preset     string              `json:"preset"`
	Derivative *models.Derivative  `json:"derivative,omitempty"`
	Original   *models.ImageRecord `json:"original,omitempty"`

	// PlaceholderURL is set for placeholder results when one is configured.
	PlaceholderURL string `json:"placeholder_url,omitempty"`

	// Generated is true when this request waited on a fresh generation.
	Generated bool `json:"generated"`
}

// MediaType returns the media type of the bytes behind the result.
func (r Result) MediaType() string {
	switch r.Kind {
	case KindDerivative:
		if r.Derivative != nil {
			return r.Derivative.MediaType
		}
	case KindOriginal:
		if r.Original != nil {
			return r.Original.MediaType
		}
	}
	return ""
}

// Content is an open stream of result bytes.
type Content struct {
	io.ReadCloser
	Result    Result
	MediaType string
	SizeBytes int64
}
