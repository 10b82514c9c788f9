package api

import (
	"time"

	"vignette/internal/derivative"
	"vignette/internal/images"
	"vignette/internal/models"
)

// Headers set on rendered derivatives.
const (
	ResultKindHeader  = "X-Vignette-Result"
	FingerprintHeader = "X-Vignette-Fingerprint"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse describes the running server.
type InfoResponse struct {
	SchemaVersion int      `json:"schema_version"`
	ImageCount    int      `json:"image_count"`
	Presets       []string `json:"presets"`
	Storage       string   `json:"storage"`
	Cache         string   `json:"cache"`
	MissingPolicy string   `json:"missing_policy"`
}

// ImageResponse is the public view of an image record.
type ImageResponse struct {
	models.ImageRecord
	Derivatives []models.Derivative `json:"derivatives,omitempty"`
}

// ImageListResponse is one page of images, newest first.
type ImageListResponse struct {
	Images []models.ImageRecord `json:"images"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// URLResponse carries a stable derivative URL.
type URLResponse struct {
	ImageID string `json:"image_id"`
	Preset  string `json:"preset"`
	URL     string `json:"url"`
}

// DerivativeResponse is the outcome of resolving an image for a preset.
type DerivativeResponse = derivative.Result

// PresetResponse is a preset spec with its fingerprint.
type PresetResponse struct {
	models.PresetSpec
	Fingerprint string `json:"fingerprint"`
}

// DeleteResponse confirms a delete.
type DeleteResponse struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// RenderResult describes bytes written by Client.RenderPreset.
type RenderResult struct {
	MediaType string
	Kind      string
	// Location is set when the server redirected to a placeholder.
	Location string
	Bytes    int64
}

// GCResponse summarizes a garbage collection run.
type GCResponse = images.GCResult
