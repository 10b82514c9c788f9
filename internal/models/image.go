package models

import "time"

// ImageRecord is the persisted metadata of one uploaded original image.
type ImageRecord struct {
	ID          string     `json:"id"`
	OriginalKey string     `json:"original_key"`
	Filename    string     `json:"filename,omitempty"`
	MediaType   string     `json:"media_type"`
	Format      Format     `json:"format"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	SizeBytes   int64      `json:"size_bytes"`
	SHA256      string     `json:"sha256"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletingAt  *time.Time `json:"deleting_at,omitempty"`
}

// Deleting reports whether the record is mid-way through a delete.
func (r *ImageRecord) Deleting() bool {
	return r != nil && r.DeletingAt != nil
}

// Derivative is one generated rendition of an image for a preset.
type Derivative struct {
	ImageID     string    `json:"image_id"`
	Preset      string    `json:"preset"`
	Fingerprint string    `json:"fingerprint"`
	BlobKey     string    `json:"blob_key"`
	MediaType   string    `json:"media_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	SizeBytes   int64     `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ImageInfo describes a decoded image without its pixels.
type ImageInfo struct {
	Format    Format
	MediaType string
	Width     int
	Height    int
}
