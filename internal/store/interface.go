package store

import (
	"context"
	"time"

	"vignette/internal/models"
)

// ImageStore is the metadata persistence surface for original images.
type ImageStore interface {
	CreateImage(ctx context.Context, img *models.ImageRecord) error
	GetImage(ctx context.Context, id string) (*models.ImageRecord, error)
	ImageExists(ctx context.Context, id string) (bool, error)
	ListImages(ctx context.Context, limit, offset int) ([]models.ImageRecord, error)
	CountImages(ctx context.Context) (int, error)
	MarkImageDeleting(ctx context.Context, id string, at time.Time) (bool, error)
	ListDeletingImages(ctx context.Context, limit int) ([]models.ImageRecord, error)
	DeleteImage(ctx context.Context, id string) error
	OriginalKeyReferenced(ctx context.Context, key string) (bool, error)
}

// DerivativeStore is the metadata persistence surface for derivatives.
//
// It is kept apart from ImageStore so the generator is the only writer of
// derivative rows.
type DerivativeStore interface {
	UpsertDerivative(ctx context.Context, d *models.Derivative) error
	GetDerivative(ctx context.Context, imageID, preset string) (*models.Derivative, error)
	ListDerivatives(ctx context.Context, imageID string) ([]models.Derivative, error)
	ListStaleDerivatives(ctx context.Context, current map[string]string, limit int) ([]models.Derivative, error)
	DeleteDerivative(ctx context.Context, imageID, preset string) error
	DeleteDerivativeIfKey(ctx context.Context, imageID, preset, blobKey string) (bool, error)
	DeleteDerivatives(ctx context.Context, imageID string) error
	DerivativeKeyReferenced(ctx context.Context, key string) (bool, error)
}

var (
	_ ImageStore      = (*Store)(nil)
	_ DerivativeStore = (*Store)(nil)
)
