// Package binding ties image identities to the records of callers that own
// them. The owner's own persistence stays with the caller; the binder only
// orders core operations around it.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"vignette/internal/images"
	"vignette/internal/models"
)

// ErrSettled is returned when a replacement is committed or aborted twice.
var ErrSettled = errors.New("replacement already settled")

// Owner is a caller record holding at most one image identity. An empty
// identity means the owner has no image.
type Owner interface {
	ImageIdentity() string
	SetImageIdentity(id string)
}

// Images is the part of the image manager the binder drives.
type Images interface {
	SaveOriginal(ctx context.Context, up images.Upload) (models.ImageRecord, error)
	DeleteRecord(ctx context.Context, id string) error
}

// Binder runs owner-side image changes as two-step replacements.
type Binder struct {
	images Images
	logger *slog.Logger
}

func New(imgs Images, logger *slog.Logger) (*Binder, error) {
	if imgs == nil {
		return nil, fmt.Errorf("binder: image manager is required")
	}
	return &Binder{images: imgs, logger: logger}, nil
}

// Attach stores up and points owner at the new identity. The previous image
// is only removed by Commit, after the caller has persisted owner.
func (b *Binder) Attach(ctx context.Context, owner Owner, up images.Upload) (*Replacement, error) {
	if owner == nil {
		return nil, fmt.Errorf("owner is required")
	}
	rec, err := b.images.SaveOriginal(ctx, up)
	if err != nil {
		return nil, err
	}
	r := b.BeginReplace(owner, rec.ID)
	r.created = true
	return r, nil
}

// BeginReplace points owner at newID and remembers the identity it held.
func (b *Binder) BeginReplace(owner Owner, newID string) *Replacement {
	old := owner.ImageIdentity()
	owner.SetImageIdentity(newID)
	return &Replacement{binder: b, owner: owner, OldID: old, NewID: newID}
}

// Detach clears owner's identity. Commit deletes the detached image.
func (b *Binder) Detach(owner Owner) *Replacement {
	return b.BeginReplace(owner, "")
}

// DeleteOwned deletes the image owner points at and clears the identity.
// Call it before or after deleting the owner itself; an error means the
// owner must not be deleted.
func (b *Binder) DeleteOwned(ctx context.Context, owner Owner) error {
	if owner == nil {
		return fmt.Errorf("owner is required")
	}
	id := owner.ImageIdentity()
	if err := b.deleteImage(ctx, id); err != nil {
		return err
	}
	owner.SetImageIdentity("")
	return nil
}

// deleteImage treats an image that is already gone as deleted.
func (b *Binder) deleteImage(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := b.images.DeleteRecord(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		b.log().Warn("owned image already gone", "image_id", id)
		return nil
	}
	return err
}

func (b *Binder) log() *slog.Logger {
	if b != nil && b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// Replacement is a pending identity change on one owner.
type Replacement struct {
	OldID string
	NewID string

	binder  *Binder
	owner   Owner
	created bool

	mu      sync.Mutex
	settled bool
}

// Commit finishes the change once the owner is durably stored: the previous
// image and its derivatives are deleted.
func (r *Replacement) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return ErrSettled
	}
	if r.OldID != r.NewID {
		if err := r.binder.deleteImage(ctx, r.OldID); err != nil {
			return err
		}
	}
	r.settled = true
	return nil
}

// Abort undoes the change after the owner failed to persist: the owner gets
// its previous identity back and an image uploaded by Attach is deleted.
func (r *Replacement) Abort(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return ErrSettled
	}
	r.owner.SetImageIdentity(r.OldID)
	if r.created && r.NewID != r.OldID {
		if err := r.binder.deleteImage(ctx, r.NewID); err != nil {
			return err
		}
	}
	r.settled = true
	return nil
}
