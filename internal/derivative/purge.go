package derivative

import (
	"context"
	"errors"
	"fmt"

	"vignette/internal/blobstore"
	"vignette/internal/models"
)

// StaleResult summarizes a stale derivative sweep.
type StaleResult struct {
	Candidates     int      `json:"candidates"`
	Deleted        int      `json:"deleted"`
	ReclaimedBytes int64    `json:"reclaimed_bytes"`
	FailedKeys     []string `json:"failed_keys,omitempty"`
}

// Invalidate removes the stored derivative of imageID for preset, or every
// derivative of imageID when preset is empty. Blobs go first so a failure
// leaves rows that a retry can still find.
func (g *Generator) Invalidate(ctx context.Context, imageID, preset string) error {
	if g == nil {
		return fmt.Errorf("derivative generator is not configured")
	}
	if imageID == "" {
		return nil
	}
	if preset == "" {
		return g.Purge(ctx, imageID)
	}

	d, err := g.store.GetDerivative(ctx, imageID, preset)
	if err != nil {
		return fmt.Errorf("load derivative: %w", err)
	}
	if err := g.index.Delete(ctx, imageID, preset); err != nil {
		g.log().Warn("derivative index delete failed", "image_id", imageID, "preset", preset, "error", err)
	}
	if d == nil {
		return nil
	}
	if err := g.backend.Delete(ctx, d.BlobKey); err != nil {
		return models.DeletionFailed(imageID, err)
	}
	if _, err := g.store.DeleteDerivativeIfKey(ctx, imageID, preset, d.BlobKey); err != nil {
		return models.DeletionFailed(imageID, err)
	}
	return nil
}

// Purge removes every derivative of imageID: blobs recorded in the table,
// any unrecorded blobs under the image's derivative prefix, the rows, and
// the index entries.
func (g *Generator) Purge(ctx context.Context, imageID string) error {
	if g == nil {
		return fmt.Errorf("derivative generator is not configured")
	}
	if imageID == "" {
		return nil
	}

	rows, err := g.store.ListDerivatives(ctx, imageID)
	if err != nil {
		return models.DeletionFailed(imageID, fmt.Errorf("list derivatives: %w", err))
	}
	keys := map[string]struct{}{}
	for _, d := range rows {
		keys[d.BlobKey] = struct{}{}
	}
	listed, err := g.backend.List(ctx, blobstore.DerivativePrefix(imageID))
	if err != nil {
		return models.DeletionFailed(imageID, fmt.Errorf("list derivative blobs: %w", err))
	}
	for _, key := range listed {
		keys[key] = struct{}{}
	}

	var errs []error
	for key := range keys {
		if err := g.backend.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return models.DeletionFailed(imageID, errors.Join(errs...))
	}

	if err := g.store.DeleteDerivatives(ctx, imageID); err != nil {
		return models.DeletionFailed(imageID, err)
	}
	if err := g.index.Delete(ctx, imageID); err != nil {
		g.log().Warn("derivative index delete failed", "image_id", imageID, "error", err)
	}
	g.log().Debug("derivatives purged", "image_id", imageID, "blobs", len(keys))
	return nil
}

// CollectStale finds derivatives produced by a retired preset or an older
// version of a preset. With apply set it deletes them.
func (g *Generator) CollectStale(ctx context.Context, limit int, apply bool) (StaleResult, error) {
	var out StaleResult
	if g == nil {
		return out, fmt.Errorf("derivative generator is not configured")
	}
	stale, err := g.store.ListStaleDerivatives(ctx, g.presets.Fingerprints(), limit)
	if err != nil {
		return out, err
	}
	out.Candidates = len(stale)
	if !apply {
		for _, d := range stale {
			out.ReclaimedBytes += d.SizeBytes
		}
		return out, nil
	}

	for _, d := range stale {
		if err := g.backend.Delete(ctx, d.BlobKey); err != nil {
			out.FailedKeys = append(out.FailedKeys, d.BlobKey)
			g.log().Warn("stale derivative delete failed", "key", d.BlobKey, "error", err)
			continue
		}
		if _, err := g.store.DeleteDerivativeIfKey(ctx, d.ImageID, d.Preset, d.BlobKey); err != nil {
			out.FailedKeys = append(out.FailedKeys, d.BlobKey)
			continue
		}
		if err := g.index.Delete(ctx, d.ImageID, d.Preset); err != nil {
			g.log().Warn("derivative index delete failed", "image_id", d.ImageID, "preset", d.Preset, "error", err)
		}
		out.Deleted++
		out.ReclaimedBytes += d.SizeBytes
	}
	g.metrics.Reclaimed(ctx, out.ReclaimedBytes)
	return out, nil
}

// CurrentKey reports whether key is the blob key the current version of its
// preset would write for imageID. In-flight generations write such keys
// before recording them, so sweeps must leave them alone.
func (g *Generator) CurrentKey(imageID, key string) bool {
	for name, fp := range g.presets.Fingerprints() {
		spec, err := g.presets.Get(name)
		if err != nil {
			continue
		}
		if blobstore.DerivativeKey(imageID, name, fp, spec.Format.Extension()) == key {
			return true
		}
	}
	return false
}
