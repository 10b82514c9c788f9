package images

import (
	"context"
	"fmt"

	"vignette/internal/blobstore"
	"vignette/internal/derivative"
)

// GCOptions controls one garbage collection run.
type GCOptions struct {
	BatchSize int
	Apply     bool
}

// GCResult reports one garbage collection run.
type GCResult struct {
	DryRun bool `json:"dry_run"`

	PendingDeletes int      `json:"pending_deletes"`
	ResumedDeletes int      `json:"resumed_deletes"`
	FailedDeletes  []string `json:"failed_deletes,omitempty"`

	Stale derivative.StaleResult `json:"stale"`

	OrphanCandidates int      `json:"orphan_candidates"`
	OrphansDeleted   int      `json:"orphans_deleted"`
	FailedKeys       []string `json:"failed_keys,omitempty"`
}

// CollectGarbage finishes interrupted deletes, drops derivatives of retired
// or changed presets, and removes blobs nothing references. Without Apply it
// only counts.
func (m *Manager) CollectGarbage(ctx context.Context, opts GCOptions) (GCResult, error) {
	result := GCResult{DryRun: !opts.Apply}
	if m == nil {
		return result, fmt.Errorf("image manager is not configured")
	}
	if m.purger == nil {
		return result, fmt.Errorf("derivative purger is not configured")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = m.gcBatchSize
	}

	pending, err := m.store.ListDeletingImages(ctx, batch)
	if err != nil {
		return result, err
	}
	result.PendingDeletes = len(pending)
	if opts.Apply && len(pending) > 0 {
		done, failed, err := m.ResumeDeletes(ctx, batch)
		if err != nil {
			return result, err
		}
		result.ResumedDeletes = done
		result.FailedDeletes = failed
	}

	stale, err := m.purger.CollectStale(ctx, batch, opts.Apply)
	if err != nil {
		return result, fmt.Errorf("collect stale derivatives: %w", err)
	}
	result.Stale = stale

	orphans, err := m.findOrphans(ctx, batch)
	if err != nil {
		return result, err
	}
	result.OrphanCandidates = len(orphans)
	if opts.Apply {
		for _, key := range orphans {
			if err := m.backend.Delete(ctx, key); err != nil {
				m.log().Warn("orphan blob delete failed", "key", key, "error", err)
				result.FailedKeys = append(result.FailedKeys, key)
				continue
			}
			result.OrphansDeleted++
		}
	}

	m.log().Info("gc finished",
		"dry_run", result.DryRun,
		"pending_deletes", result.PendingDeletes,
		"stale", result.Stale.Candidates,
		"orphans", result.OrphanCandidates,
	)
	return result, nil
}

// findOrphans lists blobs under the image root that no row references.
// Originals of in-flight uploads and derivatives at the key their preset
// currently produces are skipped: both are written before their row.
func (m *Manager) findOrphans(ctx context.Context, limit int) ([]string, error) {
	keys, err := m.backend.List(ctx, blobstore.RootPrefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	live := map[string]bool{}
	imageLive := func(id string) (bool, error) {
		if ok, seen := live[id]; seen {
			return ok, nil
		}
		ok, err := m.store.ImageExists(ctx, id)
		if err != nil {
			return false, err
		}
		live[id] = ok
		return ok, nil
	}

	var orphans []string
	for _, key := range keys {
		if len(orphans) >= limit {
			break
		}
		id, ok := blobstore.ImageIDFromKey(key)
		if !ok || m.uploading(id) {
			continue
		}

		if blobstore.IsOriginalKey(key) {
			referenced, err := m.store.OriginalKeyReferenced(ctx, key)
			if err != nil {
				return nil, err
			}
			if !referenced {
				orphans = append(orphans, key)
			}
			continue
		}

		exists, err := imageLive(id)
		if err != nil {
			return nil, err
		}
		if exists {
			referenced, err := m.derivatives.DerivativeKeyReferenced(ctx, key)
			if err != nil {
				return nil, err
			}
			if referenced || m.purger.CurrentKey(id, key) {
				continue
			}
		}
		orphans = append(orphans, key)
	}
	return orphans, nil
}
