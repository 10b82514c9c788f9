package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vignette/internal/models"
)

const derivativeColumns = "image_id, preset, fingerprint, blob_key, media_type, width, height, size_bytes, generated_at"

// ErrImageGone is returned by UpsertDerivative when the image row is missing
// or marked for deletion.
var ErrImageGone = errors.New("image is gone or being deleted")

// UpsertDerivative records the derivative for (image_id, preset), replacing
// any previous row in one statement. Images marked for deletion accept no
// new derivatives.
func (s *Store) UpsertDerivative(ctx context.Context, d *models.Derivative) error {
	if d == nil {
		return fmt.Errorf("derivative is required")
	}
	if d.ImageID == "" || d.Preset == "" {
		return fmt.Errorf("derivative image_id and preset are required")
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO derivatives (`+derivativeColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM images WHERE id = ? AND deleting_at IS NULL)
		ON CONFLICT(image_id, preset) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			blob_key = excluded.blob_key,
			media_type = excluded.media_type,
			width = excluded.width,
			height = excluded.height,
			size_bytes = excluded.size_bytes,
			generated_at = excluded.generated_at
	`,
		d.ImageID,
		d.Preset,
		d.Fingerprint,
		d.BlobKey,
		d.MediaType,
		d.Width,
		d.Height,
		d.SizeBytes,
		formatTime(d.GeneratedAt),
		d.ImageID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrImageGone
	}
	return nil
}

// GetDerivative returns the derivative row for (imageID, preset), or nil.
func (s *Store) GetDerivative(ctx context.Context, imageID, preset string) (*models.Derivative, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+derivativeColumns+` FROM derivatives WHERE image_id = ? AND preset = ?`, imageID, preset)
	return scanDerivative(row)
}

// ListDerivatives lists all derivative rows of one image ordered by preset.
func (s *Store) ListDerivatives(ctx context.Context, imageID string) ([]models.Derivative, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+derivativeColumns+` FROM derivatives WHERE image_id = ? ORDER BY preset ASC`, imageID)
	if err != nil {
		return nil, err
	}
	return collectDerivatives(rows)
}

// ListStaleDerivatives returns rows whose preset is not in current or whose
// fingerprint differs from the current one for their preset.
func (s *Store) ListStaleDerivatives(ctx context.Context, current map[string]string, limit int) ([]models.Derivative, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+derivativeColumns+` FROM derivatives ORDER BY generated_at ASC`)
	if err != nil {
		return nil, err
	}
	all, err := collectDerivatives(rows)
	if err != nil {
		return nil, err
	}

	stale := []models.Derivative{}
	for _, d := range all {
		fp, ok := current[d.Preset]
		if ok && fp == d.Fingerprint {
			continue
		}
		stale = append(stale, d)
		if len(stale) >= limit {
			break
		}
	}
	return stale, nil
}

// DeleteDerivative deletes one derivative row.
func (s *Store) DeleteDerivative(ctx context.Context, imageID, preset string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM derivatives WHERE image_id = ? AND preset = ?", imageID, preset)
	return err
}

// DeleteDerivativeIfKey deletes the row only while it still points at blobKey,
// so a concurrent regeneration is not undone. It reports whether a row went.
func (s *Store) DeleteDerivativeIfKey(ctx context.Context, imageID, preset, blobKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM derivatives WHERE image_id = ? AND preset = ? AND blob_key = ?", imageID, preset, blobKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteDerivatives deletes every derivative row of one image.
func (s *Store) DeleteDerivatives(ctx context.Context, imageID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM derivatives WHERE image_id = ?", imageID)
	return err
}

// DerivativeKeyReferenced reports whether any derivative row points at key.
func (s *Store) DerivativeKeyReferenced(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM derivatives WHERE blob_key = ? LIMIT 1", key).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func collectDerivatives(rows *sql.Rows) ([]models.Derivative, error) {
	defer rows.Close()

	out := []models.Derivative{}
	for rows.Next() {
		d, err := scanDerivative(rows)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDerivative(scanner interface {
	Scan(dest ...any) error
}) (*models.Derivative, error) {
	d := models.Derivative{}
	var generatedAt string

	err := scanner.Scan(
		&d.ImageID,
		&d.Preset,
		&d.Fingerprint,
		&d.BlobKey,
		&d.MediaType,
		&d.Width,
		&d.Height,
		&d.SizeBytes,
		&generatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsed, err := parseTime(generatedAt)
	if err != nil {
		return nil, err
	}
	d.GeneratedAt = parsed
	return &d, nil
}
