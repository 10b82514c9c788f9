package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vignette/internal/models"
)

const imageColumns = "id, original_key, filename, media_type, format, width, height, size_bytes, sha256, created_at, deleting_at"

// CreateImage inserts one image row.
func (s *Store) CreateImage(ctx context.Context, img *models.ImageRecord) error {
	if img == nil {
		return fmt.Errorf("image is required")
	}
	if strings.TrimSpace(img.ID) == "" {
		return fmt.Errorf("image id is required")
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		img.ID,
		img.OriginalKey,
		nullIfEmpty(strings.TrimSpace(img.Filename)),
		img.MediaType,
		string(img.Format),
		img.Width,
		img.Height,
		img.SizeBytes,
		img.SHA256,
		formatTime(img.CreatedAt),
		nullTime(img.DeletingAt),
	)
	return err
}

// GetImage returns one image row, or nil when it does not exist.
func (s *Store) GetImage(ctx context.Context, id string) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	return scanImage(row)
}

// ImageExists checks whether an image row exists by id, marked or not.
func (s *Store) ImageExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM images WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListImages lists live images ordered by created_at descending.
func (s *Store) ListImages(ctx context.Context, limit, offset int) ([]models.ImageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+imageColumns+` FROM images
		WHERE deleting_at IS NULL
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

// CountImages returns the number of live images.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images WHERE deleting_at IS NULL").Scan(&count)
	return count, err
}

// MarkImageDeleting stamps deleting_at on a live row. It reports false when
// the row does not exist. An already marked row keeps its original stamp.
func (s *Store) MarkImageDeleting(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE images SET deleting_at = COALESCE(deleting_at, ?) WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListDeletingImages returns rows left marked by interrupted deletes.
func (s *Store) ListDeletingImages(ctx context.Context, limit int) ([]models.ImageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+imageColumns+` FROM images
		WHERE deleting_at IS NOT NULL
		ORDER BY deleting_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

// DeleteImage deletes one image row. Derivative rows cascade.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id)
	return err
}

// OriginalKeyReferenced reports whether any image row points at key.
func (s *Store) OriginalKeyReferenced(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM images WHERE original_key = ? LIMIT 1", key).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func collectImages(rows *sql.Rows) ([]models.ImageRecord, error) {
	defer rows.Close()

	images := []models.ImageRecord{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if img == nil {
			continue
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func scanImage(scanner interface {
	Scan(dest ...any) error
}) (*models.ImageRecord, error) {
	img := models.ImageRecord{}

	var filename, deletingAt sql.NullString
	var format, createdAt string

	err := scanner.Scan(
		&img.ID,
		&img.OriginalKey,
		&filename,
		&img.MediaType,
		&format,
		&img.Width,
		&img.Height,
		&img.SizeBytes,
		&img.SHA256,
		&createdAt,
		&deletingAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	img.Filename = filename.String
	img.Format = models.Format(format)

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	img.CreatedAt = parsedCreated

	if deletingAt.Valid {
		parsed, err := parseTime(deletingAt.String)
		if err != nil {
			return nil, err
		}
		img.DeletingAt = &parsed
	}

	return &img, nil
}
