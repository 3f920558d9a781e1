// Package catalog is the Postgres metadata store for uploaded media. It
// also answers the batched fingerprint lookups the duplicate detector
// runs before a batch starts.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/PaulBabatuyi/MediaQueue/internal/catalog/migrations"
)

type Catalog struct {
	db *sql.DB
}

func New(connectionString string) (*Catalog, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, c.db, ".")
}

func (c *Catalog) SaveFile(ctx context.Context, rec *FileRecord) error {
	query := `
        INSERT INTO media_files (id, user_id, filename, content_type, size, fingerprint, storage_path, uploaded_at, deleted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := c.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Name,
		rec.ContentType,
		rec.Size,
		rec.Fingerprint,
		rec.StoragePath,
		time.Now(),
		nil,
	)

	return err
}

// CheckExists answers which of the given fingerprints already have a live
// catalog row. One round trip per batch.
func (c *Catalog) CheckExists(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	found := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return found, nil
	}

	query := `
        SELECT DISTINCT fingerprint
        FROM media_files
        WHERE fingerprint = ANY($1) AND deleted_at IS NULL
    `
	rows, err := c.db.QueryContext(ctx, query, pq.Array(fingerprints))
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		found[fp] = true
	}
	return found, rows.Err()
}

func (c *Catalog) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	query := `
        SELECT id, user_id, filename, content_type, size, fingerprint, storage_path,
               thumb_small, thumb_medium, thumb_large, width, height, uploaded_at, deleted_at
        FROM media_files
        WHERE id = $1 AND deleted_at IS NULL
    `

	var rec FileRecord
	err := c.db.QueryRowContext(ctx, query, fileID).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Name,
		&rec.ContentType,
		&rec.Size,
		&rec.Fingerprint,
		&rec.StoragePath,
		&rec.ThumbSmall,
		&rec.ThumbMedium,
		&rec.ThumbLarge,
		&rec.Width,
		&rec.Height,
		&rec.UploadedAt,
		&rec.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (c *Catalog) ListFiles(ctx context.Context, userID string, limit, offset int) ([]*FileRecord, error) {
	query := `
        SELECT id, user_id, filename, content_type, size, fingerprint, storage_path, uploaded_at
        FROM media_files
        WHERE user_id = $1 AND deleted_at IS NULL
        ORDER BY uploaded_at DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := c.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ContentType, &f.Size, &f.Fingerprint, &f.StoragePath, &f.UploadedAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// SetThumbnails records the generated renditions and source dimensions
// for an uploaded image.
func (c *Catalog) SetThumbnails(ctx context.Context, fileID, small, medium, large string, width, height int) error {
	query := `
        UPDATE media_files
        SET thumb_small = $2, thumb_medium = $3, thumb_large = $4, width = $5, height = $6
        WHERE id = $1 AND deleted_at IS NULL
    `
	_, err := c.db.ExecContext(ctx, query, fileID, small, medium, large, width, height)
	return err
}

func (c *Catalog) DeleteFile(ctx context.Context, fileID, userID string) error {
	query := `
        UPDATE media_files
        SET deleted_at = NOW()
        WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
    `
	result, err := c.db.ExecContext(ctx, query, fileID, userID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
