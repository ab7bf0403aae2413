package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/melodeon/melodeon/internal/metrics"
)

// Albums returns all albums in the library.
func (s *Store) Albums(ctx context.Context) ([]Album, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("albums", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT title, link, cover_image_source_id, created_at, updated_at
		 FROM albums ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("query albums: %w", err)
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.Title, &a.Link, &a.CoverImageSourceID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// AlbumsWithoutCover returns the titles of albums that have no cover image.
func (s *Store) AlbumsWithoutCover(ctx context.Context) ([]string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("albums_without_cover", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT title FROM albums WHERE cover_image_source_id IS NULL ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("query albums without cover: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan album title: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// InsertAlbumWithTag creates the album and its tag if they do not exist yet.
// Returns whether a new album row was created.
func (s *Store) InsertAlbumWithTag(ctx context.Context, title string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_album_with_tag", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO albums (title) VALUES ($1) ON CONFLICT (title) DO NOTHING`, title)
	if err != nil {
		return false, fmt.Errorf("insert album: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tags (name, album_id) VALUES ($1, $1) ON CONFLICT (name) DO NOTHING`,
		title); err != nil {
		return false, fmt.Errorf("insert album tag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return created > 0, nil
}

// InsertAlbumWithCoverAndTag creates the album with a cover image source and
// its tag. The cover source at path must already be written to the backend.
// If the album already has a cover the existing cover is kept and no source
// row is inserted. Returns whether a new album row was created.
func (s *Store) InsertAlbumWithCoverAndTag(ctx context.Context, title, path, mimeType, backend string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_album_with_cover", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existed := true
	var coverID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT cover_image_source_id FROM albums WHERE title = $1`, title).Scan(&coverID)
	if err == sql.ErrNoRows {
		existed = false
	} else if err != nil {
		return false, fmt.Errorf("query album: %w", err)
	}

	if !coverID.Valid {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO sources (path, mime_type, storage_backend_name) VALUES ($1, $2, $3) RETURNING id`,
			path, mimeType, backend).Scan(&coverID.Int64); err != nil {
			return false, fmt.Errorf("insert cover source: %w", err)
		}
		coverID.Valid = true
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO albums (title, cover_image_source_id) VALUES ($1, $2)
		 ON CONFLICT (title) DO UPDATE SET cover_image_source_id = EXCLUDED.cover_image_source_id, updated_at = now()`,
		title, coverID.Int64); err != nil {
		return false, fmt.Errorf("upsert album: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tags (name, album_id) VALUES ($1, $1) ON CONFLICT (name) DO NOTHING`,
		title); err != nil {
		return false, fmt.Errorf("insert album tag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return !existed, nil
}
