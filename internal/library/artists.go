package library

import (
	"context"
	"fmt"
	"time"

	"github.com/melodeon/melodeon/internal/metrics"
)

// Artists returns all artists in the library.
func (s *Store) Artists(ctx context.Context) ([]Artist, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("artists", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, link, image_source_id, created_at, updated_at
		 FROM artists ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query artists: %w", err)
	}
	defer rows.Close()

	var artists []Artist
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.Name, &a.Link, &a.ImageSourceID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// InsertArtistsWithTags creates the named artists and a tag for each, in a
// single transaction. Existing artists and tags are left untouched. Returns
// how many new artist rows were created.
func (s *Store) InsertArtistsWithTags(ctx context.Context, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_artists_with_tags", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var created int64
	for _, name := range names {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO artists (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return 0, fmt.Errorf("insert artist %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		created += n

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name, artist_id) VALUES ($1, $1) ON CONFLICT (name) DO NOTHING`,
			name); err != nil {
			return 0, fmt.Errorf("insert artist tag %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return created, nil
}
