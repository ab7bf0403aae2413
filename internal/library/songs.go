package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/melodeon/melodeon/internal/metrics"
)

// Songs returns all songs with the names of their tags.
func (s *Store) Songs(ctx context.Context) ([]SongWithTags, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("songs", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.created_at, s.updated_at,
		        array_remove(array_agg(stt.tag_id), NULL)
		 FROM songs s
		 LEFT JOIN songs_to_tags stt ON stt.song_id = s.id
		 GROUP BY s.id
		 ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer rows.Close()

	var songs []SongWithTags
	for rows.Next() {
		var song SongWithTags
		var tags pq.StringArray
		if err := rows.Scan(&song.ID, &song.Title, &song.CreatedAt, &song.UpdatedAt, &tags); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		song.Tags = []string(tags)
		if song.Tags == nil {
			song.Tags = []string{}
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// SongByID returns the song with the given id, or nil if it does not exist.
func (s *Store) SongByID(ctx context.Context, id int64) (*Song, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("song_by_id", time.Since(start)) }()

	var song Song
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM songs WHERE id = $1`, id).
		Scan(&song.ID, &song.Title, &song.CreatedAt, &song.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query song: %w", err)
	}
	return &song, nil
}

// InsertSongWithSource creates a song and its source in a single transaction
// and returns the new song id.
func (s *Store) InsertSongWithSource(ctx context.Context, title, path, mimeType, backend string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_song_with_source", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var songID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO songs (title) VALUES ($1) RETURNING id`, title).Scan(&songID); err != nil {
		return 0, fmt.Errorf("insert song: %w", err)
	}

	var sourceID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO sources (path, mime_type, storage_backend_name) VALUES ($1, $2, $3) RETURNING id`,
		path, mimeType, backend).Scan(&sourceID); err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO songs_to_sources (song_id, source_id) VALUES ($1, $2)`,
		songID, sourceID); err != nil {
		return 0, fmt.Errorf("link song to source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return songID, nil
}

// AddSongTags links the song to every existing tag named in tags. Unknown tag
// names are skipped, as are links that already exist. Returns how many links
// were added.
func (s *Store) AddSongTags(ctx context.Context, songID int64, tags []string) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("add_song_tags", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO songs_to_tags (song_id, tag_id)
		 SELECT $1, name FROM tags WHERE name = ANY($2)
		 ON CONFLICT DO NOTHING`,
		songID, pq.Array(tags))
	if err != nil {
		return 0, fmt.Errorf("insert song tags: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// DeleteSong removes a song, its tag links and any sources that belonged
// only to it. Sources still referenced as album covers or artist images
// survive. Returns the deleted source rows so callers can clean up the
// backing objects.
func (s *Store) DeleteSong(ctx context.Context, id int64) ([]Source, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_song", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT source_id FROM songs_to_sources WHERE song_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query song sources: %w", err)
	}
	var sourceIDs []int64
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		sourceIDs = append(sourceIDs, sid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate song sources: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM songs WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete song: %w", err)
	}

	var deleted []Source
	if len(sourceIDs) > 0 {
		rows, err := tx.QueryContext(ctx,
			`DELETE FROM sources
			 WHERE id = ANY($1)
			   AND NOT EXISTS (SELECT 1 FROM songs_to_sources WHERE source_id = sources.id)
			   AND NOT EXISTS (SELECT 1 FROM albums WHERE cover_image_source_id = sources.id)
			   AND NOT EXISTS (SELECT 1 FROM artists WHERE image_source_id = sources.id)
			 RETURNING id, path, mime_type, storage_backend_name, created_at, updated_at`,
			pq.Array(sourceIDs))
		if err != nil {
			return nil, fmt.Errorf("delete orphaned sources: %w", err)
		}
		for rows.Next() {
			var src Source
			if err := rows.Scan(&src.ID, &src.Path, &src.MimeType, &src.StorageBackendName,
				&src.CreatedAt, &src.UpdatedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan deleted source: %w", err)
			}
			deleted = append(deleted, src)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate deleted sources: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}
