package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/melodeon/melodeon/internal/metrics"
)

// Sources returns all sources in the library.
func (s *Store) Sources(ctx context.Context) ([]Source, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("sources", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, mime_type, storage_backend_name, created_at, updated_at
		 FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Path, &src.MimeType, &src.StorageBackendName,
			&src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SourcesForSong returns the sources linked to the given song.
func (s *Store) SourcesForSong(ctx context.Context, songID int64) ([]Source, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("sources_for_song", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.path, s.mime_type, s.storage_backend_name, s.created_at, s.updated_at
		 FROM songs_to_sources sts
		 JOIN sources s ON s.id = sts.source_id
		 WHERE sts.song_id = $1
		 ORDER BY s.id`, songID)
	if err != nil {
		return nil, fmt.Errorf("query sources for song: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Path, &src.MimeType, &src.StorageBackendName,
			&src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SourcesWithSongIDs returns every source that belongs to a song, joined with
// the song id.
func (s *Store) SourcesWithSongIDs(ctx context.Context) ([]SourceWithSongID, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("sources_with_song_ids", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT sts.song_id, s.id, s.path, s.mime_type, s.storage_backend_name, s.created_at, s.updated_at
		 FROM songs_to_sources sts
		 JOIN sources s ON s.id = sts.source_id
		 ORDER BY sts.song_id, s.id`)
	if err != nil {
		return nil, fmt.Errorf("query sources with song ids: %w", err)
	}
	defer rows.Close()

	var sources []SourceWithSongID
	for rows.Next() {
		var src SourceWithSongID
		if err := rows.Scan(&src.SongID, &src.ID, &src.Path, &src.MimeType,
			&src.StorageBackendName, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// SourceWithBackend returns the source with the given id together with its
// storage backend, or (nil, nil, nil) if the source does not exist.
func (s *Store) SourceWithBackend(ctx context.Context, id int64) (*Source, *Backend, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("source_with_backend", time.Since(start)) }()

	var src Source
	var b Backend
	var rawConfig string
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.path, s.mime_type, s.storage_backend_name, s.created_at, s.updated_at,
		        b.name, b.config, b.created_at, b.updated_at
		 FROM sources s
		 JOIN storage_backends b ON b.name = s.storage_backend_name
		 WHERE s.id = $1`, id).
		Scan(&src.ID, &src.Path, &src.MimeType, &src.StorageBackendName,
			&src.CreatedAt, &src.UpdatedAt,
			&b.Name, &rawConfig, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query source with backend: %w", err)
	}

	if err := json.Unmarshal([]byte(rawConfig), &b.Config); err != nil {
		return nil, nil, fmt.Errorf("parse config of backend %q: %w", b.Name, err)
	}
	return &src, &b, nil
}
