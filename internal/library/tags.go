package library

import (
	"context"
	"fmt"
	"time"

	"github.com/melodeon/melodeon/internal/metrics"
)

// Tags returns all tags in the library.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("tags", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, background_color, text_color, border_color, artist_id, album_id, created_at, updated_at
		 FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Name, &t.BackgroundColor, &t.TextColor, &t.BorderColor,
			&t.ArtistID, &t.AlbumID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// TagsForSong returns the tags linked to the given song.
func (s *Store) TagsForSong(ctx context.Context, songID int64) ([]Tag, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("tags_for_song", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name, t.background_color, t.text_color, t.border_color, t.artist_id, t.album_id, t.created_at, t.updated_at
		 FROM songs_to_tags stt
		 JOIN tags t ON t.name = stt.tag_id
		 WHERE stt.song_id = $1
		 ORDER BY t.name`, songID)
	if err != nil {
		return nil, fmt.Errorf("query tags for song: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Name, &t.BackgroundColor, &t.TextColor, &t.BorderColor,
			&t.ArtistID, &t.AlbumID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
