package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/library"
	"github.com/melodeon/melodeon/internal/logging"
	"github.com/melodeon/melodeon/internal/storage"
)

// Library is the slice of the metadata store the coordinator writes through.
// *library.Store satisfies it.
type Library interface {
	BackendByName(ctx context.Context, name string) (*library.Backend, error)
	InsertSongWithSource(ctx context.Context, title, path, mimeType, backend string) (int64, error)
	InsertAlbumWithTag(ctx context.Context, title string) (bool, error)
	InsertAlbumWithCoverAndTag(ctx context.Context, title, path, mimeType, backend string) (bool, error)
	InsertArtistsWithTags(ctx context.Context, names []string) (int64, error)
	AddSongTags(ctx context.Context, songID int64, tags []string) (int64, error)
}

// Coordinator persists uploaded files: raw bytes to a storage backend first,
// then metadata rows in the library. Album and artist bookkeeping failures
// are isolated from each other and from the core song insert.
type Coordinator struct {
	store Library
	conns *storage.ConnCache
	now   func() time.Time
}

// NewCoordinator creates a persistence coordinator over the given store and
// connection cache.
func NewCoordinator(store Library, conns *storage.ConnCache) *Coordinator {
	return &Coordinator{store: store, conns: conns, now: time.Now}
}

// songPath builds the storage path for an uploaded song. Slashes in the
// title would change the path layout, so they are substituted.
func songPath(title, mimeType string, ts time.Time) string {
	return fmt.Sprintf("songs/%s-%d.%s",
		strings.ReplaceAll(title, "/", "~slash~"),
		ts.Unix(),
		mimeSubtype(mimeType))
}

// CoverPath builds the storage path for an album cover image.
func CoverPath(album, mimeType string) string {
	return fmt.Sprintf("images/%s.%s",
		strings.ReplaceAll(album, "/", "~slash~"),
		mimeSubtype(mimeType))
}

func mimeSubtype(mimeType string) string {
	if _, sub, ok := strings.Cut(mimeType, "/"); ok {
		return sub
	}
	return mimeType
}

// Persist writes the file to the selected backend and records it in the
// library. A backend write or song insert failure aborts the call and leaves
// no metadata behind; the client may retry with new metadata without
// re-uploading.
func (c *Coordinator) Persist(ctx context.Context, data []byte, mimeType string, meta FinalMetadata, cover *AlbumCover) (Result, error) {
	backend, err := c.store.BackendByName(ctx, meta.StorageBackend)
	if err != nil {
		return Result{}, err
	}
	if backend == nil {
		return Result{}, fmt.Errorf("unknown storage backend %q", meta.StorageBackend)
	}

	conn, err := c.conns.GetOrCreate(ctx, backend.Name, backend.Config)
	if err != nil {
		return Result{}, fmt.Errorf("connect to backend %q: %w", backend.Name, err)
	}

	// Storage write comes first: a failed write must never leave a
	// metadata row pointing at bytes that do not exist.
	path := songPath(meta.Title, mimeType, c.now())
	if err := conn.PutObject(ctx, path, bytes.NewReader(data), int64(len(data))); err != nil {
		return Result{}, fmt.Errorf("write song to backend %q: %w", backend.Name, err)
	}

	songID, err := c.store.InsertSongWithSource(ctx, meta.Title, path, mimeType, backend.Name)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if meta.Album != nil {
		c.persistAlbum(ctx, conn, songID, *meta.Album, backend.Name, cover, &res)
	}
	if len(meta.Artists) > 0 {
		c.persistArtists(ctx, songID, meta.Artists, &res)
	}
	return res, nil
}

func (c *Coordinator) persistAlbum(ctx context.Context, conn storage.Backend, songID int64, album, backendName string, cover *AlbumCover, res *Result) {
	var err error
	if cover != nil {
		path := CoverPath(album, cover.MimeType)
		err = conn.PutObject(ctx, path, bytes.NewReader(cover.Data), int64(len(cover.Data)))
		if err == nil {
			_, err = c.store.InsertAlbumWithCoverAndTag(ctx, album, path, cover.MimeType, backendName)
		}
	} else {
		_, err = c.store.InsertAlbumWithTag(ctx, album)
	}

	if err != nil {
		res.CreatedAlbum = boolPtr(false)
		res.AddedAlbum = boolPtr(false)
		logging.Error("creating album failed",
			zap.String("album", album),
			zap.Error(err))
		return
	}
	res.CreatedAlbum = boolPtr(true)

	if _, err := c.store.AddSongTags(ctx, songID, []string{album}); err != nil {
		res.AddedAlbum = boolPtr(false)
		logging.Error("linking album tag to song failed",
			zap.Int64("song_id", songID),
			zap.String("album", album),
			zap.Error(err))
		return
	}
	res.AddedAlbum = boolPtr(true)
}

func (c *Coordinator) persistArtists(ctx context.Context, songID int64, artists []string, res *Result) {
	if _, err := c.store.InsertArtistsWithTags(ctx, artists); err != nil {
		res.CreatedArtists = boolPtr(false)
		logging.Error("creating artist tags failed",
			zap.Strings("artists", artists),
			zap.Error(err))
		return
	}
	res.CreatedArtists = boolPtr(true)

	if _, err := c.store.AddSongTags(ctx, songID, artists); err != nil {
		res.AddedArtists = boolPtr(false)
		logging.Error("linking artist tags to song failed",
			zap.Int64("song_id", songID),
			zap.Error(err))
		return
	}
	res.AddedArtists = boolPtr(true)
}

func boolPtr(b bool) *bool {
	return &b
}
