package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/melodeon/melodeon/internal/library"
	"github.com/melodeon/melodeon/internal/storage"
)

func TestSongPath(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		title    string
		mimeType string
		want     string
	}{
		{"Simple Song", "audio/flac", "songs/Simple Song-1700000000.flac"},
		{"AC/DC Cover", "audio/mpeg", "songs/AC~slash~DC Cover-1700000000.mpeg"},
		{"a/b/c", "audio/mp3", "songs/a~slash~b~slash~c-1700000000.mp3"},
		{"NoSlashMime", "flac", "songs/NoSlashMime-1700000000.flac"},
	}
	for _, tt := range tests {
		if got := songPath(tt.title, tt.mimeType, ts); got != tt.want {
			t.Errorf("songPath(%q, %q) = %q, want %q", tt.title, tt.mimeType, got, tt.want)
		}
	}
}

func TestCoverPath(t *testing.T) {
	tests := []struct {
		album    string
		mimeType string
		want     string
	}{
		{"Endless Forms", "image/jpeg", "images/Endless Forms.jpeg"},
		{"Back/Forth", "image/png", "images/Back~slash~Forth.png"},
	}
	for _, tt := range tests {
		if got := CoverPath(tt.album, tt.mimeType); got != tt.want {
			t.Errorf("CoverPath(%q, %q) = %q, want %q", tt.album, tt.mimeType, got, tt.want)
		}
	}
}

// fakeLibrary records metadata writes and fails where told to.
type fakeLibrary struct {
	albumErr  error
	artistErr error

	songInserts   int
	albumInserts  []string
	artistBatches [][]string
	tagBatches    [][]string
}

func (l *fakeLibrary) BackendByName(_ context.Context, name string) (*library.Backend, error) {
	if name != "init" {
		return nil, nil
	}
	return &library.Backend{
		Name:   "init",
		Config: storage.BackendConfig{FS: &storage.FSConfig{Root: "/ignored"}},
	}, nil
}

func (l *fakeLibrary) InsertSongWithSource(_ context.Context, title, path, mimeType, backend string) (int64, error) {
	l.songInserts++
	return 42, nil
}

func (l *fakeLibrary) InsertAlbumWithTag(_ context.Context, title string) (bool, error) {
	if l.albumErr != nil {
		return false, l.albumErr
	}
	l.albumInserts = append(l.albumInserts, title)
	return true, nil
}

func (l *fakeLibrary) InsertAlbumWithCoverAndTag(_ context.Context, title, path, mimeType, backend string) (bool, error) {
	if l.albumErr != nil {
		return false, l.albumErr
	}
	l.albumInserts = append(l.albumInserts, title)
	return true, nil
}

func (l *fakeLibrary) InsertArtistsWithTags(_ context.Context, names []string) (int64, error) {
	if l.artistErr != nil {
		return 0, l.artistErr
	}
	l.artistBatches = append(l.artistBatches, names)
	return int64(len(names)), nil
}

func (l *fakeLibrary) AddSongTags(_ context.Context, songID int64, tags []string) (int64, error) {
	l.tagBatches = append(l.tagBatches, tags)
	return int64(len(tags)), nil
}

// recBackend records object writes and fails where told to.
type recBackend struct {
	putErr error
	puts   []string
}

func (b *recBackend) GetObject(context.Context, string, int64, int64) (io.ReadCloser, int64, error) {
	return nil, 0, storage.ErrNotFound
}

func (b *recBackend) PutObject(_ context.Context, key string, _ io.Reader, _ int64) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.puts = append(b.puts, key)
	return nil
}

func (b *recBackend) StatObject(context.Context, string) (int64, error) {
	return 0, storage.ErrNotFound
}
func (b *recBackend) DeleteObject(context.Context, string) error         { return nil }
func (b *recBackend) ObjectExists(context.Context, string) (bool, error) { return false, nil }
func (b *recBackend) Type() string                                       { return "rec" }
func (b *recBackend) Close() error                                       { return nil }

func newTestCoordinator(lib *fakeLibrary, backend *recBackend) *Coordinator {
	conns := storage.NewConnCacheWithFactory(func(ctx context.Context, cfg storage.BackendConfig) (storage.Backend, error) {
		return backend, nil
	})
	coord := NewCoordinator(lib, conns)
	coord.now = func() time.Time { return time.Unix(1700000000, 0) }
	return coord
}

func strPtr(s string) *string { return &s }

func TestPersistStorageWriteFailureLeavesNoRows(t *testing.T) {
	lib := &fakeLibrary{}
	backend := &recBackend{putErr: errors.New("disk full")}
	coord := newTestCoordinator(lib, backend)

	meta := FinalMetadata{Title: "Song", Album: strPtr("Album"), Artists: []string{"Band"}, StorageBackend: "init"}
	_, err := coord.Persist(context.Background(), []byte("data"), "audio/flac", meta, nil)
	if err == nil {
		t.Fatal("Persist succeeded despite failed backend write")
	}

	if lib.songInserts != 0 {
		t.Errorf("song rows inserted after failed write: %d", lib.songInserts)
	}
	if len(lib.albumInserts) != 0 || len(lib.artistBatches) != 0 || len(lib.tagBatches) != 0 {
		t.Error("metadata rows written after failed backend write")
	}
}

func TestPersistUnknownBackend(t *testing.T) {
	coord := newTestCoordinator(&fakeLibrary{}, &recBackend{})

	meta := FinalMetadata{Title: "Song", StorageBackend: "nope"}
	_, err := coord.Persist(context.Background(), []byte("data"), "audio/flac", meta, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown storage backend") {
		t.Errorf("err = %v, want unknown storage backend", err)
	}
}

func TestPersistWritesBeforeInserting(t *testing.T) {
	lib := &fakeLibrary{}
	backend := &recBackend{}
	coord := newTestCoordinator(lib, backend)

	meta := FinalMetadata{Title: "Song", StorageBackend: "init"}
	if _, err := coord.Persist(context.Background(), []byte("data"), "audio/flac", meta, nil); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if len(backend.puts) != 1 || backend.puts[0] != "songs/Song-1700000000.flac" {
		t.Errorf("backend writes = %v", backend.puts)
	}
	if lib.songInserts != 1 {
		t.Errorf("song inserts = %d, want 1", lib.songInserts)
	}
}

func TestPersistAlbumFailureDoesNotBlockArtists(t *testing.T) {
	lib := &fakeLibrary{albumErr: errors.New("constraint violation")}
	coord := newTestCoordinator(lib, &recBackend{})

	meta := FinalMetadata{
		Title:          "Song",
		Album:          strPtr("Album"),
		Artists:        []string{"Band", "Guest"},
		StorageBackend: "init",
	}
	res, err := coord.Persist(context.Background(), []byte("data"), "audio/flac", meta, nil)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if res.CreatedAlbum == nil || *res.CreatedAlbum {
		t.Errorf("createdAlbum = %v, want false", res.CreatedAlbum)
	}
	if res.AddedAlbum == nil || *res.AddedAlbum {
		t.Errorf("addedAlbum = %v, want false", res.AddedAlbum)
	}
	if res.CreatedArtists == nil || !*res.CreatedArtists {
		t.Errorf("createdArtists = %v, want true", res.CreatedArtists)
	}
	if res.AddedArtists == nil || !*res.AddedArtists {
		t.Errorf("addedArtists = %v, want true", res.AddedArtists)
	}
	if len(lib.artistBatches) != 1 {
		t.Errorf("artist batches = %v", lib.artistBatches)
	}
}

func TestPersistResultShapes(t *testing.T) {
	t.Run("bare song omits every field", func(t *testing.T) {
		coord := newTestCoordinator(&fakeLibrary{}, &recBackend{})
		res, err := coord.Persist(context.Background(), []byte("data"), "audio/flac",
			FinalMetadata{Title: "Song", StorageBackend: "init"}, nil)
		if err != nil {
			t.Fatalf("Persist: %v", err)
		}
		if res.CreatedAlbum != nil || res.AddedAlbum != nil || res.CreatedArtists != nil || res.AddedArtists != nil {
			t.Errorf("result = %+v, want all fields absent", res)
		}
	})

	t.Run("album and artists report true on success", func(t *testing.T) {
		lib := &fakeLibrary{}
		backend := &recBackend{}
		coord := newTestCoordinator(lib, backend)
		cover := &AlbumCover{Data: []byte("img"), MimeType: "image/png"}
		meta := FinalMetadata{
			Title:          "Song",
			Album:          strPtr("Album"),
			Artists:        []string{"Band"},
			StorageBackend: "init",
		}
		res, err := coord.Persist(context.Background(), []byte("data"), "audio/flac", meta, cover)
		if err != nil {
			t.Fatalf("Persist: %v", err)
		}
		for name, field := range map[string]*bool{
			"createdAlbum":   res.CreatedAlbum,
			"addedAlbum":     res.AddedAlbum,
			"createdArtists": res.CreatedArtists,
			"addedArtists":   res.AddedArtists,
		} {
			if field == nil || !*field {
				t.Errorf("%s = %v, want true", name, field)
			}
		}
		// The cover lands next to the song in the same backend.
		if len(backend.puts) != 2 || backend.puts[1] != "images/Album.png" {
			t.Errorf("backend writes = %v", backend.puts)
		}
	})
}
