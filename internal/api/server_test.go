package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/melodeon/melodeon/internal/auth"
	"github.com/melodeon/melodeon/internal/ingest"
	"github.com/melodeon/melodeon/internal/library"
	"github.com/melodeon/melodeon/internal/storage"
)

// fakeStore serves a single canned source; everything else is empty.
type fakeStore struct {
	source  *library.Source
	backend *library.Backend
}

func (s *fakeStore) Songs(context.Context) ([]library.SongWithTags, error)       { return nil, nil }
func (s *fakeStore) SongByID(context.Context, int64) (*library.Song, error)      { return nil, nil }
func (s *fakeStore) DeleteSong(context.Context, int64) ([]library.Source, error) { return nil, nil }
func (s *fakeStore) Sources(context.Context) ([]library.Source, error)           { return nil, nil }
func (s *fakeStore) SourcesForSong(context.Context, int64) ([]library.Source, error) {
	return nil, nil
}
func (s *fakeStore) SourcesWithSongIDs(context.Context) ([]library.SourceWithSongID, error) {
	return nil, nil
}
func (s *fakeStore) SourceWithBackend(context.Context, int64) (*library.Source, *library.Backend, error) {
	return s.source, s.backend, nil
}
func (s *fakeStore) Tags(context.Context) ([]library.Tag, error)               { return nil, nil }
func (s *fakeStore) TagsForSong(context.Context, int64) ([]library.Tag, error) { return nil, nil }
func (s *fakeStore) Albums(context.Context) ([]library.Album, error)           { return nil, nil }
func (s *fakeStore) AlbumsWithoutCover(context.Context) ([]string, error)      { return nil, nil }
func (s *fakeStore) InsertAlbumWithCoverAndTag(context.Context, string, string, string, string) (bool, error) {
	return false, nil
}
func (s *fakeStore) Artists(context.Context) ([]library.Artist, error) { return nil, nil }
func (s *fakeStore) Users(context.Context) ([]library.User, error)     { return nil, nil }
func (s *fakeStore) BackendByName(context.Context, string) (*library.Backend, error) {
	if s.backend == nil {
		return nil, nil
	}
	return s.backend, nil
}

// memBackend serves one object from memory with range support.
type memBackend struct {
	key  string
	data []byte
}

func (b *memBackend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	if key != b.key {
		return nil, 0, storage.ErrNotFound
	}
	window := b.data
	if !(offset == 0 && length == 0) {
		window = b.data[offset : offset+length]
	}
	return io.NopCloser(bytes.NewReader(window)), int64(len(window)), nil
}

func (b *memBackend) PutObject(context.Context, string, io.Reader, int64) error { return nil }
func (b *memBackend) StatObject(_ context.Context, key string) (int64, error) {
	if key != b.key {
		return 0, storage.ErrNotFound
	}
	return int64(len(b.data)), nil
}
func (b *memBackend) DeleteObject(context.Context, string) error         { return nil }
func (b *memBackend) ObjectExists(context.Context, string) (bool, error) { return false, nil }
func (b *memBackend) Type() string                                       { return "mem" }
func (b *memBackend) Close() error                                       { return nil }

func newDataServer(store Store, backend storage.Backend) *Server {
	conns := storage.NewConnCacheWithFactory(func(ctx context.Context, cfg storage.BackendConfig) (storage.Backend, error) {
		return backend, nil
	})
	return NewServer(store, auth.New(nil, "test-secret"), conns, nil, nil, 0)
}

func newTestHandler() http.Handler {
	srv := NewServer(nil, auth.New(nil, "test-secret"), nil, nil, nil, 0)
	return srv.Handler()
}

func TestHealthIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestNewServerMessageSize(t *testing.T) {
	srv := NewServer(nil, auth.New(nil, "s"), nil, nil, nil, 0)
	if srv.maxMessageSize != ingest.MaxMessageSize {
		t.Errorf("default message size = %d, want %d", srv.maxMessageSize, int64(ingest.MaxMessageSize))
	}

	srv = NewServer(nil, auth.New(nil, "s"), nil, nil, nil, 1<<20)
	if srv.maxMessageSize != 1<<20 {
		t.Errorf("message size = %d, want configured 1MiB", srv.maxMessageSize)
	}
}

func TestAdminRoutesRejectNonAdmin(t *testing.T) {
	srv := NewServer(nil, auth.New(nil, "test-secret"), nil, nil, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{Username: "bob"}))
	rec := httptest.NewRecorder()
	srv.handleUsers(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	handler := newTestHandler()

	for _, path := range []string{
		"/api/v1/songs",
		"/api/v1/sources",
		"/api/v1/sources/1/descriptor",
		"/api/v1/albums",
		"/api/v1/users",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rec.Code)
			continue
		}
		var body struct {
			Error string `json:"error"`
			Code  int    `json:"code"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("GET %s: unmarshal error body: %v", path, err)
			continue
		}
		if body.Error == "" || body.Code != http.StatusUnauthorized {
			t.Errorf("GET %s error envelope = %+v", path, body)
		}
	}
}

func TestSourceDataResponses(t *testing.T) {
	store := &fakeStore{
		source: &library.Source{
			ID:                 7,
			Path:               "songs/s.flac",
			MimeType:           "audio/flac",
			StorageBackendName: "init",
		},
		backend: &library.Backend{
			Name:   "init",
			Config: storage.BackendConfig{FS: &storage.FSConfig{Root: "/ignored"}},
		},
	}
	backend := &memBackend{key: "songs/s.flac", data: []byte("0123456789")}
	srv := newDataServer(store, backend)

	tests := []struct {
		name         string
		rangeHeader  string
		status       int
		body         string
		contentRange string
	}{
		{"no range", "", http.StatusOK, "0123456789", ""},
		{"window", "bytes=2-5", http.StatusPartialContent, "2345", "bytes 2-5/10"},
		{"degenerate full", "bytes=0-", http.StatusOK, "0123456789", ""},
		{"suffix", "bytes=-3", http.StatusPartialContent, "789", "bytes 7-9/10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/7/data", nil)
			req.SetPathValue("id", "7")
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}
			rec := httptest.NewRecorder()
			srv.handleSourceData(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Body.String(); got != tt.body {
				t.Errorf("body = %q, want %q", got, tt.body)
			}
			if got := rec.Header().Get("Content-Range"); got != tt.contentRange {
				t.Errorf("content-range = %q, want %q", got, tt.contentRange)
			}
			if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(len(tt.body)) {
				t.Errorf("content-length = %q, want %d", got, len(tt.body))
			}
			if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
				t.Errorf("accept-ranges = %q", got)
			}
			if got := rec.Header().Get("Cache-Control"); got != contentCacheControl {
				t.Errorf("cache-control = %q", got)
			}
			if got := rec.Header().Get("Content-Type"); got != "audio/flac" {
				t.Errorf("content-type = %q", got)
			}
		})
	}
}

func TestSourceDataNotFound(t *testing.T) {
	backend := &library.Backend{
		Name:   "init",
		Config: storage.BackendConfig{FS: &storage.FSConfig{Root: "/ignored"}},
	}

	t.Run("unknown source", func(t *testing.T) {
		srv := newDataServer(&fakeStore{}, &memBackend{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/7/data", nil)
		req.SetPathValue("id", "7")
		rec := httptest.NewRecorder()
		srv.handleSourceData(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		store := &fakeStore{
			source:  &library.Source{ID: 7, Path: "songs/gone.flac", MimeType: "audio/flac", StorageBackendName: "init"},
			backend: backend,
		}
		srv := newDataServer(store, &memBackend{key: "other"})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/7/data", nil)
		req.SetPathValue("id", "7")
		rec := httptest.NewRecorder()
		srv.handleSourceData(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestDeleteObjectUnknownBackend(t *testing.T) {
	srv := newDataServer(&fakeStore{}, &memBackend{})

	err := srv.deleteObject(context.Background(), &library.Source{
		ID:                 1,
		Path:               "songs/s.flac",
		StorageBackendName: "ghost",
	})
	if err == nil {
		t.Fatal("deleteObject succeeded for an unregistered backend")
	}
	if !strings.Contains(err.Error(), `"ghost" not found`) {
		t.Errorf("err = %q, want backend-not-found message", err)
	}
	if strings.Contains(err.Error(), "%!w") {
		t.Errorf("err = %q carries a malformed wrap verb", err)
	}
}
