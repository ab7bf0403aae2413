// Package api provides the HTTP server and handlers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/auth"
	"github.com/melodeon/melodeon/internal/delivery"
	"github.com/melodeon/melodeon/internal/ingest"
	"github.com/melodeon/melodeon/internal/library"
	"github.com/melodeon/melodeon/internal/logging"
	"github.com/melodeon/melodeon/internal/metrics"
	"github.com/melodeon/melodeon/internal/storage"
)

// contentCacheControl marks proxied source responses private and immutable
// for 7 days; sources never change after creation.
const contentCacheControl = "private, immutable, max-age=604800"

// Store is the slice of the library the HTTP handlers consume.
// *library.Store satisfies it.
type Store interface {
	Songs(ctx context.Context) ([]library.SongWithTags, error)
	SongByID(ctx context.Context, id int64) (*library.Song, error)
	DeleteSong(ctx context.Context, id int64) ([]library.Source, error)
	Sources(ctx context.Context) ([]library.Source, error)
	SourcesForSong(ctx context.Context, songID int64) ([]library.Source, error)
	SourcesWithSongIDs(ctx context.Context) ([]library.SourceWithSongID, error)
	SourceWithBackend(ctx context.Context, id int64) (*library.Source, *library.Backend, error)
	Tags(ctx context.Context) ([]library.Tag, error)
	TagsForSong(ctx context.Context, songID int64) ([]library.Tag, error)
	Albums(ctx context.Context) ([]library.Album, error)
	AlbumsWithoutCover(ctx context.Context) ([]string, error)
	InsertAlbumWithCoverAndTag(ctx context.Context, title, path, mimeType, backend string) (bool, error)
	Artists(ctx context.Context) ([]library.Artist, error)
	Users(ctx context.Context) ([]library.User, error)
	BackendByName(ctx context.Context, name string) (*library.Backend, error)
}

// Server is the HTTP server.
type Server struct {
	store       Store
	auth        *auth.Auth
	conns       *storage.ConnCache
	descriptors *delivery.DescriptorCache
	persister   ingest.Persister

	// maxMessageSize caps a single ingest websocket message.
	maxMessageSize int64
}

// NewServer creates a new server. A non-positive maxMessageSize falls back
// to the ingest default.
func NewServer(
	store Store,
	authHandler *auth.Auth,
	conns *storage.ConnCache,
	descriptors *delivery.DescriptorCache,
	persister ingest.Persister,
	maxMessageSize int64,
) *Server {
	if maxMessageSize <= 0 {
		maxMessageSize = ingest.MaxMessageSize
	}
	return &Server{
		store:          store,
		auth:           authHandler,
		conns:          conns,
		descriptors:    descriptors,
		persister:      persister,
		maxMessageSize: maxMessageSize,
	}
}

// Handler returns the HTTP handler with auth, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/login", s.auth.HandleLogin)

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/check-auth", s.auth.HandleCheck)

	protected.HandleFunc("GET /api/v1/songs", s.handleSongs)
	protected.HandleFunc("DELETE /api/v1/songs/{id}", s.handleDeleteSong)
	protected.HandleFunc("GET /api/v1/songs/{id}/sources", s.handleSourcesForSong)
	protected.HandleFunc("GET /api/v1/songs/{id}/tags", s.handleTagsForSong)
	protected.HandleFunc("GET /api/v1/songs/sources", s.handleSourcesWithSongs)

	protected.HandleFunc("GET /api/v1/sources", s.handleSources)
	protected.HandleFunc("GET /api/v1/sources/{id}/data", s.handleSourceData)
	protected.HandleFunc("GET /api/v1/sources/{id}/descriptor", s.handleSourceDescriptor)

	protected.HandleFunc("GET /api/v1/tags", s.handleTags)
	protected.HandleFunc("GET /api/v1/albums", s.handleAlbums)
	protected.HandleFunc("GET /api/v1/artists", s.handleArtists)

	// Admin endpoints
	protected.HandleFunc("GET /api/v1/add-songs", s.handleAddSongs)
	protected.HandleFunc("POST /api/v1/albums/populate-covers", s.handlePopulateCovers)
	protected.HandleFunc("GET /api/v1/users", s.handleUsers)
	protected.HandleFunc("POST /api/v1/users", s.handleCreateUser)

	mux.Handle("/api/v1/", s.auth.Middleware(protected))

	return logging.Middleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── Library reads ──────────────────────────────────────────────────────────

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.store.Songs(r.Context())
	if err != nil {
		logging.Error("listing songs failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, songs)
}

func (s *Server) handleSourcesForSong(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	sources, err := s.store.SourcesForSong(r.Context(), id)
	if err != nil {
		logging.Error("listing sources for song failed", zap.Int64("song_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, sources)
}

func (s *Server) handleTagsForSong(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	tags, err := s.store.TagsForSong(r.Context(), id)
	if err != nil {
		logging.Error("listing tags for song failed", zap.Int64("song_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, tags)
}

func (s *Server) handleSourcesWithSongs(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.SourcesWithSongIDs(r.Context())
	if err != nil {
		logging.Error("listing song sources failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, sources)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.Sources(r.Context())
	if err != nil {
		logging.Error("listing sources failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, sources)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.Tags(r.Context())
	if err != nil {
		logging.Error("listing tags failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, tags)
}

func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.store.Albums(r.Context())
	if err != nil {
		logging.Error("listing albums failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, albums)
}

func (s *Server) handleArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := s.store.Artists(r.Context())
	if err != nil {
		logging.Error("listing artists failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, artists)
}

// ─── Song deletion ──────────────────────────────────────────────────────────

func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid song id")
		return
	}

	song, err := s.store.SongByID(r.Context(), id)
	if err != nil {
		logging.Error("loading song failed", zap.Int64("song_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	if song == nil {
		s.sendError(w, http.StatusNotFound, "song not found")
		return
	}

	deleted, err := s.store.DeleteSong(r.Context(), id)
	if err != nil {
		logging.Error("deleting song failed", zap.Int64("song_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}

	// Object cleanup is best-effort: the rows are already gone, a leaked
	// object only wastes space.
	for _, src := range deleted {
		if err := s.deleteObject(r.Context(), &src); err != nil {
			logging.Warn("deleting source object failed",
				zap.Int64("source_id", src.ID),
				zap.String("path", src.Path),
				zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteObject(ctx context.Context, src *library.Source) error {
	backend, err := s.store.BackendByName(ctx, src.StorageBackendName)
	if err != nil {
		return fmt.Errorf("resolve backend %q: %w", src.StorageBackendName, err)
	}
	if backend == nil {
		return fmt.Errorf("backend %q not found", src.StorageBackendName)
	}
	conn, err := s.conns.GetOrCreate(ctx, backend.Name, backend.Config)
	if err != nil {
		return err
	}
	return conn.DeleteObject(ctx, src.Path)
}

// ─── Users (admin) ──────────────────────────────────────────────────────────

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims := auth.GetClaims(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.sendError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	users, err := s.store.Users(r.Context())
	if err != nil {
		logging.Error("listing users failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	s.sendJSON(w, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Admin    bool   `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendError(w, http.StatusBadRequest, "username and password required")
		return
	}

	created, err := s.auth.CreateUser(r.Context(), req.Username, req.Password, req.Admin)
	if err != nil {
		logging.Error("creating user failed", zap.String("username", req.Username), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !created {
		s.sendError(w, http.StatusConflict, "user already exists")
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.sendJSON(w, map[string]any{"username": req.Username, "admin": req.Admin})
}

// ─── Content delivery ───────────────────────────────────────────────────────

func (s *Server) handleSourceData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	source, backend, err := s.store.SourceWithBackend(r.Context(), id)
	if err != nil {
		logging.Error("loading source failed", zap.Int64("source_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	if source == nil {
		s.sendError(w, http.StatusNotFound, "source not found")
		return
	}

	conn, err := s.conns.GetOrCreate(r.Context(), backend.Name, backend.Config)
	if err != nil {
		logging.Error("connecting to backend failed", zap.String("backend", backend.Name), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "storage backend unavailable")
		return
	}

	total, err := conn.StatObject(r.Context(), source.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "source data not found")
			return
		}
		logging.Error("stat object failed", zap.String("path", source.Path), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "storage backend error")
		return
	}

	resolved := delivery.ResolveRange(r.Header.Get("Range"), total)

	reader, _, err := conn.GetObject(r.Context(), source.Path, resolved.Offset, resolved.Length)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "source data not found")
			return
		}
		logging.Error("open object failed", zap.String("path", source.Path), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "storage backend error")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", source.MimeType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", contentCacheControl)
	w.Header().Set("Content-Length", strconv.FormatInt(resolved.Length, 10))
	if resolved.Partial {
		w.Header().Set("Content-Range", resolved.ContentRange())
		w.WriteHeader(http.StatusPartialContent)
	}

	n, err := io.Copy(w, reader)
	metrics.RecordContentDownload(n, err == nil)
	if err != nil {
		logging.Warn("streaming source data failed",
			zap.Int64("source_id", id),
			zap.Int64("bytes_sent", n),
			zap.Error(err))
	}
}

func (s *Server) handleSourceDescriptor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	source, backend, err := s.store.SourceWithBackend(r.Context(), id)
	if err != nil {
		logging.Error("loading source failed", zap.Int64("source_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	if source == nil {
		s.sendError(w, http.StatusNotFound, "source not found")
		return
	}

	desc, err := s.descriptors.DescriptorFor(r.Context(), source, backend)
	if err != nil {
		logging.Error("building descriptor failed", zap.Int64("source_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "storage backend unavailable")
		return
	}
	s.sendJSON(w, desc)
}

// ─── Album covers (admin) ───────────────────────────────────────────────────

// handlePopulateCovers scans songs of albums without a cover for embedded
// cover art and stores what it finds. Returns the titles of albums that got
// a cover.
func (s *Server) handlePopulateCovers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	titles, err := s.store.AlbumsWithoutCover(r.Context())
	if err != nil {
		logging.Error("listing albums failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}
	songs, err := s.store.Songs(r.Context())
	if err != nil {
		logging.Error("listing songs failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "database error")
		return
	}

	populated := []string{}
	for _, title := range titles {
		if s.populateCover(r.Context(), title, songs) {
			populated = append(populated, title)
		}
	}
	s.sendJSON(w, populated)
}

func (s *Server) populateCover(ctx context.Context, album string, songs []library.SongWithTags) bool {
	var song *library.SongWithTags
	for i := range songs {
		for _, t := range songs[i].Tags {
			if t == album {
				song = &songs[i]
				break
			}
		}
		if song != nil {
			break
		}
	}
	if song == nil {
		logging.Debug("no song for album", zap.String("album", album))
		return false
	}

	sources, err := s.store.SourcesForSong(ctx, song.ID)
	if err != nil || len(sources) == 0 {
		return false
	}
	source := sources[0]

	backend, err := s.store.BackendByName(ctx, source.StorageBackendName)
	if err != nil || backend == nil {
		return false
	}
	conn, err := s.conns.GetOrCreate(ctx, backend.Name, backend.Config)
	if err != nil {
		return false
	}

	reader, _, err := conn.GetObject(ctx, source.Path, 0, 0)
	if err != nil {
		return false
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return false
	}

	_, cover := ingest.ExtractMetadata(data, "")
	if cover == nil {
		logging.Debug("no embedded cover", zap.String("album", album))
		return false
	}

	path := ingest.CoverPath(album, cover.MimeType)
	if err := conn.PutObject(ctx, path, bytes.NewReader(cover.Data), int64(len(cover.Data))); err != nil {
		logging.Error("writing album cover failed", zap.String("album", album), zap.Error(err))
		return false
	}
	if _, err := s.store.InsertAlbumWithCoverAndTag(ctx, album, path, cover.MimeType, backend.Name); err != nil {
		logging.Error("recording album cover failed", zap.String("album", album), zap.Error(err))
		return false
	}
	return true
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("encoding response failed", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  code,
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
