// Package ingest implements the song upload protocol: a lock-step session
// over a message transport that receives a manifest, then per file the raw
// bytes, extracted metadata and client-confirmed final metadata, and persists
// each file to a storage backend and the library.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/logging"
	"github.com/melodeon/melodeon/internal/metrics"
)

// Transport limits for ingest sessions.
const (
	MaxMessageSize  = 128 << 20
	WriteBufferSize = 128 * 1024
)

// allowedMimeTypes lists the audio formats accepted in a manifest.
var allowedMimeTypes = map[string]bool{
	"audio/flac": true,
	"audio/mp3":  true,
	"audio/mpeg": true,
}

// FrameType distinguishes text and binary transport frames.
type FrameType int

const (
	TextFrame FrameType = iota + 1
	BinaryFrame
)

// Frame is one message on the session transport.
type Frame struct {
	Type FrameType
	Data []byte
}

// Transport carries session frames. Receive blocks until a frame arrives and
// returns an error when the peer is gone; Close sends a close frame and
// tears the connection down.
type Transport interface {
	Receive() (Frame, error)
	Send(Frame) error
	Close() error
}

// ManifestEntry announces one file the client intends to upload.
type ManifestEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"type"`
}

// FinalMetadata is the client-confirmed metadata for a file about to be
// persisted.
type FinalMetadata struct {
	Title          string   `json:"title"`
	Album          *string  `json:"album"`
	Artists        []string `json:"artists"`
	StorageBackend string   `json:"storageBackend"`
}

// Result reports which secondary entities a persist call touched. Each field
// is absent when the client did not request it.
type Result struct {
	CreatedAlbum   *bool `json:"createdAlbum,omitempty"`
	AddedAlbum     *bool `json:"addedAlbum,omitempty"`
	CreatedArtists *bool `json:"createdArtists,omitempty"`
	AddedArtists   *bool `json:"addedArtists,omitempty"`
}

// Persister stores one uploaded file and its metadata.
type Persister interface {
	Persist(ctx context.Context, data []byte, mimeType string, meta FinalMetadata, cover *AlbumCover) (Result, error)
}

// Session runs the upload protocol over one transport connection.
type Session struct {
	transport Transport
	persister Persister
}

// NewSession creates a session over the given transport.
func NewSession(transport Transport, persister Persister) *Session {
	return &Session{transport: transport, persister: persister}
}

type errorPayload struct {
	Error string `json:"error"`
}

// Run drives the session to completion. It returns an error only on protocol
// or transport failures; persist failures are reported to the client and the
// session keeps going.
func (s *Session) Run(ctx context.Context) error {
	metrics.RecordIngestSession()

	manifest, err := s.receiveManifest()
	if err != nil {
		return err
	}

	for _, entry := range manifest {
		if !allowedMimeTypes[entry.MimeType] {
			return s.closeWithError(fmt.Sprintf("Invalid mime type: %s", entry.MimeType))
		}
	}

	for _, entry := range manifest {
		if err := s.handleFile(ctx, entry); err != nil {
			return err
		}
	}

	return s.transport.Close()
}

func (s *Session) receiveManifest() ([]ManifestEntry, error) {
	frame, err := s.transport.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive manifest: %w", err)
	}
	var manifest []ManifestEntry
	if err := json.Unmarshal(frame.Data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return manifest, nil
}

func (s *Session) handleFile(ctx context.Context, entry ManifestEntry) error {
	// Raw bytes arrive as a single binary frame.
	frame, err := s.transport.Receive()
	if err != nil {
		metrics.RecordContentUpload(0, false)
		return fmt.Errorf("receive file data for %q: %w", entry.Name, err)
	}
	data := frame.Data
	metrics.RecordContentUpload(int64(len(data)), true)

	candidate, cover := ExtractMetadata(data, entry.Name)
	logging.Debug("extracted metadata",
		zap.String("file", entry.Name),
		zap.Bool("has_cover", cover != nil))

	if err := s.sendJSON(candidate); err != nil {
		return err
	}

	// The client may resubmit corrected metadata until a persist succeeds,
	// without re-uploading the bytes.
	for {
		frame, err := s.transport.Receive()
		if err != nil {
			return fmt.Errorf("receive final metadata for %q: %w", entry.Name, err)
		}
		final := FinalMetadata{StorageBackend: "init"}
		if err := json.Unmarshal(frame.Data, &final); err != nil {
			return fmt.Errorf("parse final metadata for %q: %w", entry.Name, err)
		}
		if final.StorageBackend == "" {
			final.StorageBackend = "init"
		}

		result, err := s.persister.Persist(ctx, data, entry.MimeType, final, cover)
		if err != nil {
			metrics.RecordIngestFile(false)
			logging.Warn("persist failed",
				zap.String("file", entry.Name),
				zap.Error(err))
			if err := s.sendJSON(errorPayload{Error: err.Error()}); err != nil {
				return err
			}
			continue
		}

		metrics.RecordIngestFile(true)
		return s.sendJSON(result)
	}
}

func (s *Session) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.transport.Send(Frame{Type: TextFrame, Data: data}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// closeWithError sends one error payload and then the close frame. The
// session ends either way.
func (s *Session) closeWithError(msg string) error {
	if err := s.sendJSON(errorPayload{Error: msg}); err != nil {
		s.transport.Close()
		return err
	}
	return s.transport.Close()
}
