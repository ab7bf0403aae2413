package delivery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/library"
	"github.com/melodeon/melodeon/internal/logging"
	"github.com/melodeon/melodeon/internal/metrics"
	"github.com/melodeon/melodeon/internal/storage"
)

const (
	// descriptorTTL is how long a cached descriptor is served. The
	// pre-signed credential behind it stays valid for an extra
	// presignMargin, so a descriptor handed out at the very end of its
	// cache lifetime is still usable at the client.
	descriptorTTL = 3 * 24 * time.Hour
	presignMargin = time.Hour
)

// Descriptor is a ready-to-use request description for fetching a source's
// bytes, either backend-direct (pre-signed) or proxied through this server.
// Descriptors are ephemeral and never persisted.
type Descriptor struct {
	Method  string      `json:"method"`
	URI     string      `json:"uri"`
	Headers http.Header `json:"headers"`
}

type descriptorEntry struct {
	insertedAt time.Time
	descriptor Descriptor
}

// DescriptorCache caches delivery descriptors per source id. It is
// constructed once at startup and shared by reference. Readers do not block
// readers; the write lock is held only for the map mutation, never during
// backend I/O, so duplicate concurrent construction on a miss is possible
// and harmless (last write wins).
type DescriptorCache struct {
	mu      sync.RWMutex
	entries map[int64]descriptorEntry

	conns *storage.ConnCache
	now   func() time.Time
}

// NewDescriptorCache creates an empty descriptor cache on top of the given
// connection cache.
func NewDescriptorCache(conns *storage.ConnCache) *DescriptorCache {
	return &DescriptorCache{
		entries: make(map[int64]descriptorEntry),
		conns:   conns,
		now:     time.Now,
	}
}

// DescriptorFor returns a delivery descriptor for the source, from cache if a
// live entry exists. On a miss it asks the source's backend for a pre-signed
// request; backends that cannot pre-sign, or a failed pre-sign attempt, fall
// back to this server's own byte-serving endpoint.
func (c *DescriptorCache) DescriptorFor(ctx context.Context, source *library.Source, backend *library.Backend) (Descriptor, error) {
	c.mu.RLock()
	entry, ok := c.entries[source.ID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.insertedAt) <= descriptorTTL {
		metrics.RecordDescriptorCacheLookup(true)
		return entry.descriptor, nil
	}
	metrics.RecordDescriptorCacheLookup(false)

	desc, err := c.build(ctx, source, backend)
	if err != nil {
		return Descriptor{}, err
	}

	c.mu.Lock()
	c.entries[source.ID] = descriptorEntry{insertedAt: c.now(), descriptor: desc}
	c.mu.Unlock()

	return desc, nil
}

func (c *DescriptorCache) build(ctx context.Context, source *library.Source, backend *library.Backend) (Descriptor, error) {
	conn, err := c.conns.GetOrCreate(ctx, backend.Name, backend.Config)
	if err != nil {
		return Descriptor{}, fmt.Errorf("connect to backend %q: %w", backend.Name, err)
	}

	if presigner, ok := conn.(storage.Presigner); ok {
		req, err := presigner.PresignGetObject(ctx, source.Path, storage.PresignOptions{
			Expires:      descriptorTTL + presignMargin,
			ContentType:  source.MimeType,
			CacheControl: fmt.Sprintf("private, immutable, max-age=%d", int64(descriptorTTL.Seconds())),
		})
		if err == nil {
			return Descriptor{Method: req.Method, URI: req.URL, Headers: req.Header}, nil
		}
		metrics.RecordPresignFailure()
		logging.Warn("presign failed, falling back to proxied delivery",
			zap.Int64("source_id", source.ID),
			zap.String("backend", backend.Name),
			zap.Error(err))
	}

	return Descriptor{
		Method:  http.MethodGet,
		URI:     fmt.Sprintf("/api/v1/sources/%d/data", source.ID),
		Headers: http.Header{},
	}, nil
}
