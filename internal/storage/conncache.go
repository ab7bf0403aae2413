package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/melodeon/melodeon/internal/logging"
	"github.com/melodeon/melodeon/internal/metrics"
)

// ConnCache caches live backend connections by backend name.
// Connections are expensive to construct and safe to share; they are
// never evicted or health-checked here — backend errors surface on the
// individual operation that hits them.
type ConnCache struct {
	mu    sync.RWMutex
	conns map[string]Backend

	// newBackend is the construction function, replaceable in tests.
	newBackend func(ctx context.Context, cfg BackendConfig) (Backend, error)
}

// NewConnCache creates an empty connection cache.
func NewConnCache() *ConnCache {
	return NewConnCacheWithFactory(NewBackendFromConfig)
}

// NewConnCacheWithFactory creates a connection cache with a custom backend
// construction function.
func NewConnCacheWithFactory(factory func(ctx context.Context, cfg BackendConfig) (Backend, error)) *ConnCache {
	return &ConnCache{
		conns:      make(map[string]Backend),
		newBackend: factory,
	}
}

// GetOrCreate returns the cached connection for the named backend,
// constructing one from cfg on first use. Construction happens outside
// any lock so a slow backend does not block unrelated lookups; if two
// callers race, both constructions succeed and the cache keeps
// whichever write lands last.
func (c *ConnCache) GetOrCreate(ctx context.Context, name string, cfg BackendConfig) (Backend, error) {
	c.mu.RLock()
	conn, ok := c.conns[name]
	c.mu.RUnlock()
	if ok {
		metrics.RecordConnCacheLookup(true)
		return conn, nil
	}
	metrics.RecordConnCacheLookup(false)

	conn, err := c.newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conns[name] = conn
	c.mu.Unlock()

	logging.Debug("backend connection created",
		zap.String("backend", name),
		zap.String("kind", cfg.Kind()))

	return conn, nil
}

// Close closes all cached connections.
func (c *ConnCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, conn := range c.conns {
		if err := conn.Close(); err != nil {
			logging.Warn("backend close failed",
				zap.String("backend", name), zap.Error(err))
		}
	}
	c.conns = make(map[string]Backend)
	return nil
}
