package storage

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeBackend counts nothing; it exists so the cache has something to hold.
type fakeBackend struct {
	name string
}

func (f *fakeBackend) GetObject(context.Context, string, int64, int64) (io.ReadCloser, int64, error) {
	return nil, 0, ErrNotFound
}
func (f *fakeBackend) PutObject(context.Context, string, io.Reader, int64) error { return nil }
func (f *fakeBackend) StatObject(context.Context, string) (int64, error)         { return 0, ErrNotFound }
func (f *fakeBackend) DeleteObject(context.Context, string) error                { return nil }
func (f *fakeBackend) ObjectExists(context.Context, string) (bool, error)        { return false, nil }
func (f *fakeBackend) Type() string                                              { return "fake" }
func (f *fakeBackend) Close() error                                              { return nil }

func TestConnCacheReusesConnections(t *testing.T) {
	var constructed atomic.Int64
	cache := NewConnCacheWithFactory(func(ctx context.Context, cfg BackendConfig) (Backend, error) {
		constructed.Add(1)
		return &fakeBackend{}, nil
	})

	ctx := context.Background()
	cfg := BackendConfig{FS: &FSConfig{Root: "/ignored"}}

	first, err := cache.GetOrCreate(ctx, "init", cfg)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := cache.GetOrCreate(ctx, "init", cfg)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if first != second {
		t.Error("expected the cached connection on second lookup")
	}
	if got := constructed.Load(); got != 1 {
		t.Errorf("constructed %d backends, want 1", got)
	}
}

func TestConnCacheSeparateNames(t *testing.T) {
	var constructed atomic.Int64
	cache := NewConnCacheWithFactory(func(ctx context.Context, cfg BackendConfig) (Backend, error) {
		constructed.Add(1)
		return &fakeBackend{}, nil
	})

	ctx := context.Background()
	cfg := BackendConfig{FS: &FSConfig{Root: "/ignored"}}

	a, _ := cache.GetOrCreate(ctx, "a", cfg)
	b, _ := cache.GetOrCreate(ctx, "b", cfg)
	if a == b {
		t.Error("different backend names must not share a connection")
	}
	if got := constructed.Load(); got != 2 {
		t.Errorf("constructed %d backends, want 2", got)
	}
}

func TestConnCacheConcurrentLookups(t *testing.T) {
	cache := NewConnCacheWithFactory(func(ctx context.Context, cfg BackendConfig) (Backend, error) {
		return &fakeBackend{}, nil
	})

	ctx := context.Background()
	cfg := BackendConfig{FS: &FSConfig{Root: "/ignored"}}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := cache.GetOrCreate(ctx, "shared", cfg); err != nil {
					t.Errorf("GetOrCreate: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// Races may construct duplicates, but lookups afterwards converge on
	// one cached connection.
	first, _ := cache.GetOrCreate(ctx, "shared", cfg)
	second, _ := cache.GetOrCreate(ctx, "shared", cfg)
	if first != second {
		t.Error("cache did not converge on a single connection")
	}
}
