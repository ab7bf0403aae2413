package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSBackend implements Backend using the local filesystem.
type FSBackend struct {
	root string
}

// NewFSBackend creates a new filesystem backend rooted at cfg.Root.
// The root directory is created if it does not exist.
func NewFSBackend(cfg FSConfig) (*FSBackend, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("fs backend: root is required")
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.Root, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root %s: %w", cfg.Root, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root %s: %w", cfg.Root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", cfg.Root)
	}

	return &FSBackend{root: cfg.Root}, nil
}

func (b *FSBackend) fullPath(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// GetObject reads a file with range support.
func (b *FSBackend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	f, err := os.Open(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	totalSize := info.Size()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	if length > 0 {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}, length, nil
	}

	returnSize := totalSize - offset
	if returnSize < 0 {
		returnSize = 0
	}
	return f, returnSize, nil
}

// PutObject writes content atomically via temp file + rename.
func (b *FSBackend) PutObject(_ context.Context, key string, body io.Reader, size int64) error {
	path := b.fullPath(key)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".melodeon-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}

	return nil
}

// StatObject returns the size of a file.
func (b *FSBackend) StatObject(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("stat %s: %w", key, ErrNotFound)
		}
		return 0, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Size(), nil
}

// DeleteObject removes a file. Missing files are not an error.
func (b *FSBackend) DeleteObject(_ context.Context, key string) error {
	err := os.Remove(b.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ObjectExists checks if a file exists.
func (b *FSBackend) ObjectExists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Type returns "fs".
func (b *FSBackend) Type() string { return "fs" }

// Close is a no-op for filesystem backends.
func (b *FSBackend) Close() error { return nil }

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
