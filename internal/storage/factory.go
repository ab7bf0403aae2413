package storage

import (
	"context"
	"fmt"
)

// NewBackendFromConfig constructs a Backend from a tagged-union config.
// This is the single point that matches on the union; adding a backend
// kind is a change here and in config.go only.
func NewBackendFromConfig(ctx context.Context, cfg BackendConfig) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case cfg.FS != nil:
		return NewFSBackend(*cfg.FS)
	case cfg.S3 != nil:
		return NewS3Backend(ctx, *cfg.S3)
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", cfg.Kind())
	}
}
