package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/melodeon/melodeon/internal/metrics"
	"github.com/melodeon/melodeon/internal/storage"
)

// BackendByName returns the backend registered under name, or nil if no
// backend with that name exists.
func (s *Store) BackendByName(ctx context.Context, name string) (*Backend, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("backend_by_name", time.Since(start)) }()

	var b Backend
	var rawConfig string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, config, created_at, updated_at FROM storage_backends WHERE name = $1`,
		name).Scan(&b.Name, &rawConfig, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query storage backend: %w", err)
	}

	if err := json.Unmarshal([]byte(rawConfig), &b.Config); err != nil {
		return nil, fmt.Errorf("parse config of backend %q: %w", name, err)
	}
	return &b, nil
}

// TryRegisterBackend registers a backend configuration under name. If a
// backend with that name already exists the call is a no-op and the existing
// registration wins. Returns whether a new row was inserted.
func (s *Store) TryRegisterBackend(ctx context.Context, name string, cfg storage.BackendConfig) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("register_backend", time.Since(start)) }()

	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("invalid config for backend %q: %w", name, err)
	}

	rawConfig, err := json.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("encode config of backend %q: %w", name, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO storage_backends (name, config) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, string(rawConfig))
	if err != nil {
		return false, fmt.Errorf("insert storage backend: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
