package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/melodeon/melodeon/internal/metrics"
)

// Users returns all user accounts.
func (s *Store) Users(ctx context.Context) ([]User, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("users", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, hashed_pass, admin, created_at, updated_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.HashedPass, &u.Admin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserByUsername returns the user with the given username, or nil if no such
// user exists.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("user_by_username", time.Since(start)) }()

	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, hashed_pass, admin, created_at, updated_at FROM users WHERE username = $1`,
		username).Scan(&u.Username, &u.HashedPass, &u.Admin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// TryInsertUser creates a user with an already-hashed password. Existing
// users are left untouched. Returns whether a new row was inserted.
func (s *Store) TryInsertUser(ctx context.Context, username, hashedPass string, admin bool) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_user", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, hashed_pass, admin) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO NOTHING`,
		username, hashedPass, admin)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
