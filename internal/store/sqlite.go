// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/persistence/sqlite"
)

const schemaVersion = 1

// SQLiteBackend stores properties in a single SQLite table.
type SQLiteBackend struct {
	DB *sql.DB
}

// NewSQLiteBackend opens (and migrates) the database at path, then runs a
// quick integrity check whose findings are logged.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SQLiteBackend{DB: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("property store: migration failed: %w", err)
	}

	issues, err := sqlite.VerifyIntegrity(ctx, db, sqlite.CheckQuick)
	logger := log.WithComponent("store")
	switch {
	case err != nil:
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("integrity check could not run")
	case len(issues) > 0:
		logger.Error().Strs("issues", issues).Str(log.FieldPath, path).Msg("property store failed integrity check")
	}
	return s, nil
}

func (s *SQLiteBackend) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS properties (
		target TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		PRIMARY KEY (target, key)
	) WITHOUT ROWID;
	`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Get(ctx context.Context, target, key string) (string, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx,
		"SELECT value FROM properties WHERE target = ? AND key = ?", target, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("property store: get %s/%s: %w", target, key, err)
	}
	return v, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, target, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO properties (target, key, value, updated_at_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(target, key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`,
		target, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("property store: set %s/%s: %w", target, key, err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, target, key string) error {
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM properties WHERE target = ? AND key = ?", target, key); err != nil {
		return fmt.Errorf("property store: delete %s/%s: %w", target, key, err)
	}
	return nil
}

func (s *SQLiteBackend) All(ctx context.Context, target string) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT key, value FROM properties WHERE target = ?", target)
	if err != nil {
		return nil, fmt.Errorf("property store: list %s: %w", target, err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.DB.Close()
}
