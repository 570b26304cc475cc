// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore keeps cache buckets in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/staranto/assetcache/internal/cachestore"
	"github.com/staranto/assetcache/internal/cachestore/sqlitestore/migrations"
)

// Store persists cache entries in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite cache store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) CreateBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_buckets (name, created_at) VALUES (?, ?)`,
		bucket, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("create cache bucket: %w", err)
	}
	return nil
}

func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM cache_buckets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list cache buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache bucket: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache buckets: %w", err)
	}
	return names, nil
}

const selectEntry = `SELECT key, method, url, status, header, body, checksum, stored_at
   FROM cache_entries`

func (s *Store) Get(ctx context.Context, bucket, key string) (*cachestore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, selectEntry+` WHERE bucket = ? AND key = ?`, bucket, key)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cachestore.ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return e, nil
}

// Put writes all entries in one transaction.
func (s *Store) Put(ctx context.Context, bucket string, entries ...*cachestore.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_buckets (name, created_at) VALUES (?, ?)`,
		bucket, toMillis(time.Now()),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create cache bucket: %w", err)
	}

	for _, e := range entries {
		header, err := json.Marshal(e.Header)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode header: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cache_entries (
			   bucket, key, method, url, status, header, body, checksum, stored_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(bucket, key) DO UPDATE SET
			   method = excluded.method,
			   url = excluded.url,
			   status = excluded.status,
			   header = excluded.header,
			   body = excluded.body,
			   checksum = excluded.checksum,
			   stored_at = excluded.stored_at`,
			bucket,
			e.Key,
			e.Method,
			e.URL,
			e.Status,
			string(header),
			e.Body,
			e.Checksum,
			toMillis(e.StoredAt),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put cache entry %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache write: %w", err)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context, bucket string) ([]*cachestore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, selectEntry+` WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*cachestore.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*cachestore.Entry, error) {
	var (
		e        cachestore.Entry
		header   string
		storedAt int64
	)
	if err := row.Scan(&e.Key, &e.Method, &e.URL, &e.Status, &header, &e.Body, &e.Checksum, &storedAt); err != nil {
		return nil, err
	}
	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	e.StoredAt = fromMillis(storedAt)
	if err := e.Verify(); err != nil {
		return nil, err
	}
	return &e, nil
}
