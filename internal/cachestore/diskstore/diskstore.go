// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package diskstore keeps cache buckets as directories of entry files.
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/apex/log"

	"github.com/staranto/assetcache/internal/cachestore"
)

var bucketNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store lays entries out as <base>/<bucket>/<md5(key)>.
type Store struct {
	base string
}

// Dir resolves the base cache directory.
// Precedence:
//  1. ASSETCACHE_CACHE_DIR, if set and non-empty
//  2. os.UserCacheDir()/assetcache
//
// Returns ("", false) if a base cannot be resolved.
func Dir() (string, bool) {
	if c, ok := os.LookupEnv("ASSETCACHE_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "assetcache"), true
	}
	return "", false
}

// New returns a Store rooted at base, creating the directory. An empty base
// falls back to Dir.
func New(base string) (*Store, error) {
	if base == "" {
		d, ok := Dir()
		if !ok {
			return nil, errors.New("unable to resolve a cache directory")
		}
		base = d
	}
	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create cache base directory: %w", err)
	}
	return &Store{base: base}, nil
}

// Base returns the root directory.
func (s *Store) Base() string {
	return s.base
}

func (s *Store) bucketDir(bucket string) (string, error) {
	if !bucketNameRe.MatchString(bucket) {
		return "", fmt.Errorf("invalid cache name for disk store: %q", bucket)
	}
	return filepath.Join(s.base, bucket), nil
}

// EntryPath returns the path where key would live in bucket, and whether a
// file currently exists there.
func (s *Store) EntryPath(bucket, key string) (string, bool, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", false, err
	}
	p := filepath.Join(dir, cachestore.EncodeKey(key))
	if _, err := os.Stat(p); err == nil {
		return p, true, nil
	}
	return p, false, nil
}

func (s *Store) CreateBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	des, err := os.ReadDir(s.base)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	var names []string
	for _, de := range des {
		if de.IsDir() && bucketNameRe.MatchString(de.Name()) {
			names = append(names, de.Name())
		}
	}
	return names, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) (*cachestore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok, err := s.EntryPath(bucket, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cachestore.ErrNotFound
	}
	log.Debugf("cache file %s", p)
	return readEntry(p)
}

// Put stages every entry in a temp file, then renames them into place. If a
// step fails, the entries already renamed are put back the way they were, so
// the batch lands whole or not at all.
func (s *Store) Put(ctx context.Context, bucket string, entries ...*cachestore.Entry) error {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	staged := make([]string, 0, len(entries))
	defer func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		tmp, err := stageEntry(dir, e)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}

	done := make([]commit, 0, len(entries))
	for i, e := range entries {
		c, err := commitEntry(staged[i], filepath.Join(dir, cachestore.EncodeKey(e.Key)))
		if err != nil {
			for j := len(done) - 1; j >= 0; j-- {
				done[j].undo()
			}
			return err
		}
		done = append(done, c)
	}
	for _, c := range done {
		c.finish()
	}
	return nil
}

func (s *Store) Entries(ctx context.Context, bucket string) ([]*cachestore.Entry, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	entries := make([]*cachestore.Entry, 0, len(des))
	for _, de := range des {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() || filepath.Ext(de.Name()) == ".tmp" {
			continue
		}
		e, err := readEntry(filepath.Join(dir, de.Name()))
		if err != nil {
			log.WithError(err).Warnf("skipping unreadable cache file %s", de.Name())
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func readEntry(p string) (*cachestore.Entry, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return cachestore.DecodeEntry(b)
}

func stageEntry(dir string, e *cachestore.Entry) (string, error) {
	data, err := cachestore.EncodeEntry(e)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, "entry-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to write to cache: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Chmod(tmp, os.FileMode(0o600)); err != nil { //nolint:mnd
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write to cache: %w", err)
	}
	return tmp, nil
}

// commit records one renamed entry and the copy of what it replaced.
type commit struct {
	target string
	backup string
}

func commitEntry(tmp, target string) (commit, error) {
	c := commit{target: target}
	if _, err := os.Lstat(target); err == nil {
		// The .tmp suffix keeps backups out of Entries.
		c.backup = target + ".bak.tmp"
		if err := backupFile(target, c.backup); err != nil {
			return c, fmt.Errorf("failed to write to cache: %w", err)
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		c.finish()
		return c, fmt.Errorf("failed to write to cache: %w", err)
	}
	return c, nil
}

func backupFile(src, dst string) error {
	_ = os.Remove(dst)
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600) //nolint:mnd
}

func (c commit) undo() {
	if c.backup == "" {
		_ = os.Remove(c.target)
		return
	}
	if err := os.Rename(c.backup, c.target); err != nil {
		log.WithError(err).Warnf("failed to restore cache file %s", c.target)
	}
}

func (c commit) finish() {
	if c.backup != "" {
		_ = os.Remove(c.backup)
	}
}
