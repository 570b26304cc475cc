// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package s3store keeps cache buckets as object prefixes in an S3 bucket.
//
// Layout: <prefix>/<cache>/.cache marks a cache, and every entry lives at
// <prefix>/<cache>/<md5(key)>.json.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/staranto/assetcache/internal/cachestore"
)

const markerName = ".cache"

// ObjectAPI is the subset of *s3.Client the store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store is a cachestore.Backend on top of S3.
type Store struct {
	api    ObjectAPI
	bucket string
	prefix string
}

// New returns a Store writing to s3Bucket beneath prefix.
func New(api ObjectAPI, s3Bucket, prefix string) (*Store, error) {
	if strings.TrimSpace(s3Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	return &Store{
		api:    api,
		bucket: s3Bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *Store) root() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *Store) cacheDir(cache string) (string, error) {
	if cache == "" || strings.Contains(cache, "/") {
		return "", fmt.Errorf("invalid cache name for s3 store: %q", cache)
	}
	return s.root() + cache + "/", nil
}

// ObjectKey returns the object key for an entry key in cache.
func (s *Store) ObjectKey(cache, key string) (string, error) {
	dir, err := s.cacheDir(cache)
	if err != nil {
		return "", err
	}
	return dir + cachestore.EncodeKey(key) + ".json", nil
}

func (s *Store) CreateBucket(ctx context.Context, cache string) error {
	dir, err := s.cacheDir(cache)
	if err != nil {
		return err
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dir + markerName),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to create cache marker: %w", err)
	}
	return nil
}

func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.root()),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.root()), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (s *Store) Get(ctx context.Context, cache, key string) (*cachestore.Entry, error) {
	objKey, err := s.ObjectKey(cache, key)
	if err != nil {
		return nil, err
	}
	return s.getObject(ctx, objKey)
}

// Put writes one object per entry. When a write fails the objects already
// written by this call are deleted, so no new key from a failed batch stays
// behind. A key the batch overwrote is deleted too rather than restored; the
// next miss refetches it.
func (s *Store) Put(ctx context.Context, cache string, entries ...*cachestore.Entry) error {
	written := make([]string, 0, len(entries))
	for _, e := range entries {
		objKey, err := s.ObjectKey(cache, e.Key)
		if err != nil {
			s.rollback(ctx, written)
			return err
		}
		data, err := cachestore.EncodeEntry(e)
		if err != nil {
			s.rollback(ctx, written)
			return err
		}
		_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(objKey),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			s.rollback(ctx, written)
			return fmt.Errorf("failed to put S3 object %s: %w", objKey, err)
		}
		written = append(written, objKey)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, objKeys []string) {
	// The batch may have failed because ctx ended; the cleanup still runs.
	ctx = context.WithoutCancel(ctx)
	for _, k := range objKeys {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(k),
		})
		if err != nil {
			log.WithError(err).Warnf("failed to remove S3 object %s", k)
		}
	}
}

func (s *Store) Entries(ctx context.Context, cache string) ([]*cachestore.Entry, error) {
	dir, err := s.cacheDir(cache)
	if err != nil {
		return nil, err
	}

	var entries []*cachestore.Entry
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Base(key) == markerName {
				continue
			}
			e, err := s.getObject(ctx, key)
			if err != nil {
				log.WithError(err).Warnf("skipping unreadable cache object %s", key)
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Store) getObject(ctx context.Context, objKey string) (*cachestore.Entry, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return nil, cachestore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return cachestore.DecodeEntry(data)
}
