// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Store kinds accepted by Settings.StoreKind.
const (
	StoreMemory = "memory"
	StoreDisk   = "disk"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

// StoreKinds lists the valid StoreKind values.
var StoreKinds = []string{StoreMemory, StoreDisk, StoreSQLite, StoreS3}

// Settings is the resolved configuration of one run, after flags, env vars
// and the config file have been merged.
type Settings struct {
	Origin    string
	Listen    string
	CacheName string
	Manifest  []string

	StoreKind   string
	StoreDir    string
	StorePath   string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Profile   string
	S3Endpoint  string
	S3PathStyle bool
}

// Validate reports the first problem with s.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.CacheName) == "" {
		return errors.New("cache name is required")
	}
	if strings.TrimSpace(s.Origin) == "" {
		return errors.New("origin is required")
	}
	return s.ValidateStore()
}

// ValidateStore checks only the store settings. Commands that never touch the
// network, such as ls, use it in place of Validate.
func (s Settings) ValidateStore() error {
	switch s.StoreKind {
	case StoreMemory, StoreDisk:
	case StoreSQLite:
		if strings.TrimSpace(s.StorePath) == "" {
			return errors.New("sqlite store requires a path")
		}
	case StoreS3:
		if strings.TrimSpace(s.S3Bucket) == "" {
			return errors.New("s3 store requires a bucket")
		}
	default:
		return fmt.Errorf("unknown store kind %q, must be one of %v", s.StoreKind, StoreKinds)
	}
	return nil
}
