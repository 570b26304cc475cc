// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package cachestore provides named cache buckets that map request identity
// (method + URL) to stored responses. The persistence itself is delegated to a
// Backend; see the memstore, diskstore, sqlitestore and s3store packages.
package cachestore
