// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package storage

import (
	"path/filepath"
	"time"

	"github.com/perimetra/beacon/internal/logging"
)

// DualStore reads from the primary backend first and falls back to the
// secondary; writes go to both for redundancy. Either backend may be nil.
type DualStore struct {
	primary   Store
	secondary Store
}

// NewDual composes two backends. Passing nil for one degrades to a
// single-backed store; passing nil for both yields a store that remembers
// nothing, which the identity layer tolerates (in-memory session only).
func NewDual(primary, secondary Store) *DualStore {
	return &DualStore{primary: primary, secondary: secondary}
}

// Open builds the standard dual store under dir: BadgerDB plus a JSON
// snapshot. Badger being unavailable is not fatal; the snapshot alone
// carries identity.
func Open(dir string) *DualStore {
	var primary Store
	badgerStore, err := OpenBadger(filepath.Join(dir, "kv"))
	if err != nil {
		logging.Warn().Err(err).Str("dir", dir).Msg("durable store unavailable, continuing on snapshot only")
	} else {
		primary = badgerStore
	}
	return NewDual(primary, OpenFile(filepath.Join(dir, "kv.json")))
}

// Get prefers the primary backend and falls back to the secondary.
func (d *DualStore) Get(key string) (string, bool) {
	if d.primary != nil {
		if value, ok := d.primary.Get(key); ok {
			return value, true
		}
	}
	if d.secondary != nil {
		return d.secondary.Get(key)
	}
	return "", false
}

// Set writes to both backends.
func (d *DualStore) Set(key, value string, ttl time.Duration) {
	if d.primary != nil {
		d.primary.Set(key, value, ttl)
	}
	if d.secondary != nil {
		d.secondary.Set(key, value, ttl)
	}
}

// Delete removes key from both backends.
func (d *DualStore) Delete(key string) {
	if d.primary != nil {
		d.primary.Delete(key)
	}
	if d.secondary != nil {
		d.secondary.Delete(key)
	}
}

// Close closes both backends, returning the first error.
func (d *DualStore) Close() error {
	var first error
	if d.primary != nil {
		first = d.primary.Close()
	}
	if d.secondary != nil {
		if err := d.secondary.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
