// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package storage

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/perimetra/beacon/internal/logging"
)

// FileStore is the secondary backend: a single JSON snapshot file. It keeps
// identity state readable when BadgerDB cannot be opened (locked directory,
// read-only volume), the way local storage backs up the cookie jar.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries map[string]fileEntry
}

type fileEntry struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix seconds, 0 = no expiry
}

// OpenFile loads (or initializes) the snapshot at path. A corrupt or
// unreadable snapshot starts empty rather than failing.
func OpenFile(path string) *FileStore {
	fs := &FileStore{path: path, entries: make(map[string]fileEntry)}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &fs.entries); err != nil {
			logging.Debug().Err(err).Str("path", path).Msg("file store snapshot corrupt, starting empty")
			fs.entries = make(map[string]fileEntry)
		}
	}
	return fs
}

// Get returns the value for key if present and unexpired.
func (f *FileStore) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	if !ok {
		return "", false
	}
	if entry.ExpiresAt > 0 && time.Now().Unix() >= entry.ExpiresAt {
		delete(f.entries, key)
		return "", false
	}
	return entry.Value, true
}

// Set writes key=value and persists the snapshot.
func (f *FileStore) Set(key, value string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry := fileEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	f.entries[key] = entry
	f.persist()
}

// Delete removes key and persists the snapshot.
func (f *FileStore) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.entries, key)
	f.persist()
}

// Close is a no-op; every mutation is persisted eagerly.
func (f *FileStore) Close() error { return nil }

// persist writes the snapshot atomically (temp file + rename). Must be
// called with mu held.
func (f *FileStore) persist() {
	data, err := json.Marshal(f.entries)
	if err != nil {
		logging.Debug().Err(err).Msg("file store marshal failed")
		return
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		logging.Debug().Err(err).Msg("file store mkdir failed")
		return
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		logging.Debug().Err(err).Msg("file store write failed")
		return
	}
	if err := os.Rename(tmp, f.path); err != nil {
		logging.Debug().Err(err).Msg("file store rename failed")
	}
}
