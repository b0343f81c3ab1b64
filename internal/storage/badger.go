// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/perimetra/beacon/internal/logging"
)

// BadgerStore is the durable primary backend, an embedded BadgerDB at a
// configured path. It is the local analog of the root-domain cookie jar.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at path. Callers treat an error as
// "backend unavailable" and continue on the secondary store.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.NumCompactors = 2
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	logging.Debug().Str("path", path).Msg("badger store opened")
	return &BadgerStore{db: db}, nil
}

// Get returns the value for key. Expired and missing entries both report
// absence; backend errors are logged and report absence too.
func (b *BadgerStore) Get(key string) (string, bool) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			logging.Debug().Err(err).Str("key", key).Msg("badger read failed")
		}
		return "", false
	}
	return value, true
}

// Set writes key=value with an optional TTL.
func (b *BadgerStore) Set(key, value string, ttl time.Duration) {
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("badger write failed")
	}
}

// Delete removes key.
func (b *BadgerStore) Delete(key string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("badger delete failed")
	}
}

// Close shuts the database down.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
