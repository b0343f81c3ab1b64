// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package storage

import (
	"strings"
	"time"
)

// Well-known keys persisted by the agent (namespaced before storage).
const (
	KeyVisitorID = "visitor_id"
	KeyUserID    = "user_id"
	KeySession   = "session"
	KeyFailed    = "failed"
)

// Store is a best-effort string key-value store. Implementations never
// surface backend failures: a failed read reports absence, a failed write is
// silently dropped after a debug log.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)

	// Set writes key=value. A positive ttl bounds the entry's lifetime;
	// zero means no expiry.
	Set(key, value string, ttl time.Duration)

	// Delete removes key.
	Delete(key string)

	// Close releases backend resources.
	Close() error
}

// RootDomain returns the registrable root domain for a hostname: the last
// two dot-separated labels. Keys scoped with it are shared by sibling
// subdomains, the way a root-domain cookie is.
func RootDomain(hostname string) string {
	parts := strings.Split(hostname, ".")
	if len(parts) > 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return hostname
}

// ScopedKey prefixes key with the registrable root domain of host so that
// agents on app.example.com and www.example.com resolve the same entry.
func ScopedKey(host, key string) string {
	if host == "" {
		return key
	}
	return RootDomain(host) + ":" + key
}

// Namespaced wraps a store so every key carries the configured namespace
// prefix. The prefix is read per call because the namespace option can be
// reconfigured at runtime.
func Namespaced(s Store, prefix func() string) Store {
	return &namespaced{inner: s, prefix: prefix}
}

type namespaced struct {
	inner  Store
	prefix func() string
}

func (n *namespaced) Get(key string) (string, bool) { return n.inner.Get(n.prefix() + key) }

func (n *namespaced) Set(key, value string, ttl time.Duration) {
	n.inner.Set(n.prefix()+key, value, ttl)
}

func (n *namespaced) Delete(key string) { n.inner.Delete(n.prefix() + key) }

func (n *namespaced) Close() error { return n.inner.Close() }
