// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRootDomain(t *testing.T) {
	cases := []struct {
		hostname string
		want     string
	}{
		{"app.example.com", "example.com"},
		{"deep.sub.example.com", "example.com"},
		{"example.com", "example.com"},
		{"localhost", "localhost"},
	}
	for _, tc := range cases {
		t.Run(tc.hostname, func(t *testing.T) {
			if got := RootDomain(tc.hostname); got != tc.want {
				t.Errorf("RootDomain(%q) = %q, want %q", tc.hostname, got, tc.want)
			}
		})
	}
}

func TestScopedKeySharedAcrossSubdomains(t *testing.T) {
	a := ScopedKey("app.example.com", KeyVisitorID)
	b := ScopedKey("www.example.com", KeyVisitorID)
	if a != b {
		t.Errorf("sibling subdomains should share keys: %q vs %q", a, b)
	}
	c := ScopedKey("other.org", KeyVisitorID)
	if a == c {
		t.Errorf("unrelated domains must not share keys: %q", c)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadger(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer store.Close()

	if _, ok := store.Get("missing"); ok {
		t.Error("expected absence for missing key")
	}

	store.Set("visitor_id", "v-123", 0)
	got, ok := store.Get("visitor_id")
	if !ok || got != "v-123" {
		t.Errorf("Get = %q, %v", got, ok)
	}

	store.Delete("visitor_id")
	if _, ok := store.Get("visitor_id"); ok {
		t.Error("expected absence after delete")
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")

	first := OpenFile(path)
	first.Set("session", `{"id":"abc","ts":1}`, 0)

	second := OpenFile(path)
	got, ok := second.Get("session")
	if !ok || got != `{"id":"abc","ts":1}` {
		t.Errorf("reopened Get = %q, %v", got, ok)
	}
}

func TestFileStoreTTLExpiry(t *testing.T) {
	store := OpenFile(filepath.Join(t.TempDir(), "kv.json"))

	store.Set("short", "x", time.Millisecond)
	time.Sleep(1100 * time.Millisecond) // expiry has second granularity
	if _, ok := store.Get("short"); ok {
		t.Error("expected expired entry to be absent")
	}

	store.Set("long", "y", time.Hour)
	if _, ok := store.Get("long"); !ok {
		t.Error("expected unexpired entry to be present")
	}
}

func TestDualStoreFallback(t *testing.T) {
	dir := t.TempDir()
	badgerStore, err := OpenBadger(filepath.Join(dir, "kv"))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	fileStore := OpenFile(filepath.Join(dir, "kv.json"))
	dual := NewDual(badgerStore, fileStore)
	defer dual.Close()

	t.Run("writes reach both backends", func(t *testing.T) {
		dual.Set("user_id", "u-1", 0)
		if got, ok := badgerStore.Get("user_id"); !ok || got != "u-1" {
			t.Errorf("primary Get = %q, %v", got, ok)
		}
		if got, ok := fileStore.Get("user_id"); !ok || got != "u-1" {
			t.Errorf("secondary Get = %q, %v", got, ok)
		}
	})

	t.Run("reads fall back to secondary", func(t *testing.T) {
		fileStore.Set("only_secondary", "s", 0)
		if got, ok := dual.Get("only_secondary"); !ok || got != "s" {
			t.Errorf("fallback Get = %q, %v", got, ok)
		}
	})

	t.Run("nil backends degrade silently", func(t *testing.T) {
		empty := NewDual(nil, nil)
		empty.Set("k", "v", 0)
		if _, ok := empty.Get("k"); ok {
			t.Error("store with no backends should remember nothing")
		}
	})
}

func TestNamespacedStore(t *testing.T) {
	fileStore := OpenFile(filepath.Join(t.TempDir(), "kv.json"))
	prefix := "acme_"
	ns := Namespaced(fileStore, func() string { return prefix })

	ns.Set("visitor_id", "v-9", 0)
	if got, ok := fileStore.Get("acme_visitor_id"); !ok || got != "v-9" {
		t.Errorf("raw Get = %q, %v", got, ok)
	}
	if got, ok := ns.Get("visitor_id"); !ok || got != "v-9" {
		t.Errorf("namespaced Get = %q, %v", got, ok)
	}

	// Namespace changes apply to subsequent operations.
	prefix = "other_"
	if _, ok := ns.Get("visitor_id"); ok {
		t.Error("expected miss after namespace change")
	}
}
