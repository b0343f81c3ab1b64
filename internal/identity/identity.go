// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package identity derives and maintains the visitor, user, and session
// identifiers attached to every event.
//
// Two visitor strategies exist, selected by the identityStrategy option:
// "fingerprint" derives the id purely from the stable device fingerprint
// and touches no storage (the compliance-motivated variant), "persisted"
// keeps a long-lived id in storage with the fingerprint as its seed.
// Sessions are time-boxed with sliding expiration and rotate after the
// configured inactivity timeout. Storage unavailability degrades to an
// in-memory session, never to a failure.
package identity

import (
	"regexp"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/logging"
	"github.com/perimetra/beacon/internal/metrics"
	"github.com/perimetra/beacon/internal/storage"
)

// visitorTTL bounds the persisted visitor id's lifetime.
const visitorTTL = 365 * 24 * time.Hour

// maxUserIDLen caps host-supplied user identifiers.
const maxUserIDLen = 200

// emailPattern spots identifiers that look like raw email addresses.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Context is the identity triple stamped onto events.
type Context struct {
	VisitorID string
	UserID    string
	SessionID string
}

// Fingerprinter supplies the stable device hash the visitor id derives
// from. Satisfied by *device.Collector.
type Fingerprinter interface {
	BasicFingerprint() string
}

// sessionRecord is the persisted session state.
type sessionRecord struct {
	ID string `json:"id"`
	TS int64  `json:"ts"` // last activity, unix milliseconds
}

// Manager owns identity state for one agent instance.
type Manager struct {
	cfg   *config.Store
	store storage.Store
	fp    Fingerprinter

	now func() time.Time

	mu        sync.Mutex
	visitorID string
	userID    string
	session   sessionRecord
}

// New builds a manager, resolving the visitor id per the configured
// strategy, loading any persisted user id, and establishing the session.
func New(cfg *config.Store, store storage.Store, fp Fingerprinter) *Manager {
	m := &Manager{
		cfg:   cfg,
		store: store,
		fp:    fp,
		now:   time.Now,
	}
	m.visitorID = m.resolveVisitorID()
	if id, ok := store.Get(storage.KeyUserID); ok {
		m.userID = id
	}
	m.refreshSessionLocked()
	return m
}

// resolveVisitorID applies the configured identity strategy.
func (m *Manager) resolveVisitorID() string {
	if m.cfg.String(config.KeyIdentityStrategy) == config.IdentityPersisted {
		if id, ok := m.store.Get(storage.KeyVisitorID); ok && id != "" {
			return id
		}
		id := m.fp.BasicFingerprint()
		m.store.Set(storage.KeyVisitorID, id, visitorTTL)
		return id
	}
	// Fingerprint strategy: stateless, re-derived every page load.
	return m.fp.BasicFingerprint()
}

// SetUserID validates and persists a host-supplied user identifier (a CRM
// id, for instance). Email-shaped values are rejected to keep PII out of
// the identifier field.
func (m *Manager) SetUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLen {
		logging.Warn().Int("len", len(id)).Msg("user id rejected: empty or too long")
		return false
	}
	if emailPattern.MatchString(id) {
		logging.Warn().Msg("user id looks like an email address; use a hashed id or internal UUID")
		return false
	}

	m.mu.Lock()
	m.userID = id
	m.mu.Unlock()
	m.store.Set(storage.KeyUserID, id, visitorTTL)
	return true
}

// Context refreshes the session (rotating it if the inactivity timeout has
// passed) and returns the current identity triple.
func (m *Manager) Context() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshSessionLocked()
	return Context{
		VisitorID: m.visitorID,
		UserID:    m.userID,
		SessionID: m.session.ID,
	}
}

// refreshSessionLocked implements the sliding-expiration session contract:
// a missing, corrupt, or stale record mints a fresh id; a live one has its
// activity timestamp slid forward. The result is persisted either way.
func (m *Manager) refreshSessionLocked() {
	now := m.now().UnixMilli()
	timeout := m.cfg.SessionTimeout().Milliseconds()

	record := m.session
	if record.ID == "" {
		if raw, ok := m.store.Get(storage.KeySession); ok {
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				record = sessionRecord{}
			}
		}
	}

	if record.ID == "" || record.TS == 0 || now-record.TS > timeout {
		record = sessionRecord{ID: uuid.NewString(), TS: now}
		metrics.SessionsStarted.Inc()
		logging.Debug().Str("session_id", record.ID).Msg("session rotated")
	} else {
		record.TS = now
	}

	m.session = record
	if data, err := json.Marshal(record); err == nil {
		m.store.Set(storage.KeySession, string(data), 0)
	}
}
