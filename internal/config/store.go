// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/perimetra/beacon/internal/logging"
)

// Option keys recognized by the store. Hosts may set additional keys; they
// are stored verbatim and carried on every event's traffic context.
const (
	KeyBaseURL          = "baseUrl"
	KeyEndpoint         = "endpoint"
	KeySessionTimeout   = "sessionTimeout" // minutes
	KeyMaxRetries       = "maxRetries"
	KeyRetryDelay       = "retryDelay" // milliseconds, backoff base
	KeyBatchSize        = "batchSize"
	KeyBatchTimeout     = "batchTimeout" // seconds
	KeyScrollTracking   = "scrollTracking"
	KeyClickTracking    = "clickTracking"
	KeyFormTracking     = "formTracking"
	KeyDownloadTracking = "downloadTracking"
	KeyVisibilityTrack  = "visibilityTracking"
	KeyDebug            = "debug"
	KeyDomainSync       = "domainSync"
	KeyDomains          = "domains"
	KeyNamespace        = "namespace"
	KeyMaxFailedEvents  = "maxFailedEvents"
	KeyFailedEventsTTL  = "failedEventsTTL" // milliseconds
	KeyRetryInterval    = "retryInterval"   // milliseconds
	KeyIdentityStrategy = "identityStrategy"
	KeyTraffic          = "traffic"
)

// Identity strategy values for KeyIdentityStrategy.
const (
	IdentityFingerprint = "fingerprint"
	IdentityPersisted   = "persisted"
)

// ErrNoBaseURL is returned by ResolveEndpoint before baseUrl is configured.
var ErrNoBaseURL = errors.New("baseUrl not configured")

// Validator reports whether a candidate value is acceptable for an option.
type Validator func(v any) bool

// Store is the validated key/value configuration store, the source of truth
// for every other component. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	values     map[string]any
	validators map[string]Validator
	hooks      map[string][]func(any)
}

// New creates a store seeded with the agent defaults.
func New() *Store {
	s := &Store{
		values: map[string]any{
			KeyEndpoint:         "/track",
			KeySessionTimeout:   30,
			KeyMaxRetries:       3,
			KeyRetryDelay:       1000,
			KeyBatchSize:        1,
			KeyBatchTimeout:     5,
			KeyScrollTracking:   true,
			KeyClickTracking:    true,
			KeyFormTracking:     true,
			KeyDownloadTracking: true,
			KeyVisibilityTrack:  true,
			KeyDebug:            false,
			KeyDomainSync:       false,
			KeyDomains:          []string{},
			KeyNamespace:        "beacon_",
			KeyMaxFailedEvents:  50,
			KeyFailedEventsTTL:  86400000, // 24h
			KeyRetryInterval:    60000,
			KeyIdentityStrategy: IdentityFingerprint,
		},
		hooks: make(map[string][]func(any)),
	}
	s.validators = map[string]Validator{
		KeyBaseURL:  func(v any) bool { str, ok := v.(string); return ok && str != "" },
		KeyEndpoint: func(v any) bool { str, ok := v.(string); return ok && strings.HasPrefix(str, "/") },
		KeySessionTimeout: func(v any) bool {
			n, ok := asInt(v)
			return ok && n > 0 && n <= 1440
		},
		KeyMaxRetries: func(v any) bool {
			n, ok := asInt(v)
			return ok && n >= 0 && n <= 10
		},
		KeyRetryDelay: func(v any) bool {
			n, ok := asInt(v)
			return ok && n >= 100 && n <= 60000
		},
		KeyBatchSize: func(v any) bool {
			n, ok := asInt(v)
			return ok && n >= 1
		},
		KeyBatchTimeout: func(v any) bool {
			n, ok := asInt(v)
			return ok && n > 0 && n <= 300
		},
		KeyScrollTracking:   isBool,
		KeyClickTracking:    isBool,
		KeyFormTracking:     isBool,
		KeyDownloadTracking: isBool,
		KeyVisibilityTrack:  isBool,
		KeyDebug:            isBool,
		KeyDomainSync:       isBool,
		KeyDomains: func(v any) bool {
			_, ok := asStrings(v)
			return ok
		},
		KeyNamespace: func(v any) bool { str, ok := v.(string); return ok && str != "" },
		KeyMaxFailedEvents: func(v any) bool {
			n, ok := asInt(v)
			return ok && n >= 1 && n <= 10000
		},
		KeyFailedEventsTTL: func(v any) bool {
			n, ok := asInt(v)
			return ok && n > 0
		},
		KeyRetryInterval: func(v any) bool {
			n, ok := asInt(v)
			return ok && n >= 1000 && n <= 600000
		},
		KeyIdentityStrategy: func(v any) bool {
			str, ok := v.(string)
			return ok && (str == IdentityFingerprint || str == IdentityPersisted)
		},
		KeyTraffic: func(v any) bool {
			_, ok := v.(map[string]any)
			return ok
		},
	}
	return s
}

// Set applies value to key iff the registered validator accepts it. Keys
// without a validator are always accepted. Returns whether the mutation took
// effect; rejections keep the prior value and log a diagnostic.
func (s *Store) Set(key string, value any) bool {
	s.mu.Lock()
	if validate, ok := s.validators[key]; ok && !validate(value) {
		s.mu.Unlock()
		logging.Warn().Str("key", key).Interface("value", value).Msg("invalid config value rejected")
		return false
	}
	s.values[key] = value
	hooks := append([]func(any){}, s.hooks[key]...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(value)
	}
	return true
}

// Get returns the current value for key, or nil when unset.
func (s *Store) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// OnSet registers fn to run after every successful Set of key. Used by the
// agent to observe the baseUrl transition.
func (s *Store) OnSet(key string, fn func(value any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[key] = append(s.hooks[key], fn)
}

// String returns the string value for key, or "" when unset or mistyped.
func (s *Store) String(key string) string {
	str, _ := s.Get(key).(string)
	return str
}

// Int returns the integer value for key, or 0 when unset or mistyped.
func (s *Store) Int(key string) int {
	n, _ := asInt(s.Get(key))
	return n
}

// Bool returns the boolean value for key, or false when unset or mistyped.
func (s *Store) Bool(key string) bool {
	b, _ := s.Get(key).(bool)
	return b
}

// Strings returns the string-slice value for key, or nil.
func (s *Store) Strings(key string) []string {
	list, _ := asStrings(s.Get(key))
	return list
}

// Object returns the map value for key, or nil.
func (s *Store) Object(key string) map[string]any {
	obj, _ := s.Get(key).(map[string]any)
	return obj
}

// SessionTimeout returns the session inactivity window.
func (s *Store) SessionTimeout() time.Duration {
	return time.Duration(s.Int(KeySessionTimeout)) * time.Minute
}

// BatchTimeout returns how long a partial batch may wait before flushing.
func (s *Store) BatchTimeout() time.Duration {
	return time.Duration(s.Int(KeyBatchTimeout)) * time.Second
}

// RetryDelay returns the exponential backoff base delay.
func (s *Store) RetryDelay() time.Duration {
	return time.Duration(s.Int(KeyRetryDelay)) * time.Millisecond
}

// RetryInterval returns the dead-letter sweep period.
func (s *Store) RetryInterval() time.Duration {
	return time.Duration(s.Int(KeyRetryInterval)) * time.Millisecond
}

// FailedEventsTTL returns the maximum age of a dead-letter record.
func (s *Store) FailedEventsTTL() time.Duration {
	return time.Duration(s.Int(KeyFailedEventsTTL)) * time.Millisecond
}

// ResolveEndpoint concatenates baseUrl (required) and the endpoint path.
func (s *Store) ResolveEndpoint() (string, error) {
	base := s.String(KeyBaseURL)
	if base == "" {
		return "", ErrNoBaseURL
	}
	return strings.TrimSuffix(base, "/") + s.String(KeyEndpoint), nil
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// asInt accepts the integer shapes that reach the store: native ints from Go
// hosts and float64 from JSON-decoded commands.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// asStrings accepts []string and the []any shape produced by JSON decoding.
func asStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}
