// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/transport"
)

// memStore is an in-memory storage.Store for tests.
type memStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemStore() *memStore { return &memStore{m: make(map[string]string)} }

func (s *memStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *memStore) Set(key, value string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *memStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *memStore) Close() error { return nil }

// captureDeliverer records delivered bodies.
type captureDeliverer struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *captureDeliverer) Deliver(_ context.Context, body []byte) transport.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, append([]byte(nil), body...))
	return transport.Result{Class: transport.Success, StatusCode: 200}
}

func (c *captureDeliverer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func (c *captureDeliverer) event(t *testing.T, i int) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var obj map[string]any
	if err := json.Unmarshal(c.bodies[i], &obj); err != nil {
		t.Fatalf("body %d: %v", i, err)
	}
	return obj
}

func waitDeliveries(t *testing.T, c *captureDeliverer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("deliveries = %d, want %d", c.count(), want)
}

func newTestAgent(t *testing.T) (*Agent, *config.Store, *captureDeliverer) {
	t.Helper()
	cfg := config.New()
	cd := &captureDeliverer{}
	a := New(cfg, newMemStore(), Options{
		StartURL:  "https://www.site.com/landing",
		UserAgent: "test-agent/1.0",
		TransportOptions: []transport.Option{
			transport.WithDeliverer(cd),
			transport.WithBeaconDeliverer(cd),
		},
	})
	return a, cfg, cd
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name    string
		raw     []any
		want    Command
		wantErr bool
	}{
		{"config", []any{"config", "batchSize", float64(10)}, ConfigCmd{Key: "batchSize", Value: float64(10)}, false},
		{"track bare", []any{"track", "signup"}, TrackCmd{Name: "signup"}, false},
		{"track nil data", []any{"track", "signup", nil}, TrackCmd{Name: "signup"}, false},
		{"setUserId", []any{"setUserId", "user-1"}, SetUserIDCmd{ID: "user-1"}, false},
		{"debug", []any{"debug", true}, DebugCmd{Enabled: true}, false},
		{"empty", []any{}, nil, true},
		{"non-string action", []any{42}, nil, true},
		{"unknown action", []any{"selfDestruct"}, nil, true},
		{"config missing value", []any{"config", "batchSize"}, nil, true},
		{"track non-string name", []any{"track", 7}, nil, true},
		{"track non-object data", []any{"track", "signup", "oops"}, nil, true},
		{"debug non-bool", []any{"debug", "yes"}, nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("got %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			switch want := tc.want.(type) {
			case ConfigCmd:
				if got != want {
					t.Errorf("got %#v, want %#v", got, want)
				}
			case TrackCmd:
				gc, ok := got.(TrackCmd)
				if !ok || gc.Name != want.Name {
					t.Errorf("got %#v, want %#v", got, want)
				}
			default:
				if got != tc.want {
					t.Errorf("got %#v, want %#v", got, tc.want)
				}
			}
		})
	}

	t.Run("track with data", func(t *testing.T) {
		got, err := ParseCommand([]any{"track", "purchase", map[string]any{"plan": "pro"}})
		if err != nil {
			t.Fatal(err)
		}
		cmd := got.(TrackCmd)
		if cmd.Name != "purchase" || cmd.Data["plan"] != "pro" {
			t.Errorf("got %#v", cmd)
		}
	})
}

func TestInitializationEmitsPageview(t *testing.T) {
	a, cfg, cd := newTestAgent(t)

	if a.initialized() {
		t.Fatal("agent initialized before baseUrl")
	}
	cfg.Set(config.KeyBaseURL, "https://collector.example.com")
	if !a.initialized() {
		t.Fatal("agent not initialized after baseUrl")
	}

	waitDeliveries(t, cd, 1)
	ev := cd.event(t, 0)
	if ev["event_name"] != "pageview" {
		t.Errorf("first event = %v, want pageview", ev["event_name"])
	}
	if ev["url"] != "https://www.site.com/landing" {
		t.Errorf("url = %v", ev["url"])
	}
	if ev["user_agent"] != "test-agent/1.0" {
		t.Errorf("user_agent = %v", ev["user_agent"])
	}
	if ev["visitor_id"] == "" || ev["visitor_id"] == nil {
		t.Error("pageview missing visitor_id")
	}
	if ev["session_id"] == "" || ev["session_id"] == nil {
		t.Error("pageview missing session_id")
	}
	if ev["device"] == nil {
		t.Error("pageview missing device snapshot")
	}
	if _, ok := ev["data"].(map[string]any); !ok {
		t.Errorf("data = %v, want empty object", ev["data"])
	}
	if _, ok := ev["traffic"].(map[string]any); !ok {
		t.Errorf("traffic = %v, want empty object", ev["traffic"])
	}

	// A second baseUrl set must not re-initialize.
	cfg.Set(config.KeyBaseURL, "https://other.example.com")
	time.Sleep(50 * time.Millisecond)
	if cd.count() != 1 {
		t.Errorf("re-configuring baseUrl emitted %d extra events", cd.count()-1)
	}
}

func TestTrackBeforeInitializationDrops(t *testing.T) {
	a, _, cd := newTestAgent(t)

	a.Track("signup", nil)
	time.Sleep(20 * time.Millisecond)
	if cd.count() != 0 {
		t.Errorf("pre-init track delivered %d events", cd.count())
	}
}

func TestRunDrainsQueuedCommandsInOrder(t *testing.T) {
	a, _, cd := newTestAgent(t)

	a.Enqueue(ConfigCmd{Key: config.KeyBaseURL, Value: "https://collector.example.com"})
	a.Enqueue(TrackCmd{Name: "first"})
	a.Enqueue(TrackCmd{Name: "second"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	waitDeliveries(t, cd, 3) // pageview + first + second
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	// Deliveries are one goroutine per event, so assert membership rather
	// than wire order.
	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		got[cd.event(t, i)["event_name"].(string)] = true
	}
	for _, name := range []string{"pageview", "first", "second"} {
		if !got[name] {
			t.Errorf("missing delivered event %q (got %v)", name, got)
		}
	}
}

func TestSetUserIDBeforeInitializationParked(t *testing.T) {
	a, cfg, cd := newTestAgent(t)

	a.SetUserID("user-42")
	cfg.Set(config.KeyBaseURL, "https://collector.example.com")

	waitDeliveries(t, cd, 1)
	ev := cd.event(t, 0)
	if ev["user_id"] != "user-42" {
		t.Errorf("user_id = %v, want user-42", ev["user_id"])
	}
}

func TestInvalidEventsRejected(t *testing.T) {
	a, cfg, cd := newTestAgent(t)
	cfg.Set(config.KeyBaseURL, "https://collector.example.com")
	waitDeliveries(t, cd, 1) // initial pageview

	a.Track("", nil)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	a.Track(string(long), nil)

	bigVal := make([]byte, 11*1024)
	for i := range bigVal {
		bigVal[i] = 'y'
	}
	a.Track("oversized", map[string]any{"blob": string(bigVal)})

	time.Sleep(50 * time.Millisecond)
	if cd.count() != 1 {
		t.Errorf("invalid events delivered: %d total deliveries", cd.count())
	}
}

func TestDebugCommandTogglesConfig(t *testing.T) {
	a, cfg, _ := newTestAgent(t)

	a.dispatch(DebugCmd{Enabled: true})
	if !cfg.Bool(config.KeyDebug) {
		t.Error("debug command did not set the config flag")
	}
	a.dispatch(DebugCmd{Enabled: false})
	if cfg.Bool(config.KeyDebug) {
		t.Error("debug command did not clear the config flag")
	}
}

func TestEnqueueBoundedInbox(t *testing.T) {
	cfg := config.New()
	a := New(cfg, newMemStore(), Options{StartURL: "https://www.site.com/", InboxSize: 2})

	if !a.Enqueue(TrackCmd{Name: "one"}) || !a.Enqueue(TrackCmd{Name: "two"}) {
		t.Fatal("enqueue failed below capacity")
	}
	if a.Enqueue(TrackCmd{Name: "three"}) {
		t.Error("enqueue succeeded beyond capacity")
	}
}

func TestCloseFlushesPending(t *testing.T) {
	a, cfg, cd := newTestAgent(t)
	cfg.Set(config.KeyBaseURL, "https://collector.example.com")
	waitDeliveries(t, cd, 1) // initial pageview

	cfg.Set(config.KeyBatchSize, 10)
	a.Track("pending", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Close(ctx)

	waitDeliveries(t, cd, 2)
	if ev := cd.event(t, 1); ev["event_name"] != "pending" {
		t.Errorf("teardown flush delivered %v, want pending", ev["event_name"])
	}
}
