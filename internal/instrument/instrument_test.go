// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package instrument

import (
	"sync"
	"testing"
	"time"

	"github.com/perimetra/beacon/internal/config"
)

type recorded struct {
	name string
	data map[string]any
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Track(name string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{name: name, data: data})
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitEvents(t *testing.T, r *recorder, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("events = %d, want %d", r.count(), want)
}

func TestScrollHighWaterDebounced(t *testing.T) {
	rec := &recorder{}
	inst := New(config.New(), rec, "https://www.site.com/", WithDebounce(10*time.Millisecond))

	inst.OnScroll(Scroll{Depth: 25})
	inst.OnScroll(Scroll{Depth: 50})
	inst.OnScroll(Scroll{Depth: 40})
	waitEvents(t, rec, 1)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("scroll burst produced %d events, want 1", len(events))
	}
	if events[0].name != "scroll" || events[0].data["depth"] != 50 {
		t.Errorf("got %s %v, want scroll depth 50", events[0].name, events[0].data)
	}

	// Below the high-water mark: nothing.
	inst.OnScroll(Scroll{Depth: 30})
	time.Sleep(30 * time.Millisecond)
	if rec.count() != 1 {
		t.Error("regression below high-water mark emitted an event")
	}

	// Depths over 100 clamp.
	inst.OnScroll(Scroll{Depth: 140})
	waitEvents(t, rec, 2)
	if got := rec.all()[1].data["depth"]; got != 100 {
		t.Errorf("depth = %v, want clamped 100", got)
	}
}

func TestScrollDisabled(t *testing.T) {
	cfg := config.New()
	cfg.Set(config.KeyScrollTracking, false)
	rec := &recorder{}
	inst := New(cfg, rec, "https://www.site.com/", WithDebounce(time.Millisecond))

	inst.OnScroll(Scroll{Depth: 80})
	time.Sleep(20 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("disabled scroll tracking emitted an event")
	}
}

func TestClickClassification(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		wantName string // "" means no event
		external any
	}{
		{"same host ignored", "https://www.site.com/about", "", nil},
		{"configured domain exact", "https://partner.com/offer", "internal_click", false},
		{"configured domain subdomain", "https://app.partner.com/login", "internal_click", false},
		{"suffix without dot boundary", "https://evilpartner.com/", "external_click", true},
		{"parent of configured subdomain", "https://example.com/", "external_click", true},
		{"unrelated host", "https://other.org/page", "external_click", true},
		{"relative url ignored", "/local/path", "", nil},
		{"download on any host", "https://other.org/report.pdf", "file_download", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Set(config.KeyDomains, []string{"partner.com", "app.example.com"})
			rec := &recorder{}
			inst := New(cfg, rec, "https://www.site.com/")

			inst.OnClick(Click{URL: tc.url, Text: "link"})

			if tc.wantName == "" {
				if rec.count() != 0 {
					t.Fatalf("got %v, want no event", rec.all())
				}
				return
			}
			events := rec.all()
			if len(events) != 1 || events[0].name != tc.wantName {
				t.Fatalf("got %v, want one %s", events, tc.wantName)
			}
			if tc.external != nil && events[0].data["is_external"] != tc.external {
				t.Errorf("is_external = %v, want %v", events[0].data["is_external"], tc.external)
			}
		})
	}
}

func TestClickDownloadDetails(t *testing.T) {
	rec := &recorder{}
	inst := New(config.New(), rec, "https://www.site.com/")

	inst.OnClick(Click{URL: "https://cdn.site.com/files/whitepaper.PDF"})

	events := rec.all()
	if len(events) != 1 || events[0].name != "file_download" {
		t.Fatalf("got %v, want file_download", events)
	}
	if events[0].data["extension"] != "pdf" {
		t.Errorf("extension = %v, want pdf", events[0].data["extension"])
	}
	if events[0].data["filename"] != "whitepaper.PDF" {
		t.Errorf("filename = %v, want whitepaper.PDF", events[0].data["filename"])
	}
}

func TestClickDownloadDisabledFallsThrough(t *testing.T) {
	cfg := config.New()
	cfg.Set(config.KeyDownloadTracking, false)
	rec := &recorder{}
	inst := New(cfg, rec, "https://www.site.com/")

	inst.OnClick(Click{URL: "https://other.org/report.pdf"})

	events := rec.all()
	if len(events) != 1 || events[0].name != "external_click" {
		t.Fatalf("got %v, want external_click when download tracking is off", events)
	}
}

func TestFormSubmitFiltersPasswordFields(t *testing.T) {
	rec := &recorder{}
	inst := New(config.New(), rec, "https://www.site.com/")

	inst.OnFormSubmit(FormSubmit{
		ID:     "signup",
		Action: "/register",
		Fields: []string{"email", "password", "confirm_password", "", "name"},
	})

	events := rec.all()
	if len(events) != 1 || events[0].name != "form_submit" {
		t.Fatalf("got %v, want form_submit", events)
	}
	if events[0].data["id"] != "signup" {
		t.Errorf("id = %v, want signup", events[0].data["id"])
	}
	if events[0].data["action"] != "/register" {
		t.Errorf("action = %v, want /register", events[0].data["action"])
	}
	fields, ok := events[0].data["fields"].([]string)
	if !ok {
		t.Fatalf("fields has type %T", events[0].data["fields"])
	}
	want := []string{"email", "name"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestVisibilityDwell(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rec := &recorder{}
	inst := New(config.New(), rec, "https://www.site.com/", WithNow(clock))

	now = now.Add(90 * time.Second)
	inst.OnVisibility(Visibility{Hidden: true})

	events := rec.all()
	if len(events) != 1 || events[0].name != "page_hidden" {
		t.Fatalf("got %v, want page_hidden", events)
	}
	if events[0].data["time_visible"] != 90 {
		t.Errorf("time_visible = %v, want 90", events[0].data["time_visible"])
	}

	// Repeated hidden signals collapse.
	inst.OnVisibility(Visibility{Hidden: true})
	if rec.count() != 1 {
		t.Error("duplicate hidden signal emitted an event")
	}

	inst.OnVisibility(Visibility{Hidden: false})
	events = rec.all()
	if len(events) != 2 || events[1].name != "page_visible" {
		t.Fatalf("got %v, want page_visible", events)
	}
}

func TestNavigatePageview(t *testing.T) {
	rec := &recorder{}
	inst := New(config.New(), rec, "https://www.site.com/", WithDebounce(5*time.Millisecond))

	inst.OnScroll(Scroll{Depth: 60})
	waitEvents(t, rec, 1)

	inst.OnNavigate(Navigation{URL: "https://www.site.com/pricing"})
	events := rec.all()
	if len(events) != 2 || events[1].name != "pageview" {
		t.Fatalf("got %v, want pageview", events)
	}

	pageURL, referrer := inst.Location()
	if pageURL != "https://www.site.com/pricing" {
		t.Errorf("page url = %q", pageURL)
	}
	if referrer != "https://www.site.com/" {
		t.Errorf("referrer = %q", referrer)
	}

	// High-water mark resets per page.
	inst.OnScroll(Scroll{Depth: 10})
	waitEvents(t, rec, 3)
	if got := rec.all()[2].data["depth"]; got != 10 {
		t.Errorf("post-navigation depth = %v, want 10", got)
	}

	// Navigating to the current URL is a no-op.
	inst.OnNavigate(Navigation{URL: "https://www.site.com/pricing"})
	if rec.count() != 3 {
		t.Error("same-URL navigation emitted an event")
	}
}
