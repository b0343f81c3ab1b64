// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package instrument

import (
	"math"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/logging"
)

// scrollDebounce coalesces bursts of scroll signals into one event.
const scrollDebounce = 500 * time.Millisecond

// downloadExtensions is the file_download allow-list.
var downloadExtensions = map[string]struct{}{
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {},
	"ppt": {}, "pptx": {}, "zip": {}, "rar": {}, "7z": {},
	"exe": {}, "mp3": {}, "mp4": {}, "avi": {}, "mov": {},
}

// Tracker receives the events the instrumenter produces.
type Tracker interface {
	Track(name string, data map[string]any)
}

// Raw interaction signals forwarded by the host.
type (
	// Scroll reports the viewport scroll depth in percent.
	Scroll struct{ Depth float64 }

	// Click reports an activated link.
	Click struct {
		URL  string
		Text string
	}

	// FormSubmit reports a submitted form. Fields carries field names
	// only; values never cross this boundary.
	FormSubmit struct {
		ID     string
		Action string
		Fields []string
	}

	// Visibility reports the page moving to or from the background.
	Visibility struct{ Hidden bool }

	// Navigation reports a location change from push, replace or pop.
	Navigation struct{ URL string }
)

// Instrumenter classifies signals and emits events through a Tracker.
type Instrumenter struct {
	cfg     *config.Store
	tracker Tracker
	now     func() time.Time

	mu           sync.Mutex
	pageURL      string
	pageHost     string
	referrer     string
	highWater    int
	debounced    func(func())
	visibleSince time.Time
	hidden       bool
}

// Option overrides an Instrumenter collaborator, mainly for tests.
type Option func(*Instrumenter)

// WithDebounce replaces the scroll debounce window.
func WithDebounce(d time.Duration) Option {
	return func(i *Instrumenter) { i.debounced = debounce.New(d) }
}

// WithNow replaces the clock used for dwell tracking.
func WithNow(now func() time.Time) Option {
	return func(i *Instrumenter) { i.now = now }
}

// New builds an instrumenter anchored at startURL.
func New(cfg *config.Store, tracker Tracker, startURL string, opts ...Option) *Instrumenter {
	i := &Instrumenter{
		cfg:       cfg,
		tracker:   tracker,
		now:       time.Now,
		debounced: debounce.New(scrollDebounce),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.pageURL = startURL
	i.pageHost = hostOf(startURL)
	i.visibleSince = i.now()
	return i
}

// Location returns the current page URL and the referrer (the previous
// page URL, empty on the first page).
func (i *Instrumenter) Location() (pageURL, referrer string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pageURL, i.referrer
}

// OnScroll keeps a monotone high-water depth per page and emits a single
// debounced scroll event per burst.
func (i *Instrumenter) OnScroll(sig Scroll) {
	if !i.cfg.Bool(config.KeyScrollTracking) {
		return
	}
	depth := int(math.Round(sig.Depth))
	if depth > 100 {
		depth = 100
	}
	if depth < 0 {
		depth = 0
	}

	i.mu.Lock()
	if depth <= i.highWater {
		i.mu.Unlock()
		return
	}
	i.highWater = depth
	emit := i.debounced
	i.mu.Unlock()

	emit(func() {
		i.mu.Lock()
		mark := i.highWater
		i.mu.Unlock()
		i.tracker.Track("scroll", map[string]any{"depth": mark})
	})
}

// OnClick classifies an activated link. Downloads win over link
// classification; links within the current host emit nothing; configured
// companion domains emit internal_click; everything else external_click.
func (i *Instrumenter) OnClick(sig Click) {
	u, err := url.Parse(sig.URL)
	if err != nil || u.Host == "" {
		return
	}
	host := strings.ToLower(u.Hostname())

	if i.cfg.Bool(config.KeyDownloadTracking) {
		if ext, ok := downloadExtension(u.Path); ok {
			i.tracker.Track("file_download", map[string]any{
				"url":       sig.URL,
				"extension": ext,
				"filename":  path.Base(u.Path),
			})
			return
		}
	}

	if !i.cfg.Bool(config.KeyClickTracking) {
		return
	}

	i.mu.Lock()
	pageHost := i.pageHost
	i.mu.Unlock()
	if host == pageHost {
		return
	}

	data := map[string]any{
		"url":    sig.URL,
		"text":   truncate(sig.Text, 100),
		"domain": host,
	}
	for _, domain := range i.cfg.Strings(config.KeyDomains) {
		if domainMatch(host, strings.ToLower(strings.TrimSpace(domain))) {
			data["is_external"] = false
			i.tracker.Track("internal_click", data)
			return
		}
	}
	data["is_external"] = true
	i.tracker.Track("external_click", data)
}

// OnFormSubmit emits form_submit with field names only. Password fields
// are filtered again here even though the host contract excludes them.
func (i *Instrumenter) OnFormSubmit(sig FormSubmit) {
	if !i.cfg.Bool(config.KeyFormTracking) {
		return
	}
	fields := make([]string, 0, len(sig.Fields))
	for _, name := range sig.Fields {
		if name == "" || strings.Contains(strings.ToLower(name), "password") {
			continue
		}
		fields = append(fields, name)
	}
	i.tracker.Track("form_submit", map[string]any{
		"id":     sig.ID,
		"action": sig.Action,
		"fields": fields,
	})
}

// OnVisibility tracks dwell time across hide/show transitions.
func (i *Instrumenter) OnVisibility(sig Visibility) {
	if !i.cfg.Bool(config.KeyVisibilityTrack) {
		return
	}
	i.mu.Lock()
	if sig.Hidden == i.hidden {
		i.mu.Unlock()
		return
	}
	i.hidden = sig.Hidden
	now := i.now()
	var dwell time.Duration
	if sig.Hidden {
		dwell = now.Sub(i.visibleSince)
	} else {
		i.visibleSince = now
	}
	i.mu.Unlock()

	if sig.Hidden {
		i.tracker.Track("page_hidden", map[string]any{
			"time_visible": int(math.Round(dwell.Seconds())),
		})
		return
	}
	i.tracker.Track("page_visible", nil)
}

// OnNavigate moves the instrumenter to a new page: the old URL becomes the
// referrer, per-page state resets, and a pageview is emitted.
func (i *Instrumenter) OnNavigate(sig Navigation) {
	i.mu.Lock()
	if sig.URL == i.pageURL {
		i.mu.Unlock()
		return
	}
	i.referrer = i.pageURL
	i.pageURL = sig.URL
	i.pageHost = hostOf(sig.URL)
	i.highWater = 0
	i.visibleSince = i.now()
	i.mu.Unlock()

	logging.Debug().Str("url", sig.URL).Msg("navigation")
	i.tracker.Track("pageview", nil)
}

// domainMatch reports whether host is domain itself or one of its
// subdomains. Matching is one-directional: a configured "example.com"
// covers "app.example.com", but a configured "app.example.com" never
// covers "example.com".
func domainMatch(host, domain string) bool {
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func downloadExtension(p string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "" {
		return "", false
	}
	_, ok := downloadExtensions[ext]
	return ext, ok
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
