// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package device

import (
	"context"
	"sync"
	"time"

	"github.com/perimetra/beacon/internal/logging"
)

// ReadyTimeout is the soft deadline Ready waits for the async probes. It is
// a bound on the caller's wait, not on the probes: a slow probe keeps
// running and its hash is picked up by later Info calls.
const ReadyTimeout = time.Second

// Probe names recognized in the fingerprint bundle. Probes with other names
// are still run; their results are just not carried on the bundle.
const (
	ProbeCanvas = "canvas"
	ProbeWebGL  = "webgl"
	ProbeAudio  = "audio"
)

// Probe computes one expensive fingerprint hash.
type Probe interface {
	// Name identifies the probe's slot in the fingerprint bundle.
	Name() string

	// Collect produces the hash. An error degrades the slot to "".
	Collect(ctx context.Context) (string, error)
}

// Collector gathers device snapshots. Probe hashes and the basic
// fingerprint are computed once and cached; everything else is read fresh
// from the Source per Info call.
type Collector struct {
	source Source

	mu      sync.RWMutex
	hashes  map[string]string
	basicFP string

	ready chan struct{}
}

// NewCollector starts the probes in the background and returns immediately.
func NewCollector(source Source, probes ...Probe) *Collector {
	c := &Collector{
		source: source,
		hashes: make(map[string]string),
		ready:  make(chan struct{}),
	}

	go func() {
		var wg sync.WaitGroup
		for _, probe := range probes {
			wg.Add(1)
			go func(p Probe) {
				defer wg.Done()
				c.runProbe(p)
			}(probe)
		}
		wg.Wait()
		close(c.ready)
	}()

	return c
}

func (c *Collector) runProbe(p Probe) {
	defer func() {
		if r := recover(); r != nil {
			logging.Debug().Str("probe", p.Name()).Interface("panic", r).Msg("fingerprint probe panicked")
		}
	}()

	hash, err := p.Collect(context.Background())
	if err != nil {
		logging.Debug().Err(err).Str("probe", p.Name()).Msg("fingerprint probe failed")
		hash = ""
	}

	c.mu.Lock()
	c.hashes[p.Name()] = hash
	c.mu.Unlock()
}

// Ready blocks until every probe has finished, ReadyTimeout has elapsed, or
// ctx is done, whichever comes first.
func (c *Collector) Ready(ctx context.Context) {
	timer := time.NewTimer(ReadyTimeout)
	defer timer.Stop()
	select {
	case <-c.ready:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Info captures a snapshot: fresh signals from the source plus whatever
// probe hashes are available right now.
func (c *Collector) Info() *Snapshot {
	sig := c.source.Signals()

	c.mu.RLock()
	bundle := FingerprintBundle{
		Canvas: c.hashes[ProbeCanvas],
		WebGL:  c.hashes[ProbeWebGL],
		Audio:  c.hashes[ProbeAudio],
	}
	c.mu.RUnlock()
	bundle.Basic = c.BasicFingerprint()

	return &Snapshot{
		ScreenWidth:       sig.ScreenWidth,
		ScreenHeight:      sig.ScreenHeight,
		ViewportWidth:     sig.ViewportWidth,
		ViewportHeight:    sig.ViewportHeight,
		ScreenAvailWidth:  sig.ScreenAvailWidth,
		ScreenAvailHeight: sig.ScreenAvailHeight,
		ColorDepth:        sig.ColorDepth,
		PixelRatio:        sig.PixelRatio,
		Orientation:       sig.Orientation,

		Timezone:  sig.Timezone,
		Language:  sig.Language,
		Languages: sig.Languages,

		UserAgent:           sig.UserAgent,
		Platform:            sig.Platform,
		HardwareConcurrency: sig.HardwareConcurrency,
		DeviceMemoryGB:      sig.DeviceMemoryGB,

		Webdriver:        sig.Webdriver,
		PDFViewerEnabled: sig.PDFViewerEnabled,
		DoNotTrack:       sig.DoNotTrack,
		CookieEnabled:    sig.CookiesEnabled,
		AdBlock:          sig.AdBlock,

		Webview:     DetectWebview(sig.UserAgent, sig.Globals),
		GPURenderer: sig.GPURenderer,

		Performance: sig.Performance,
		Connection:  sig.Connection,

		Fingerprint: bundle,
	}
}
