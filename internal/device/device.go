// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package device

import (
	"os"
	"runtime"
	"strings"
	"time"
)

// PerformanceTiming carries navigation timing metrics in milliseconds.
type PerformanceTiming struct {
	TTFB     int `json:"ttfb"`
	DOMLoad  int `json:"domLoad"`
	FullLoad int `json:"fullLoad"`
}

// ConnectionInfo describes observed network quality.
type ConnectionInfo struct {
	EffectiveType string  `json:"effectiveType"`
	DownlinkMbps  float64 `json:"downlink"`
	RTTMillis     int     `json:"rtt"`
	SaveData      bool    `json:"saveData"`
}

// FingerprintBundle groups the probe hashes plus the low-entropy basic hash.
type FingerprintBundle struct {
	Canvas string `json:"canvas"`
	WebGL  string `json:"webgl"`
	Audio  string `json:"audio"`
	Basic  string `json:"basic"`
}

// Signals is the raw signal set a Source exposes. The host environment owns
// most of these; NewStaticSource fills what the Go runtime can supply.
type Signals struct {
	ScreenWidth       int
	ScreenHeight      int
	ViewportWidth     int
	ViewportHeight    int
	ScreenAvailWidth  int
	ScreenAvailHeight int
	ColorDepth        int
	PixelRatio        float64
	Orientation       string

	Timezone  string
	Language  string
	Languages []string

	UserAgent           string
	Platform            string
	HardwareConcurrency int
	DeviceMemoryGB      float64

	Webdriver        bool
	CookiesEnabled   bool
	PDFViewerEnabled bool
	DoNotTrack       bool
	AdBlock          *bool

	GPURenderer string

	// Globals lists injected host global object names, used for webview
	// classification alongside the user agent.
	Globals []string

	Performance *PerformanceTiming
	Connection  *ConnectionInfo
}

// Source supplies the current signal set. Volatile fields (viewport,
// connection) are expected to reflect the moment of the call.
type Source interface {
	Signals() Signals
}

// StaticSource is the built-in Source: fixed host-provided signals over
// runtime-derived defaults.
type StaticSource struct {
	signals Signals
}

// NewStaticSource builds a source from the given signals, filling zero
// fields with what the local environment knows.
func NewStaticSource(signals Signals) *StaticSource {
	if signals.HardwareConcurrency == 0 {
		signals.HardwareConcurrency = runtime.NumCPU()
	}
	if signals.Platform == "" {
		signals.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}
	if signals.Timezone == "" {
		signals.Timezone = time.Now().Location().String()
	}
	if signals.Language == "" {
		signals.Language = localeFromEnv()
	}
	if len(signals.Languages) == 0 && signals.Language != "" {
		signals.Languages = []string{signals.Language}
	}
	return &StaticSource{signals: signals}
}

// Signals implements Source.
func (s *StaticSource) Signals() Signals { return s.signals }

// localeFromEnv extracts a language tag from LANG/LC_ALL ("en_US.UTF-8"
// becomes "en-US").
func localeFromEnv() string {
	for _, name := range []string{"LC_ALL", "LANG"} {
		raw := os.Getenv(name)
		if raw == "" || raw == "C" || raw == "POSIX" {
			continue
		}
		raw, _, _ = strings.Cut(raw, ".")
		return strings.ReplaceAll(raw, "_", "-")
	}
	return ""
}

// Snapshot is a point-in-time device capture attached to every event.
// Field names match the collector's wire schema.
type Snapshot struct {
	ScreenWidth       int     `json:"screenWidth"`
	ScreenHeight      int     `json:"screenHeight"`
	ViewportWidth     int     `json:"viewportWidth"`
	ViewportHeight    int     `json:"viewportHeight"`
	ScreenAvailWidth  int     `json:"screenAvailWidth"`
	ScreenAvailHeight int     `json:"screenAvailHeight"`
	ColorDepth        int     `json:"colorDepth"`
	PixelRatio        float64 `json:"pixelRatio"`
	Orientation       string  `json:"orientation"`

	Timezone  string   `json:"timezone"`
	Language  string   `json:"language"`
	Languages []string `json:"languages"`

	UserAgent           string  `json:"userAgent"`
	Platform            string  `json:"platform"`
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemoryGB      float64 `json:"deviceMemory,omitempty"`

	Webdriver        bool  `json:"webdriver"`
	PDFViewerEnabled bool  `json:"pdfViewerEnabled"`
	DoNotTrack       bool  `json:"doNotTrack"`
	CookieEnabled    bool  `json:"cookieEnabled"`
	AdBlock          *bool `json:"adBlock"`

	Webview     string `json:"webview,omitempty"`
	GPURenderer string `json:"gpuRenderer,omitempty"`

	Performance *PerformanceTiming `json:"performance,omitempty"`
	Connection  *ConnectionInfo    `json:"connection,omitempty"`

	Fingerprint FingerprintBundle `json:"fingerprint"`
}
