// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Domain separation keys for the BLAKE3 keyed hashes. Fixed constants;
// changing them invalidates every previously derived fingerprint. The bytes
// are the ASCII domain name zero-padded to 32, readable in hex dumps.
var (
	basicDomainKey = [32]byte{
		'b', 'e', 'a', 'c', 'o', 'n', '.', 'd', 'e', 'v', 'i', 'c', 'e', '.',
		'b', 'a', 's', 'i', 'c', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	probeDomainKey = [32]byte{
		'b', 'e', 'a', 'c', 'o', 'n', '.', 'd', 'e', 'v', 'i', 'c', 'e', '.',
		'p', 'r', 'o', 'b', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// fingerprintLen is the hex length of emitted fingerprint hashes.
const fingerprintLen = 16

func keyedHash(key [32]byte, data []byte) string {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		return ""
	}
	_, _ = hasher.Write(data)
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum)[:fingerprintLen]
}

// BasicFingerprint derives the low-entropy, normalization-tolerant device
// hash: the same physical device should produce the same value inside an
// app webview and a regular browser. The user agent and anything else that
// differs between those contexts is deliberately excluded. Screen
// dimensions are orientation-normalized by sorting width/height.
//
// The result is computed once and cached.
func (c *Collector) BasicFingerprint() string {
	c.mu.RLock()
	cached := c.basicFP
	c.mu.RUnlock()
	if cached != "" {
		return cached
	}

	fp := basicFingerprint(c.source.Signals())

	c.mu.Lock()
	c.basicFP = fp
	c.mu.Unlock()
	return fp
}

func basicFingerprint(sig Signals) string {
	width, height := sig.ScreenWidth, sig.ScreenHeight
	if width > height {
		width, height = height, width
	}

	parts := []string{
		fmt.Sprintf("%dx%d", width, height),
		strconv.Itoa(sig.ColorDepth),
		strconv.FormatFloat(sig.PixelRatio, 'g', -1, 64),
		strconv.Itoa(sig.HardwareConcurrency),
		strconv.FormatFloat(sig.DeviceMemoryGB, 'g', -1, 64),
		sig.Timezone,
		sig.Language,
		sig.Platform,
	}
	joined := strings.Join(parts, "|")

	// No usable entropy at all: fall back to a random throwaway id rather
	// than hashing the empty shape every device without signals would share.
	if joined == "0x0|0|0|0|0|||" {
		return "rn_" + uuid.NewString()[:12]
	}
	return keyedHash(basicDomainKey, []byte(joined))
}

// RenderProbe is the built-in Probe: it runs a render function and hashes
// its output in the probe hash domain. This is the draw-then-hash shape of
// the canvas and WebGL fingerprints, with the rendering supplied by the
// host environment.
type RenderProbe struct {
	name   string
	render func(ctx context.Context) ([]byte, error)
}

// NewRenderProbe builds a probe for the given bundle slot.
func NewRenderProbe(name string, render func(ctx context.Context) ([]byte, error)) *RenderProbe {
	return &RenderProbe{name: name, render: render}
}

// Name implements Probe.
func (p *RenderProbe) Name() string { return p.name }

// Collect implements Probe.
func (p *RenderProbe) Collect(ctx context.Context) (string, error) {
	data, err := p.render(ctx)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	return keyedHash(probeDomainKey, data), nil
}
