// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package device collects device and environment signals and derives the
// fingerprint hashes used for identity.
//
// Collection is split in two tiers. Cheap synchronous signals (geometry,
// locale, platform) come from a host-supplied Source and are re-read on
// every Info call. Expensive probes (the canvas, WebGL, and audio render
// hashes of the browser build) run asynchronously once per collector;
// Ready bounds the wait for them with a soft one-second deadline so event
// delivery is never stalled indefinitely. A probe that is unsupported or
// fails contributes an empty hash and never blocks the others.
package device
