// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package agent is the public face of the telemetry pipeline: a bounded
// command inbox, the config/track/setUserId/debug command set, and the
// one-way initialization that wires device collection, identity, transport
// and auto-instrumentation together once a collector base URL is known.
package agent
