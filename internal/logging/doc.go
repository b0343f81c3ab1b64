// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package logging provides centralized zerolog-based logging for Beacon.
//
// The agent is embedded in host applications that must never be broken by
// telemetry, so every component logs through this package instead of
// returning errors to the host. The runtime "debug" option maps to the
// global level via SetDebug.
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")
package logging
