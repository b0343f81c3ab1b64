// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package config implements the agent's runtime configuration store.
//
// Unlike a file-parsed server config, the store is mutated continuously at
// runtime through "config" commands from the host. Every recognized option
// carries a validator; an option is applied only when its validator accepts
// the value, otherwise the prior value is retained and a diagnostic is
// logged. Unrecognized options (host-defined extras such as traffic
// attribution objects) are stored verbatim.
//
// The koanf-based file/env loader in file.go seeds the store for the
// standalone binary; embedded hosts seed it with config commands instead.
package config
