// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package storage provides the agent's best-effort persistent key-value
// store. Identity state and dead-letter records live here.
//
// Two redundant backends back the store: a BadgerDB primary and a JSON
// snapshot file secondary. Reads prefer the primary and fall back; writes
// go to both. Every operation is best-effort:
// a failing backend reads as absent and writes are dropped with a debug log,
// because telemetry must never break the host.
package storage
