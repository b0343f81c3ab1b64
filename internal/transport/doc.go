// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package transport batches event payloads and delivers them to the
// collector endpoint. Failed batches are retried with exponential backoff,
// then persisted as dead-letter records and re-attempted by a background
// sweep loop. Delivery runs through a circuit breaker so a dead collector
// does not consume the retry budget of every batch.
package transport
