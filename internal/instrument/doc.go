// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package instrument turns raw host interaction signals (scroll, click,
// form submit, visibility, navigation) into named telemetry events. Each
// producer is toggleable through the config store and the flags are
// re-read on every signal, so runtime config changes apply immediately.
package instrument
