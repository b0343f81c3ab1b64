// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Package event defines the wire payload delivered to the collector and the
// boundary validation applied before anything reaches the transport.
package event

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/perimetra/beacon/internal/device"
)

// Boundary limits for host-supplied tracking input.
const (
	// MaxNameLen caps the event name length.
	MaxNameLen = 100

	// MaxDataBytes caps the serialized size of the custom data object.
	MaxDataBytes = 10 * 1024
)

var (
	// ErrEmptyName rejects unnamed events.
	ErrEmptyName = errors.New("event name must be a non-empty string")

	// ErrNameTooLong rejects names over MaxNameLen.
	ErrNameTooLong = fmt.Errorf("event name exceeds %d characters", MaxNameLen)

	// ErrDataTooLarge rejects custom data over MaxDataBytes serialized.
	ErrDataTooLarge = fmt.Errorf("event data exceeds %d bytes serialized", MaxDataBytes)
)

// Payload is one tracked event as delivered to the collector.
type Payload struct {
	EventName string  `json:"event_name"`
	Timestamp float64 `json:"timestamp"` // unix seconds

	UserID    string `json:"user_id,omitempty"`
	VisitorID string `json:"visitor_id"`
	SessionID string `json:"session_id"`

	URL       string `json:"url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Device  *device.Snapshot `json:"device,omitempty"`
	Traffic map[string]any   `json:"traffic"`
	Data    map[string]any   `json:"data"`
}

// ValidateName checks the event-name boundary rules.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// ValidateData checks that data serializes and fits the size bound. Returns
// the serialization error for non-serializable values (channels, cycles).
func ValidateData(data map[string]any) error {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("event data not serializable: %w", err)
	}
	if len(raw) > MaxDataBytes {
		return ErrDataTooLarge
	}
	return nil
}

// Marshal serializes for dispatch: a single payload becomes a JSON object,
// a longer batch a JSON array preserving order.
func Marshal(batch []*Payload) ([]byte, error) {
	if len(batch) == 1 {
		return json.Marshal(batch[0])
	}
	return json.Marshal(batch)
}
