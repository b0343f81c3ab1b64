// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package event

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"valid", "purchase", nil},
		{"empty", "", ErrEmptyName},
		{"at limit", strings.Repeat("a", MaxNameLen), nil},
		{"over limit", strings.Repeat("a", MaxNameLen+1), ErrNameTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateName(tc.input); !errors.Is(got, tc.want) {
				t.Errorf("ValidateName(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidateData(t *testing.T) {
	t.Run("nil ok", func(t *testing.T) {
		if err := ValidateData(nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("small object ok", func(t *testing.T) {
		if err := ValidateData(map[string]any{"amount": 42}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("oversized rejected", func(t *testing.T) {
		big := map[string]any{"blob": strings.Repeat("x", MaxDataBytes)}
		if err := ValidateData(big); !errors.Is(err, ErrDataTooLarge) {
			t.Errorf("expected ErrDataTooLarge, got %v", err)
		}
	})

	t.Run("non-serializable rejected", func(t *testing.T) {
		if err := ValidateData(map[string]any{"ch": make(chan int)}); err == nil {
			t.Error("expected serialization error for channel value")
		}
	})
}

func TestMarshalShape(t *testing.T) {
	single := []*Payload{{EventName: "pageview", VisitorID: "v1", SessionID: "s1"}}
	data, err := Marshal(single)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != '{' {
		t.Errorf("single payload should serialize as an object, got %s", data[:1])
	}

	batch := []*Payload{
		{EventName: "first", VisitorID: "v1", SessionID: "s1"},
		{EventName: "second", VisitorID: "v1", SessionID: "s1"},
	}
	data, err = Marshal(batch)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != '[' {
		t.Errorf("batch should serialize as an array, got %s", data[:1])
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded[0]["event_name"] != "first" || decoded[1]["event_name"] != "second" {
		t.Errorf("batch order not preserved: %v", decoded)
	}
}
