// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"INFO", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := parseLevel(tc.input); got != tc.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("component", "test").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"test"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestSetDebug(t *testing.T) {
	defer Init(DefaultConfig())

	SetDebug(true)
	if GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %v", GetLevel())
	}
	SetDebug(false)
	if GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", GetLevel())
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := &SlogHandler{logger: NewTestLogger(&buf)}
	slogger := slog.New(handler)

	slogger.Info("service started", "service", "sweep", "count", int64(3))

	out := buf.String()
	if !strings.Contains(out, `"service":"sweep"`) {
		t.Errorf("expected service attr, got %q", out)
	}
	if !strings.Contains(out, `"count":3`) {
		t.Errorf("expected count attr, got %q", out)
	}
	if !strings.Contains(out, "service started") {
		t.Errorf("expected message, got %q", out)
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	handler := &SlogHandler{logger: NewTestLogger(&buf)}
	slogger := slog.New(handler).WithGroup("supervisor").With("tree", "root")

	slogger.Warn("restarting")

	out := buf.String()
	if !strings.Contains(out, `"supervisor.tree":"root"`) {
		t.Errorf("expected grouped attr, got %q", out)
	}
}
