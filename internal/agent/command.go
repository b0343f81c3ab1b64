// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package agent

import (
	"fmt"
)

// Command is one queued instruction for the agent. The variant set is
// closed: config, track, setUserId, debug.
type Command interface {
	isCommand()
	Action() string
}

// ConfigCmd sets one configuration option.
type ConfigCmd struct {
	Key   string
	Value any
}

// TrackCmd records a custom event.
type TrackCmd struct {
	Name string
	Data map[string]any
}

// SetUserIDCmd attaches a user identifier to subsequent events.
type SetUserIDCmd struct {
	ID string
}

// DebugCmd toggles verbose logging.
type DebugCmd struct {
	Enabled bool
}

func (ConfigCmd) isCommand()    {}
func (TrackCmd) isCommand()     {}
func (SetUserIDCmd) isCommand() {}
func (DebugCmd) isCommand()     {}

func (ConfigCmd) Action() string    { return "config" }
func (TrackCmd) Action() string     { return "track" }
func (SetUserIDCmd) Action() string { return "setUserId" }
func (DebugCmd) Action() string     { return "debug" }

// ParseCommand parses the wire shape [action, …args] as decoded from
// JSON. Unknown actions and malformed arguments are errors; the caller
// logs and drops them.
func ParseCommand(raw []any) (Command, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	action, ok := raw[0].(string)
	if !ok {
		return nil, fmt.Errorf("command action has type %T, want string", raw[0])
	}

	switch action {
	case "config":
		if len(raw) != 3 {
			return nil, fmt.Errorf("config command wants [config, key, value], got %d elements", len(raw))
		}
		key, ok := raw[1].(string)
		if !ok {
			return nil, fmt.Errorf("config key has type %T, want string", raw[1])
		}
		return ConfigCmd{Key: key, Value: raw[2]}, nil

	case "track":
		if len(raw) < 2 || len(raw) > 3 {
			return nil, fmt.Errorf("track command wants [track, name, data?], got %d elements", len(raw))
		}
		name, ok := raw[1].(string)
		if !ok {
			return nil, fmt.Errorf("track name has type %T, want string", raw[1])
		}
		cmd := TrackCmd{Name: name}
		if len(raw) == 3 && raw[2] != nil {
			data, ok := raw[2].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("track data has type %T, want object", raw[2])
			}
			cmd.Data = data
		}
		return cmd, nil

	case "setUserId":
		if len(raw) != 2 {
			return nil, fmt.Errorf("setUserId command wants [setUserId, id], got %d elements", len(raw))
		}
		id, ok := raw[1].(string)
		if !ok {
			return nil, fmt.Errorf("setUserId id has type %T, want string", raw[1])
		}
		return SetUserIDCmd{ID: id}, nil

	case "debug":
		if len(raw) != 2 {
			return nil, fmt.Errorf("debug command wants [debug, enabled], got %d elements", len(raw))
		}
		enabled, ok := raw[1].(bool)
		if !ok {
			return nil, fmt.Errorf("debug flag has type %T, want bool", raw[1])
		}
		return DebugCmd{Enabled: enabled}, nil
	}

	return nil, fmt.Errorf("unknown command action %q", action)
}
