// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package main

import (
	"bufio"
	"context"
	"io"

	json "github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"

	"github.com/perimetra/beacon/internal/agent"
	"github.com/perimetra/beacon/internal/logging"
)

// agentService runs the command inbox loop under supervision.
type agentService struct {
	agent *agent.Agent
}

func (s *agentService) Serve(ctx context.Context) error {
	s.agent.Run(ctx)
	return ctx.Err()
}

func (s *agentService) String() string { return "agent-inbox" }

// sweeperService runs the dead-letter sweep loop.
type sweeperService struct {
	agent *agent.Agent
}

func (s *sweeperService) Serve(ctx context.Context) error {
	s.agent.RunSweeper(ctx)
	return ctx.Err()
}

func (s *sweeperService) String() string { return "dead-letter-sweeper" }

// stdinService feeds newline-delimited JSON commands from the host into
// the agent inbox. EOF on input means the host is done: the service stops
// the process instead of restarting.
type stdinService struct {
	agent *agent.Agent
	input io.Reader
	stop  context.CancelFunc
}

func (s *stdinService) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.input)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw []any
		if err := json.Unmarshal(line, &raw); err != nil {
			logging.Warn().Err(err).Msg("unparseable command line")
			continue
		}
		cmd, err := agent.ParseCommand(raw)
		if err != nil {
			logging.Warn().Err(err).Msg("invalid command")
			continue
		}
		s.agent.Enqueue(cmd)
	}
	if err := scanner.Err(); err != nil {
		logging.Warn().Err(err).Msg("command input error")
	}

	logging.Info().Msg("command input closed, shutting down")
	s.stop()
	return suture.ErrDoNotRestart
}

func (s *stdinService) String() string { return "stdin-commands" }
