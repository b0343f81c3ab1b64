// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

// Command beacon-agent runs the telemetry agent as a standalone process.
// It loads its configuration from yaml/env, reads newline-delimited JSON
// commands from stdin (["track","signup",{…}]) and ships events to the
// configured collector. SIGINT/SIGTERM flush pending events through the
// beacon path before exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perimetra/beacon/internal/agent"
	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/logging"
	"github.com/perimetra/beacon/internal/storage"
	"github.com/perimetra/beacon/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to beacon.yaml (default: search working dir, /etc/beacon, $BEACON_CONFIG)")
	flag.Parse()

	fc, err := config.LoadFile(*configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  fc.Logging.Level,
		Format: fc.Logging.Format,
		Output: os.Stderr,
	})

	store := storage.Open(fc.StoragePath)
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("storage close failed")
		}
	}()

	cfg := config.New()
	startURL := ""
	if fc.Host != "" {
		startURL = "https://" + fc.Host + "/"
	}
	a := agent.New(cfg, store, agent.Options{
		StartURL:  startURL,
		Host:      fc.Host,
		UserAgent: "beacon-agent/1.0",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.New("beacon", logging.NewSlogLogger(), supervisor.Config{})
	tree.Add(&agentService{agent: a})
	tree.Add(&sweeperService{agent: a})
	tree.Add(&stdinService{agent: a, input: os.Stdin, stop: cancel})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	// Seeding the store may set baseUrl, which initializes the agent, so
	// the command loop has to be running first.
	fc.Apply(cfg)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor error")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	// Page-unload analog: one beacon flush for whatever is still queued.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer flushCancel()
	a.Close(flushCtx)

	logging.Info().Msg("agent stopped")
	return nil
}
