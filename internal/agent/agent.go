// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package agent

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/device"
	"github.com/perimetra/beacon/internal/event"
	"github.com/perimetra/beacon/internal/identity"
	"github.com/perimetra/beacon/internal/instrument"
	"github.com/perimetra/beacon/internal/logging"
	"github.com/perimetra/beacon/internal/metrics"
	"github.com/perimetra/beacon/internal/storage"
	"github.com/perimetra/beacon/internal/transport"
)

// defaultInboxSize bounds the command queue when Options does not.
const defaultInboxSize = 128

// Options describes the host environment the agent runs in.
type Options struct {
	// Source supplies device signals. nil falls back to a StaticSource
	// describing the local machine.
	Source device.Source

	// Probes are the async fingerprint probes to run at initialization.
	Probes []device.Probe

	// StartURL is the page the host starts on.
	StartURL string

	// UserAgent is stamped on every payload.
	UserAgent string

	// Host scopes persisted keys; derived from StartURL when empty.
	Host string

	// InboxSize bounds the command queue.
	InboxSize int

	// TransportOptions is passed through to the transport at
	// initialization, mainly for tests.
	TransportOptions []transport.Option
}

// Agent owns the pipeline. It starts uninitialized and transitions
// exactly once when a collector base URL arrives; before that, config and
// setUserId commands are absorbed and track commands dropped.
type Agent struct {
	cfg   *config.Store
	base  storage.Store
	store storage.Store
	opts  Options
	host  string

	inbox chan Command

	initOnce sync.Once
	initDone chan struct{}

	mu            sync.Mutex
	pendingUserID string
	collector     *device.Collector
	identity      *identity.Manager
	transport     *transport.Transport
	inst          *instrument.Instrumenter
}

// New builds an uninitialized agent over cfg and store.
func New(cfg *config.Store, store storage.Store, opts Options) *Agent {
	if opts.Source == nil {
		opts.Source = device.NewStaticSource(device.Signals{})
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	host := opts.Host
	if host == "" {
		if u, err := url.Parse(opts.StartURL); err == nil {
			host = u.Hostname()
		}
	}

	a := &Agent{
		cfg:      cfg,
		base:     store,
		opts:     opts,
		host:     host,
		inbox:    make(chan Command, opts.InboxSize),
		initDone: make(chan struct{}),
	}

	// Persisted keys share one scope per namespace and root domain, so
	// sibling subdomains see the same visitor.
	a.store = storage.Namespaced(store, func() string {
		return cfg.String(config.KeyNamespace) + storage.ScopedKey(a.host, "")
	})

	cfg.OnSet(config.KeyBaseURL, func(any) { a.initOnce.Do(a.initialize) })
	return a
}

// initialize wires the pipeline. Runs exactly once, triggered by the
// first accepted baseUrl.
func (a *Agent) initialize() {
	defer guard("initialize")

	a.mu.Lock()
	a.collector = device.NewCollector(a.opts.Source, a.opts.Probes...)
	a.identity = identity.New(a.cfg, a.store, a.collector)
	a.transport = transport.New(a.cfg, a.store, a.opts.TransportOptions...)
	a.inst = instrument.New(a.cfg, a, a.opts.StartURL)
	pending := a.pendingUserID
	a.pendingUserID = ""
	a.mu.Unlock()

	if pending != "" {
		a.identity.SetUserID(pending)
	}

	logging.Info().Str("host", a.host).Msg("agent initialized")
	close(a.initDone)

	a.Track("pageview", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.transport.SyncDomains(ctx, a.host, a.identity.Context().VisitorID)
}

func (a *Agent) initialized() bool {
	select {
	case <-a.initDone:
		return true
	default:
		return false
	}
}

// Enqueue offers one command to the inbox. A full inbox drops the command
// with a warning rather than blocking the host.
func (a *Agent) Enqueue(cmd Command) bool {
	select {
	case a.inbox <- cmd:
		metrics.CommandInboxDepth.Set(float64(len(a.inbox)))
		return true
	default:
		logging.Warn().Str("action", cmd.Action()).Msg("command inbox full, dropping")
		return false
	}
}

// Run consumes the inbox until ctx is canceled: first the commands queued
// before Run, then live ones, in arrival order.
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.inbox:
			a.dispatch(cmd)
			metrics.CommandInboxDepth.Set(float64(len(a.inbox)))
		}
	}
}

func (a *Agent) dispatch(cmd Command) {
	defer guard("dispatch")
	metrics.CommandsProcessed.WithLabelValues(cmd.Action()).Inc()

	switch c := cmd.(type) {
	case ConfigCmd:
		if !a.cfg.Set(c.Key, c.Value) {
			logging.Warn().Str("key", c.Key).Msg("config command rejected")
		}
	case TrackCmd:
		a.Track(c.Name, c.Data)
	case SetUserIDCmd:
		a.SetUserID(c.ID)
	case DebugCmd:
		a.cfg.Set(config.KeyDebug, c.Enabled)
		logging.SetDebug(c.Enabled)
	}
}

// Track validates, stamps and queues one event. Before initialization
// events are dropped; there is no collector to send them to and no
// identity to stamp them with.
func (a *Agent) Track(name string, data map[string]any) {
	defer guard("track")

	if !a.initialized() {
		logging.Debug().Str("event", name).Msg("dropping event before initialization")
		metrics.RecordRejection("uninitialized")
		return
	}
	if err := event.ValidateName(name); err != nil {
		logging.Warn().Err(err).Msg("event rejected")
		metrics.RecordRejection("invalid_name")
		return
	}
	if err := event.ValidateData(data); err != nil {
		logging.Warn().Err(err).Str("event", name).Msg("event rejected")
		metrics.RecordRejection("data_too_large")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), device.ReadyTimeout)
	defer cancel()
	a.collector.Ready(ctx)

	idc := a.identity.Context()
	pageURL, referrer := a.inst.Location()

	// Absent data and traffic go out as {}, not null.
	if data == nil {
		data = map[string]any{}
	}
	traffic := a.cfg.Object(config.KeyTraffic)
	if traffic == nil {
		traffic = map[string]any{}
	}

	a.transport.Send(&event.Payload{
		EventName: name,
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
		UserID:    idc.UserID,
		VisitorID: idc.VisitorID,
		SessionID: idc.SessionID,
		URL:       pageURL,
		Referrer:  referrer,
		UserAgent: a.opts.UserAgent,
		Device:    a.collector.Info(),
		Traffic:   traffic,
		Data:      data,
	})
}

// SetUserID attaches a user identifier. Before initialization the id is
// parked and applied when the identity manager exists.
func (a *Agent) SetUserID(id string) {
	defer guard("setUserId")

	if !a.initialized() {
		a.mu.Lock()
		a.pendingUserID = id
		a.mu.Unlock()
		return
	}
	a.identity.SetUserID(id)
}

// Signal forwarding. No-ops before initialization.

func (a *Agent) OnScroll(sig instrument.Scroll) {
	defer guard("scroll")
	if a.initialized() {
		a.inst.OnScroll(sig)
	}
}

func (a *Agent) OnClick(sig instrument.Click) {
	defer guard("click")
	if a.initialized() {
		a.inst.OnClick(sig)
	}
}

func (a *Agent) OnFormSubmit(sig instrument.FormSubmit) {
	defer guard("form")
	if a.initialized() {
		a.inst.OnFormSubmit(sig)
	}
}

func (a *Agent) OnVisibility(sig instrument.Visibility) {
	defer guard("visibility")
	if a.initialized() {
		a.inst.OnVisibility(sig)
	}
}

func (a *Agent) OnNavigate(sig instrument.Navigation) {
	defer guard("navigate")
	if a.initialized() {
		a.inst.OnNavigate(sig)
	}
}

// RunSweeper blocks until initialization, then runs the dead-letter sweep
// loop until ctx is canceled.
func (a *Agent) RunSweeper(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-a.initDone:
	}
	a.transport.RunSweeper(ctx)
}

// Close flushes pending events through the beacon path and shuts the
// transport down. The storage store is owned by the caller.
func (a *Agent) Close(ctx context.Context) {
	if !a.initialized() {
		return
	}
	a.transport.Close(ctx)
}

// guard recovers panics at the dispatch boundary; the host never sees a
// fault from the agent.
func guard(op string) {
	if r := recover(); r != nil {
		logging.Error().Interface("panic", r).Str("op", op).Msg("recovered panic")
	}
}
