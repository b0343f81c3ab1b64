// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/event"
	"github.com/perimetra/beacon/internal/logging"
	"github.com/perimetra/beacon/internal/metrics"
	"github.com/perimetra/beacon/internal/storage"
)

var errDeliveryFailed = errors.New("transient delivery failure")

// Transport queues payloads, batches them per configuration and drives
// delivery with retries and dead-letter persistence.
type Transport struct {
	cfg     *config.Store
	store   storage.Store
	deliver Deliverer
	beacon  Deliverer
	breaker *gobreaker.CircuitBreaker[Result]
	sleep   func(time.Duration)

	mu     sync.Mutex
	queue  []*event.Payload
	timer  *time.Timer
	closed bool

	dlMu sync.Mutex // serializes dead-letter reads against the sweep

	wg sync.WaitGroup
}

// Option overrides a Transport collaborator, mainly for tests.
type Option func(*Transport)

// WithDeliverer replaces the HTTP delivery path.
func WithDeliverer(d Deliverer) Option {
	return func(t *Transport) { t.deliver = d }
}

// WithBeaconDeliverer replaces the teardown delivery path.
func WithBeaconDeliverer(d Deliverer) Option {
	return func(t *Transport) { t.beacon = d }
}

// WithSleep replaces the backoff sleep between retry attempts.
func WithSleep(fn func(time.Duration)) Option {
	return func(t *Transport) { t.sleep = fn }
}

// New builds a transport over cfg and store. Delivery targets whatever
// ResolveEndpoint returns at request time.
func New(cfg *config.Store, store storage.Store, opts ...Option) *Transport {
	t := &Transport{
		cfg:     cfg,
		store:   store,
		breaker: newBreaker(),
		sleep:   time.Sleep,
	}
	t.deliver = NewHTTPDeliverer(cfg.ResolveEndpoint, nil)
	t.beacon = NewBeaconDeliverer(cfg.ResolveEndpoint, nil)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send queues one payload. Depending on batchSize it either dispatches the
// pending batch immediately or arms the batch timer. Payloads arriving
// before baseUrl is configured are dropped.
func (t *Transport) Send(p *event.Payload) {
	if _, err := t.cfg.ResolveEndpoint(); err != nil {
		logging.Debug().Str("event", p.EventName).Msg("dropping event, no collector configured")
		metrics.RecordRejection("uninitialized")
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, p)
	metrics.EventsQueued.WithLabelValues(p.EventName).Inc()
	metrics.QueueDepth.Set(float64(len(t.queue)))

	batchSize := t.cfg.Int(config.KeyBatchSize)
	if batchSize <= 1 || len(t.queue) >= batchSize {
		batch := t.takeLocked()
		t.mu.Unlock()
		t.dispatch(batch)
		return
	}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.cfg.BatchTimeout(), t.Flush)
	}
	t.mu.Unlock()
}

// Flush dispatches whatever is pending, regardless of batch size.
func (t *Transport) Flush() {
	t.mu.Lock()
	batch := t.takeLocked()
	t.mu.Unlock()
	t.dispatch(batch)
}

// takeLocked swaps out the pending queue and cancels the batch timer.
// Caller holds t.mu.
func (t *Transport) takeLocked() []*event.Payload {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	batch := t.queue
	t.queue = nil
	metrics.QueueDepth.Set(0)
	return batch
}

func (t *Transport) dispatch(batch []*event.Payload) {
	if len(batch) == 0 {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.deliverBatch(context.Background(), batch)
	}()
}

// deliverBatch runs the retry loop for one batch: transient results back
// off with doubling delays, permanent results drop the batch, exhausted
// batches land in the dead-letter store.
func (t *Transport) deliverBatch(ctx context.Context, batch []*event.Payload) {
	body, err := event.Marshal(batch)
	if err != nil {
		logging.Error().Err(err).Int("events", len(batch)).Msg("batch serialization failed")
		metrics.RecordDrop("serialization", len(batch))
		return
	}

	maxRetries := t.cfg.Int(config.KeyMaxRetries)
	baseDelay := t.cfg.RetryDelay()

	for attempt := 0; ; attempt++ {
		start := time.Now()
		res := t.attempt(ctx, body)
		metrics.RecordDelivery(res.Class.String(), len(batch), time.Since(start))

		switch res.Class {
		case Success:
			logging.Debug().Int("events", len(batch)).Int("status", res.StatusCode).Msg("batch delivered")
			return
		case Permanent:
			logging.Warn().
				Int("events", len(batch)).
				Int("status", res.StatusCode).
				Err(res.Err).
				Msg("batch rejected by collector, dropping")
			metrics.RecordDrop("permanent", len(batch))
			return
		}

		if attempt >= maxRetries {
			logging.Warn().
				Int("events", len(batch)).
				Int("attempts", attempt+1).
				Msg("delivery retries exhausted, persisting to dead-letter store")
			t.persistDeadLetters(batch, attempt+1)
			return
		}
		metrics.DeliveryRetries.Inc()
		t.sleep(baseDelay * (1 << attempt))
	}
}

// attempt runs one delivery through the circuit breaker. Breaker
// rejections classify as transient without touching the network.
func (t *Transport) attempt(ctx context.Context, body []byte) Result {
	res, err := t.breaker.Execute(func() (Result, error) {
		r := t.deliver.Deliver(ctx, body)
		if r.Class == Transient {
			return r, errDeliveryFailed
		}
		return r, nil
	})
	if err != nil && !errors.Is(err, errDeliveryFailed) {
		return Result{Class: Transient, Err: err}
	}
	return res
}

// Close stops accepting payloads, fires the remaining queue through the
// beacon path and waits for in-flight deliveries until ctx expires.
func (t *Transport) Close(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	batch := t.takeLocked()
	t.mu.Unlock()

	if len(batch) > 0 {
		if body, err := event.Marshal(batch); err == nil {
			t.beacon.Deliver(ctx, body)
		}
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn().Msg("transport close timed out with deliveries in flight")
	}
}
