// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package transport

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/event"
	"github.com/perimetra/beacon/internal/logging"
	"github.com/perimetra/beacon/internal/metrics"
	"github.com/perimetra/beacon/internal/storage"
)

// deadLetter is one persisted undeliverable event.
type deadLetter struct {
	Event    *event.Payload `json:"event"`
	TS       int64          `json:"ts"` // unix milliseconds at persistence
	Attempts int            `json:"attempts"`
}

// persistDeadLetters appends batch to the dead-letter store, evicting the
// oldest records beyond maxFailedEvents.
func (t *Transport) persistDeadLetters(batch []*event.Payload, attempts int) {
	t.dlMu.Lock()
	defer t.dlMu.Unlock()

	records := t.loadDeadLettersLocked()
	now := time.Now().UnixMilli()
	for _, p := range batch {
		records = append(records, deadLetter{Event: p, TS: now, Attempts: attempts})
	}

	limit := t.cfg.Int(config.KeyMaxFailedEvents)
	if limit > 0 && len(records) > limit {
		evicted := len(records) - limit
		records = records[evicted:]
		metrics.RecordDrop("dead_letter_evicted", evicted)
		logging.Debug().Int("evicted", evicted).Msg("dead-letter store at capacity")
	}

	t.saveDeadLettersLocked(records)
	metrics.DeadLetterAdded.Add(float64(len(batch)))
	metrics.DeadLetterEntries.Set(float64(len(records)))
}

// SweepDeadLetters loads persisted records, discards ones older than
// failedEventsTTL and re-sends the survivors as a single batch with one
// delivery attempt. The persisted list is cleared regardless of the
// outcome, so each record is attempted at most once.
func (t *Transport) SweepDeadLetters(ctx context.Context) {
	t.dlMu.Lock()
	records := t.loadDeadLettersLocked()
	if len(records) == 0 {
		t.dlMu.Unlock()
		return
	}
	t.store.Delete(storage.KeyFailed)
	metrics.DeadLetterEntries.Set(0)
	t.dlMu.Unlock()

	cutoff := time.Now().Add(-t.cfg.FailedEventsTTL()).UnixMilli()
	batch := make([]*event.Payload, 0, len(records))
	expired := 0
	for _, r := range records {
		if r.TS < cutoff || r.Event == nil {
			expired++
			continue
		}
		batch = append(batch, r.Event)
	}
	if expired > 0 {
		metrics.DeadLetterExpired.Add(float64(expired))
		logging.Debug().Int("expired", expired).Msg("discarded expired dead-letter events")
	}
	if len(batch) == 0 {
		return
	}

	body, err := event.Marshal(batch)
	if err != nil {
		logging.Error().Err(err).Msg("dead-letter batch serialization failed")
		return
	}

	metrics.DeadLetterResent.Add(float64(len(batch)))
	res := t.attempt(ctx, body)
	if res.Class == Success {
		logging.Info().Int("events", len(batch)).Msg("dead-letter events delivered")
		return
	}
	logging.Warn().
		Int("events", len(batch)).
		Int("status", res.StatusCode).
		Err(res.Err).
		Msg("dead-letter resend failed, events discarded")
	metrics.RecordDrop("dead_letter_resend", len(batch))
}

// RunSweeper runs SweepDeadLetters every retryInterval until ctx is
// canceled. Interval changes via the config store apply on the next tick.
func (t *Transport) RunSweeper(ctx context.Context) {
	interval := t.cfg.RetryInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Debug().Dur("interval", interval).Msg("dead-letter sweep loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.SweepDeadLetters(ctx)
			if next := t.cfg.RetryInterval(); next > 0 && next != interval {
				interval = next
				ticker.Reset(next)
			}
		}
	}
}

// loadDeadLettersLocked reads the persisted record list. Corrupt data
// resets to empty. Caller holds t.dlMu.
func (t *Transport) loadDeadLettersLocked() []deadLetter {
	raw, ok := t.store.Get(storage.KeyFailed)
	if !ok || raw == "" {
		return nil
	}
	var records []deadLetter
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		logging.Warn().Err(err).Msg("corrupt dead-letter store, resetting")
		t.store.Delete(storage.KeyFailed)
		return nil
	}
	return records
}

func (t *Transport) saveDeadLettersLocked(records []deadLetter) {
	raw, err := json.Marshal(records)
	if err != nil {
		logging.Error().Err(err).Msg("dead-letter serialization failed")
		return
	}
	t.store.Set(storage.KeyFailed, string(raw), 0)
}
