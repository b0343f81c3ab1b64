// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/perimetra/beacon/internal/config"
	"github.com/perimetra/beacon/internal/logging"
)

var syncClient = &http.Client{Timeout: 5 * time.Second}

// SyncDomains propagates the visitor id to companion domains so identity
// survives cross-domain navigation. Each configured domain (minus the
// current host) gets a fire-and-forget GET; failures are logged and
// otherwise ignored. No-op unless domainSync is enabled.
func (t *Transport) SyncDomains(ctx context.Context, host, visitorID string) {
	if !t.cfg.Bool(config.KeyDomainSync) || visitorID == "" {
		return
	}
	for _, domain := range t.cfg.Strings(config.KeyDomains) {
		domain = strings.TrimSpace(domain)
		if domain == "" || strings.EqualFold(domain, host) {
			continue
		}
		target := "https://" + domain + "/sync?visitor_id=" + url.QueryEscape(visitorID)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			syncDomain(ctx, target)
		}()
	}
}

func syncDomain(ctx context.Context, target string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return
	}
	resp, err := syncClient.Do(req)
	if err != nil {
		logging.Debug().Err(err).Str("url", target).Msg("domain sync failed")
		return
	}
	resp.Body.Close()
	logging.Debug().Str("url", target).Int("status", resp.StatusCode).Msg("domain sync sent")
}
