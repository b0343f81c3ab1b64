// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/perimetra/beacon/internal/logging"
)

// Classification buckets a delivery outcome for the retry policy.
type Classification int

const (
	// Success means the collector accepted the batch.
	Success Classification = iota

	// Transient covers network errors, 5xx responses and 429: the batch
	// may succeed on a later attempt.
	Transient

	// Permanent covers other 4xx responses: the batch is malformed or
	// unauthorized and retrying cannot help.
	Permanent
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case Transient:
		return "transient"
	default:
		return "permanent"
	}
}

// Result describes one delivery attempt.
type Result struct {
	Class      Classification
	StatusCode int // zero when the request never reached the collector
	Err        error
}

// Deliverer ships one serialized batch to the collector.
type Deliverer interface {
	Deliver(ctx context.Context, body []byte) Result
}

// EndpointFunc resolves the collector URL at request time, so baseUrl and
// endpoint changes apply to in-flight retries.
type EndpointFunc func() (string, error)

// HTTPDeliverer posts batches as application/json.
type HTTPDeliverer struct {
	client   *http.Client
	endpoint EndpointFunc
}

// NewHTTPDeliverer wires a deliverer to the given endpoint resolver. A nil
// client falls back to a 10s-timeout default.
func NewHTTPDeliverer(endpoint EndpointFunc, client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPDeliverer{client: client, endpoint: endpoint}
}

// Deliver posts body to the collector and classifies the outcome.
func (d *HTTPDeliverer) Deliver(ctx context.Context, body []byte) Result {
	url, err := d.endpoint()
	if err != nil {
		return Result{Class: Permanent, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Class: Permanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Class: Transient, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode)
}

func classifyStatus(code int) Result {
	switch {
	case code >= 200 && code < 300:
		return Result{Class: Success, StatusCode: code}
	case code == http.StatusTooManyRequests || code >= 500:
		return Result{Class: Transient, StatusCode: code}
	default:
		return Result{Class: Permanent, StatusCode: code}
	}
}

// BeaconDeliverer is the teardown path: a short-timeout post whose outcome
// is ignored beyond a debug log. Used when the process is going away and
// there is no time for retries.
type BeaconDeliverer struct {
	client   *http.Client
	endpoint EndpointFunc
}

// NewBeaconDeliverer builds the fire-and-forget deliverer.
func NewBeaconDeliverer(endpoint EndpointFunc, client *http.Client) *BeaconDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &BeaconDeliverer{client: client, endpoint: endpoint}
}

// Deliver posts body and reports success unconditionally.
func (d *BeaconDeliverer) Deliver(ctx context.Context, body []byte) Result {
	url, err := d.endpoint()
	if err != nil {
		return Result{Class: Success}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Class: Success}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		logging.Debug().Err(err).Msg("beacon flush failed")
		return Result{Class: Success}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return Result{Class: Success, StatusCode: resp.StatusCode}
}
