// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the standalone binary searches for its
// config file, first hit wins.
var DefaultConfigPaths = []string{
	"beacon.yaml",
	"beacon.yml",
	"/etc/beacon/beacon.yaml",
	"/etc/beacon/beacon.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "BEACON_CONFIG"

// envPrefix namespaces environment overrides, e.g. BEACON_BASE_URL.
const envPrefix = "BEACON_"

// FileConfig is the yaml/env schema for the standalone agent binary. Values
// present here seed the runtime Store as config commands; the zero value of
// a field means "leave the store default alone".
type FileConfig struct {
	BaseURL        string `koanf:"base_url" validate:"omitempty,url"`
	Endpoint       string `koanf:"endpoint" validate:"omitempty,startswith=/"`
	SessionTimeout int    `koanf:"session_timeout" validate:"omitempty,min=1,max=1440"`
	MaxRetries     *int   `koanf:"max_retries" validate:"omitempty,min=0,max=10"`
	RetryDelayMS   int    `koanf:"retry_delay_ms" validate:"omitempty,min=100,max=60000"`
	BatchSize      int    `koanf:"batch_size" validate:"omitempty,min=1"`
	BatchTimeoutS  int    `koanf:"batch_timeout_s" validate:"omitempty,min=1,max=300"`

	ScrollTracking     *bool `koanf:"scroll_tracking"`
	ClickTracking      *bool `koanf:"click_tracking"`
	FormTracking       *bool `koanf:"form_tracking"`
	DownloadTracking   *bool `koanf:"download_tracking"`
	VisibilityTracking *bool `koanf:"visibility_tracking"`

	Debug            bool     `koanf:"debug"`
	DomainSync       bool     `koanf:"domain_sync"`
	Domains          []string `koanf:"domains" validate:"omitempty,dive,hostname_rfc1123"`
	Namespace        string   `koanf:"namespace"`
	MaxFailedEvents  int      `koanf:"max_failed_events" validate:"omitempty,min=1,max=10000"`
	FailedEventsTTL  int      `koanf:"failed_events_ttl_ms" validate:"omitempty,min=1"`
	RetryIntervalMS  int      `koanf:"retry_interval_ms" validate:"omitempty,min=1000,max=600000"`
	IdentityStrategy string   `koanf:"identity_strategy" validate:"omitempty,oneof=fingerprint persisted"`

	// StoragePath is the directory for the durable key-value store.
	StoragePath string `koanf:"storage_path"`

	// Host identifies the embedding application for domain classification
	// and cross-domain sync skip.
	Host string `koanf:"host"`

	Logging struct {
		Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal disabled"`
		Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	} `koanf:"logging"`
}

func defaultFileConfig() *FileConfig {
	cfg := &FileConfig{StoragePath: "beacon-data"}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// LoadFile loads the binary configuration: struct defaults, then the yaml
// file (optional), then BEACON_* environment overrides, then validation.
func LoadFile(path string) (*FileConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultFileConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path == "" {
		for _, candidate := range DefaultConfigPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(key string) string {
		key = strings.TrimPrefix(key, envPrefix)
		key = strings.ToLower(key)
		// BEACON_LOGGING_LEVEL -> logging.level; flat keys keep their underscores.
		if after, ok := strings.CutPrefix(key, "logging_"); ok {
			return "logging." + after
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &FileConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Apply seeds the runtime store with every option present in the file
// config, in the same way a host would issue config commands.
func (c *FileConfig) Apply(s *Store) {
	if c.Endpoint != "" {
		s.Set(KeyEndpoint, c.Endpoint)
	}
	if c.SessionTimeout != 0 {
		s.Set(KeySessionTimeout, c.SessionTimeout)
	}
	if c.MaxRetries != nil {
		s.Set(KeyMaxRetries, *c.MaxRetries)
	}
	if c.RetryDelayMS != 0 {
		s.Set(KeyRetryDelay, c.RetryDelayMS)
	}
	if c.BatchSize != 0 {
		s.Set(KeyBatchSize, c.BatchSize)
	}
	if c.BatchTimeoutS != 0 {
		s.Set(KeyBatchTimeout, c.BatchTimeoutS)
	}
	for key, flag := range map[string]*bool{
		KeyScrollTracking:   c.ScrollTracking,
		KeyClickTracking:    c.ClickTracking,
		KeyFormTracking:     c.FormTracking,
		KeyDownloadTracking: c.DownloadTracking,
		KeyVisibilityTrack:  c.VisibilityTracking,
	} {
		if flag != nil {
			s.Set(key, *flag)
		}
	}
	if c.Debug {
		s.Set(KeyDebug, true)
	}
	if c.DomainSync {
		s.Set(KeyDomainSync, true)
	}
	if len(c.Domains) > 0 {
		s.Set(KeyDomains, c.Domains)
	}
	if c.Namespace != "" {
		s.Set(KeyNamespace, c.Namespace)
	}
	if c.MaxFailedEvents != 0 {
		s.Set(KeyMaxFailedEvents, c.MaxFailedEvents)
	}
	if c.FailedEventsTTL != 0 {
		s.Set(KeyFailedEventsTTL, c.FailedEventsTTL)
	}
	if c.RetryIntervalMS != 0 {
		s.Set(KeyRetryInterval, c.RetryIntervalMS)
	}
	if c.IdentityStrategy != "" {
		s.Set(KeyIdentityStrategy, c.IdentityStrategy)
	}
	// baseUrl last: a successful set is the initialization trigger, and the
	// agent should observe the rest of the options already in place.
	if c.BaseURL != "" {
		s.Set(KeyBaseURL, c.BaseURL)
	}
}
