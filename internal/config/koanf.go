// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fame/config.yaml",
	"/etc/fame/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "FAME_CONFIG_PATH"

// envPrefix namespaces every FAME environment variable.
const envPrefix = "FAME_"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML (FAME_CONFIG_PATH or the default paths)
//  3. Environment variables: FAME_* overrides, highest priority
//
// The merged result is unmarshaled and validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// FAME_HTTP_PORT -> server.port, FAME_CACHE_TTL -> cache.ttl, ...
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are the paths parsed as comma-separated slices when
// they arrive as plain strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for the
// known slice fields. YAML-sourced values are already slices and pass
// through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps FAME_* variable names (prefix stripped, lowercased)
// to config paths. Unmapped variables are skipped so unrelated FAME_*
// entries in the environment cannot pollute the config.
var envMappings = map[string]string{
	"event_id": "event.id",

	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"instance_id":         "server.instance_id",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	// Cache
	"cache_max_entries":            "cache.max_entries",
	"cache_ttl":                    "cache.ttl",
	"cache_cleanup_interval":       "cache.cleanup_interval",
	"cache_terminal_failure_limit": "cache.terminal_failure_limit",

	// Queue
	"queue_retry_delay":    "queue.retry_delay",
	"queue_max_backoff":    "queue.max_backoff",
	"queue_max_retries":    "queue.max_retries",
	"queue_batch_size":     "queue.batch_size",
	"queue_drain_interval": "queue.drain_interval",

	// Sync
	"sync_enabled":        "sync.enabled",
	"sync_interval":       "sync.interval",
	"sync_skew_threshold": "sync.skew_threshold",

	// Storage
	"badger_path":             "storage.badger.path",
	"badger_sync_writes":      "storage.badger.sync_writes",
	"badger_compression":      "storage.badger.compression",
	"badger_gc_interval":      "storage.badger.gc_interval",
	"gcs_enabled":             "storage.gcs.enabled",
	"gcs_bucket":              "storage.gcs.bucket",
	"gcs_prefix":              "storage.gcs.prefix",
	"gcs_requests_per_second": "storage.gcs.requests_per_second",
	"gcs_burst":               "storage.gcs.burst",
	"gcs_request_timeout":     "storage.gcs.request_timeout",

	// NATS
	"nats_enabled":      "nats.enabled",
	"nats_embedded":     "nats.embedded_server",
	"nats_url":          "nats.url",
	"nats_store_dir":    "nats.store_dir",
	"nats_max_memory":   "nats.max_memory",
	"nats_max_store":    "nats.max_store",
	"nats_durable_name": "nats.durable_name",
	"nats_queue_group":  "nats.queue_group",

	// Journal
	"journal_enabled":    "journal.enabled",
	"journal_path":       "journal.path",
	"journal_threads":    "journal.threads",
	"journal_max_memory": "journal.max_memory",

	// Recovery
	"recovery_connectivity_timeout": "recovery.connectivity_timeout",
	"recovery_poll_interval":        "recovery.poll_interval",
	"recovery_history_limit":        "recovery.history_limit",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps a raw environment key (FAME_ prefix included)
// to its config path, or "" to skip it.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
