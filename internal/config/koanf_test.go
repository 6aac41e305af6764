// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	// Event has no default: deployments must name their event.
	if cfg.Event.ID != "" {
		t.Errorf("Event.ID should be empty by default, got %q", cfg.Event.ID)
	}

	// Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("Server.CORSOrigins = %v, want [*]", cfg.Server.CORSOrigins)
	}
	if cfg.Server.RateLimitRequests != 300 {
		t.Errorf("Server.RateLimitRequests = %d, want 300", cfg.Server.RateLimitRequests)
	}

	// Cache defaults
	if cfg.Cache.MaxEntries != 5000 {
		t.Errorf("Cache.MaxEntries = %d, want 5000", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}

	// Queue defaults
	if cfg.Queue.RetryDelay != 5*time.Second {
		t.Errorf("Queue.RetryDelay = %v, want 5s", cfg.Queue.RetryDelay)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("Queue.MaxRetries = %d, want 3", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.BatchSize != 32 {
		t.Errorf("Queue.BatchSize = %d, want 32", cfg.Queue.BatchSize)
	}

	// Sync is off until a remote store is configured.
	if cfg.Sync.Enabled {
		t.Error("Sync.Enabled should be false by default")
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("Sync.Interval = %v, want 5m", cfg.Sync.Interval)
	}
	if cfg.Sync.SkewThreshold != time.Minute {
		t.Errorf("Sync.SkewThreshold = %v, want 1m", cfg.Sync.SkewThreshold)
	}

	// Storage defaults
	if cfg.Storage.Badger.Path != "/data/fame/badger" {
		t.Errorf("Storage.Badger.Path = %q, want /data/fame/badger", cfg.Storage.Badger.Path)
	}
	if !cfg.Storage.Badger.SyncWrites {
		t.Error("Storage.Badger.SyncWrites should be true by default")
	}
	if cfg.Storage.GCS.Enabled {
		t.Error("Storage.GCS.Enabled should be false by default")
	}
	if cfg.Storage.GCS.Prefix != "fame/" {
		t.Errorf("Storage.GCS.Prefix = %q, want fame/", cfg.Storage.GCS.Prefix)
	}

	// NATS defaults (enabled, embedded)
	if !cfg.NATS.Enabled {
		t.Error("NATS.Enabled should be true by default")
	}
	if !cfg.NATS.Embedded {
		t.Error("NATS.Embedded should be true by default")
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("NATS.URL = %q, want nats://127.0.0.1:4222", cfg.NATS.URL)
	}
	if cfg.NATS.MaxMemory != 256<<20 {
		t.Errorf("NATS.MaxMemory = %d, want 256MB", cfg.NATS.MaxMemory)
	}

	// Journal defaults
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled should be true by default")
	}
	if cfg.Journal.Path != "/data/fame/journal.duckdb" {
		t.Errorf("Journal.Path = %q, want /data/fame/journal.duckdb", cfg.Journal.Path)
	}
	if cfg.Journal.MaxMemory != "512MB" {
		t.Errorf("Journal.MaxMemory = %q, want 512MB", cfg.Journal.MaxMemory)
	}

	// Recovery defaults
	if cfg.Recovery.ConnectivityTimeout != 30*time.Second {
		t.Errorf("Recovery.ConnectivityTimeout = %v, want 30s", cfg.Recovery.ConnectivityTimeout)
	}
	if cfg.Recovery.HistoryLimit != 50 {
		t.Errorf("Recovery.HistoryLimit = %d, want 50", cfg.Recovery.HistoryLimit)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"FAME_EVENT_ID", "event.id"},

		{"FAME_HTTP_HOST", "server.host"},
		{"FAME_HTTP_PORT", "server.port"},
		{"FAME_INSTANCE_ID", "server.instance_id"},
		{"FAME_CORS_ORIGINS", "server.cors_origins"},
		{"FAME_RATE_LIMIT_REQUESTS", "server.rate_limit_requests"},

		{"FAME_CACHE_MAX_ENTRIES", "cache.max_entries"},
		{"FAME_CACHE_TTL", "cache.ttl"},

		{"FAME_QUEUE_RETRY_DELAY", "queue.retry_delay"},
		{"FAME_QUEUE_DRAIN_INTERVAL", "queue.drain_interval"},

		{"FAME_SYNC_ENABLED", "sync.enabled"},
		{"FAME_SYNC_SKEW_THRESHOLD", "sync.skew_threshold"},

		{"FAME_BADGER_PATH", "storage.badger.path"},
		{"FAME_GCS_BUCKET", "storage.gcs.bucket"},
		{"FAME_GCS_REQUESTS_PER_SECOND", "storage.gcs.requests_per_second"},

		{"FAME_NATS_ENABLED", "nats.enabled"},
		{"FAME_NATS_EMBEDDED", "nats.embedded_server"},
		{"FAME_NATS_STORE_DIR", "nats.store_dir"},

		{"FAME_JOURNAL_ENABLED", "journal.enabled"},
		{"FAME_JOURNAL_MAX_MEMORY", "journal.max_memory"},

		{"FAME_RECOVERY_POLL_INTERVAL", "recovery.poll_interval"},

		{"FAME_LOG_LEVEL", "logging.level"},
		{"FAME_LOG_CALLER", "logging.caller"},

		// Unknown or reserved names are skipped.
		{"FAME_CONFIG_PATH", ""},
		{"FAME_RANDOM_VAR", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if got := findConfigFile(); got != "" {
			t.Errorf("findConfigFile() = %q, want empty string", got)
		}
	})

	t.Run("config.yaml in working directory", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte("logging:\n  level: info\n"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove(configPath)

		t.Setenv(ConfigPathEnvVar, "")
		if got := findConfigFile(); got != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", got)
		}
	})

	t.Run("FAME_CONFIG_PATH takes precedence", func(t *testing.T) {
		customPath := filepath.Join(tmpDir, "custom.yaml")
		if err := os.WriteFile(customPath, []byte("logging:\n  level: info\n"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove(customPath)

		t.Setenv(ConfigPathEnvVar, customPath)
		if got := findConfigFile(); got != customPath {
			t.Errorf("findConfigFile() = %q, want %q", got, customPath)
		}
	})

	t.Run("missing FAME_CONFIG_PATH file falls through", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, filepath.Join(tmpDir, "does-not-exist.yaml"))
		if got := findConfigFile(); got != "" {
			t.Errorf("findConfigFile() = %q, want empty string", got)
		}
	})
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir()) // Keep stray config.yaml files out of the search path

	t.Setenv("FAME_EVENT_ID", "summer-gala-2026")
	t.Setenv("FAME_HTTP_PORT", "9000")
	t.Setenv("FAME_CACHE_TTL", "150s")
	t.Setenv("FAME_LOG_LEVEL", "debug")
	t.Setenv("FAME_CORS_ORIGINS", "https://board.example.com, https://dj.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Event.ID != "summer-gala-2026" {
		t.Errorf("Event.ID = %q, want summer-gala-2026", cfg.Event.ID)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 150*time.Second {
		t.Errorf("Cache.TTL = %v, want 2m30s", cfg.Cache.TTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	want := []string{"https://board.example.com", "https://dj.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("Server.CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.Server.CORSOrigins[i] != origin {
			t.Errorf("Server.CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], origin)
		}
	}

	// Untouched sections keep their defaults.
	if cfg.Queue.BatchSize != 32 {
		t.Errorf("Queue.BatchSize = %d, want default 32", cfg.Queue.BatchSize)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	configPath := filepath.Join(tmpDir, "fame.yaml")
	yamlBody := `event:
  id: file-event
server:
  port: 7001
logging:
  level: warn
`
	if err := os.WriteFile(configPath, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("FAME_HTTP_PORT", "7002")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// File beats defaults; env beats file.
	if cfg.Event.ID != "file-event" {
		t.Errorf("Event.ID = %q, want file-event", cfg.Event.ID)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Server.Port != 7002 {
		t.Errorf("Server.Port = %d, want env override 7002", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("missing event id", func(t *testing.T) {
		t.Setenv("FAME_EVENT_ID", "")
		_, err := Load()
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "FAME_EVENT_ID") {
			t.Errorf("error %q should name FAME_EVENT_ID", err)
		}
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("FAME_EVENT_ID", "gala")
		t.Setenv("FAME_HTTP_PORT", "99999")
		_, err := Load()
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "FAME_HTTP_PORT") {
			t.Errorf("error %q should name FAME_HTTP_PORT", err)
		}
	})
}

func TestProcessSliceFields(t *testing.T) {
	k := koanf.New(".")

	if err := k.Set("server.cors_origins", "https://a.example, https://b.example ,"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := processSliceFields(k); err != nil {
		t.Fatalf("processSliceFields() error = %v", err)
	}

	got := k.Strings("server.cors_origins")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("cors_origins = %v, want trimmed two-element slice", got)
	}

	// Already-slice values pass through untouched.
	if err := k.Set("server.cors_origins", []string{"*"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := processSliceFields(k); err != nil {
		t.Fatalf("processSliceFields() error = %v", err)
	}
	if got := k.Strings("server.cors_origins"); len(got) != 1 || got[0] != "*" {
		t.Errorf("cors_origins = %v, want [*]", got)
	}
}
