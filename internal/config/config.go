// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package config loads and validates the server configuration from
// three layered sources: built-in defaults, an optional YAML file, and
// FAME_* environment variables, in ascending precedence.
package config

import "time"

// Config is the complete server configuration.
type Config struct {
	Event    EventConfig    `koanf:"event"`
	Server   ServerConfig   `koanf:"server"`
	Cache    CacheConfig    `koanf:"cache"`
	Queue    QueueConfig    `koanf:"queue"`
	Sync     SyncConfig     `koanf:"sync"`
	Storage  StorageConfig  `koanf:"storage"`
	NATS     NATSConfig     `koanf:"nats"`
	Journal  JournalConfig  `koanf:"journal"`
	Recovery RecoveryConfig `koanf:"recovery"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// EventConfig names the event this server instance hosts. A FAME
// deployment serves one live event at a time; the journal keeps
// earlier events readable.
//
// Environment Variables:
//   - FAME_EVENT_ID: Active event identifier (required)
type EventConfig struct {
	ID string `koanf:"id"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - FAME_HTTP_HOST: Listen address (default: 0.0.0.0)
//   - FAME_HTTP_PORT: Listen port (default: 8080)
//   - FAME_HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - FAME_SHUTDOWN_TIMEOUT: Graceful shutdown budget (default: 30s)
//   - FAME_INSTANCE_ID: Stable instance identity (default: random per start)
//   - FAME_CORS_ORIGINS: Comma-separated allowed origins (default: *)
//   - FAME_RATE_LIMIT_REQUESTS: Read-tier requests per window (default: 300)
//   - FAME_RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// InstanceID identifies this process in notification origins and
	// sync metadata. Empty means a random id each start; set it when
	// the deployment needs stable identities across restarts.
	InstanceID string `koanf:"instance_id"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// CacheConfig holds in-memory status cache settings.
type CacheConfig struct {
	MaxEntries      int           `koanf:"max_entries"`
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// TerminalFailureLimit bounds the retained list of queue entries
	// that exhausted their retries.
	TerminalFailureLimit int `koanf:"terminal_failure_limit"`
}

// QueueConfig holds write-behind queue settings.
type QueueConfig struct {
	RetryDelay    time.Duration `koanf:"retry_delay"`
	MaxBackoff    time.Duration `koanf:"max_backoff"`
	MaxRetries    int           `koanf:"max_retries"`
	BatchSize     int           `koanf:"batch_size"`
	DrainInterval time.Duration `koanf:"drain_interval"`
}

// SyncConfig holds local/remote synchronization settings. Sync needs
// the GCS store; a local-only deployment disables it.
type SyncConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`

	// SkewThreshold is the window within which two record timestamps
	// count as concurrent during conflict resolution.
	SkewThreshold time.Duration `koanf:"skew_threshold"`
}

// StorageConfig groups the durable stores.
type StorageConfig struct {
	Badger BadgerConfig `koanf:"badger"`
	GCS    GCSConfig    `koanf:"gcs"`
}

// BadgerConfig holds local BadgerDB store settings.
type BadgerConfig struct {
	Path        string        `koanf:"path"`
	SyncWrites  bool          `koanf:"sync_writes"`
	Compression bool          `koanf:"compression"`
	GCInterval  time.Duration `koanf:"gc_interval"`
}

// GCSConfig holds Google Cloud Storage settings. Credentials come from
// the environment (Application Default Credentials, or
// STORAGE_EMULATOR_HOST against an emulator).
type GCSConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Bucket            string        `koanf:"bucket"`
	Prefix            string        `koanf:"prefix"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
}

// NATSConfig holds change-notification channel settings.
//
// Environment Variables:
//   - FAME_NATS_ENABLED: Enable the notification channel (default: true)
//   - FAME_NATS_EMBEDDED: Run an in-process NATS server (default: true)
//   - FAME_NATS_URL: External server address when not embedded
//   - FAME_NATS_STORE_DIR: JetStream storage directory
//   - FAME_NATS_MAX_MEMORY / FAME_NATS_MAX_STORE: JetStream limits in bytes
//   - FAME_NATS_DURABLE_NAME / FAME_NATS_QUEUE_GROUP: Consumer identity
type NATSConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Embedded    bool   `koanf:"embedded_server"`
	URL         string `koanf:"url"`
	StoreDir    string `koanf:"store_dir"`
	MaxMemory   int64  `koanf:"max_memory"`
	MaxStore    int64  `koanf:"max_store"`
	DurableName string `koanf:"durable_name"`
	QueueGroup  string `koanf:"queue_group"`
}

// JournalConfig holds transition journal settings.
type JournalConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Threads   int    `koanf:"threads"`    // DuckDB threads (0 = use NumCPU)
	MaxMemory string `koanf:"max_memory"` // DuckDB memory ceiling, e.g. "512MB"
}

// RecoveryConfig holds error-recovery service settings.
type RecoveryConfig struct {
	ConnectivityTimeout time.Duration `koanf:"connectivity_timeout"`
	PollInterval        time.Duration `koanf:"poll_interval"`
	HistoryLimit        int           `koanf:"history_limit"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - FAME_LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - FAME_LOG_FORMAT: json, console (default: json)
//   - FAME_LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with every default applied. File and
// environment layers override these. The tuning values mirror the
// package defaults they feed so a bare `fame-server` run and a
// zero-value component behave the same.
func defaultConfig() *Config {
	return &Config{
		Event: EventConfig{
			ID: "",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			Timeout:           30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			InstanceID:        "",
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Cache: CacheConfig{
			MaxEntries:           5000,
			TTL:                  5 * time.Minute,
			CleanupInterval:      time.Minute,
			TerminalFailureLimit: 128,
		},
		Queue: QueueConfig{
			RetryDelay:    5 * time.Second,
			MaxBackoff:    5 * time.Minute,
			MaxRetries:    3,
			BatchSize:     32,
			DrainInterval: 2 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:       false, // Requires GCS; local-only by default
			Interval:      5 * time.Minute,
			SkewThreshold: time.Minute,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:        "/data/fame/badger",
				SyncWrites:  true,
				Compression: true,
				GCInterval:  10 * time.Minute,
			},
			GCS: GCSConfig{
				Enabled:           false,
				Bucket:            "",
				Prefix:            "fame/",
				RequestsPerSecond: 50,
				Burst:             20,
				RequestTimeout:    30 * time.Second,
			},
		},
		NATS: NATSConfig{
			Enabled:     true,
			Embedded:    true,
			URL:         "nats://127.0.0.1:4222",
			StoreDir:    "/data/fame/jetstream",
			MaxMemory:   256 << 20, // 256MB
			MaxStore:    1 << 30,   // 1GB
			DurableName: "status-consumer",
			QueueGroup:  "status-processors",
		},
		Journal: JournalConfig{
			Enabled:   true,
			Path:      "/data/fame/journal.duckdb",
			Threads:   0,
			MaxMemory: "512MB",
		},
		Recovery: RecoveryConfig{
			ConnectivityTimeout: 30 * time.Second,
			PollInterval:        2 * time.Second,
			HistoryLimit:        50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
