// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour

	minCacheEntries = 1
	maxCacheEntries = 1000000

	maxQueueRetries   = 100
	maxQueueBatchSize = 1000

	maxRecoveryHistory = 1000
)

// Validate checks that required configuration is present and every
// tuning value is in range. Error messages name the environment
// variable so a misconfigured deployment is fixable from the log line.
func (c *Config) Validate() error {
	if err := c.validateEvent(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validateEvent ensures an active event is configured. The server
// hosts exactly one event; everything else keys off its id.
func (c *Config) validateEvent() error {
	if strings.TrimSpace(c.Event.ID) == "" {
		return fmt.Errorf("FAME_EVENT_ID is required (the event this server hosts)")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("FAME_HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("FAME_HTTP_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("FAME_SHUTDOWN_TIMEOUT must be positive")
	}
	return c.validateRateLimit()
}

func (c *Config) validateRateLimit() error {
	if c.Server.RateLimitRequests < minRateLimitRequests || c.Server.RateLimitRequests > maxRateLimitRequests {
		return fmt.Errorf("FAME_RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Server.RateLimitWindow < minRateLimitWindow || c.Server.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("FAME_RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxEntries < minCacheEntries || c.Cache.MaxEntries > maxCacheEntries {
		return fmt.Errorf("FAME_CACHE_MAX_ENTRIES must be between %d and %d", minCacheEntries, maxCacheEntries)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("FAME_CACHE_TTL must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("FAME_CACHE_CLEANUP_INTERVAL must be positive")
	}
	if c.Cache.TerminalFailureLimit < 0 {
		return fmt.Errorf("FAME_CACHE_TERMINAL_FAILURE_LIMIT must not be negative")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.RetryDelay <= 0 {
		return fmt.Errorf("FAME_QUEUE_RETRY_DELAY must be positive")
	}
	if c.Queue.MaxBackoff < c.Queue.RetryDelay {
		return fmt.Errorf("FAME_QUEUE_MAX_BACKOFF must be at least FAME_QUEUE_RETRY_DELAY")
	}
	if c.Queue.MaxRetries < 1 || c.Queue.MaxRetries > maxQueueRetries {
		return fmt.Errorf("FAME_QUEUE_MAX_RETRIES must be between 1 and %d", maxQueueRetries)
	}
	if c.Queue.BatchSize < 1 || c.Queue.BatchSize > maxQueueBatchSize {
		return fmt.Errorf("FAME_QUEUE_BATCH_SIZE must be between 1 and %d", maxQueueBatchSize)
	}
	if c.Queue.DrainInterval <= 0 {
		return fmt.Errorf("FAME_QUEUE_DRAIN_INTERVAL must be positive")
	}
	return nil
}

// validateSync checks sync settings. Sync reconciles the local store
// against GCS, so it cannot be enabled without the remote store.
func (c *Config) validateSync() error {
	if !c.Sync.Enabled {
		return nil
	}
	if !c.Storage.GCS.Enabled {
		return fmt.Errorf("FAME_GCS_ENABLED must be true when FAME_SYNC_ENABLED=true (sync needs the remote store)")
	}
	if c.Sync.Interval < 10*time.Second {
		return fmt.Errorf("FAME_SYNC_INTERVAL must be at least 10s")
	}
	if c.Sync.SkewThreshold <= 0 {
		return fmt.Errorf("FAME_SYNC_SKEW_THRESHOLD must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("FAME_BADGER_PATH is required")
	}
	if !c.Storage.GCS.Enabled {
		return nil
	}
	if c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("FAME_GCS_BUCKET is required when FAME_GCS_ENABLED=true")
	}
	if c.Storage.GCS.RequestsPerSecond <= 0 {
		return fmt.Errorf("FAME_GCS_REQUESTS_PER_SECOND must be positive")
	}
	if c.Storage.GCS.Burst < 1 {
		return fmt.Errorf("FAME_GCS_BURST must be at least 1")
	}
	if c.Storage.GCS.RequestTimeout <= 0 {
		return fmt.Errorf("FAME_GCS_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.Embedded {
		if c.NATS.StoreDir == "" {
			return fmt.Errorf("FAME_NATS_STORE_DIR is required when FAME_NATS_EMBEDDED=true")
		}
	} else {
		if c.NATS.URL == "" {
			return fmt.Errorf("FAME_NATS_URL is required when FAME_NATS_EMBEDDED=false")
		}
		if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
			return fmt.Errorf("FAME_NATS_URL must use the nats:// or tls:// scheme")
		}
	}
	if c.NATS.MaxMemory <= 0 {
		return fmt.Errorf("FAME_NATS_MAX_MEMORY must be positive")
	}
	if c.NATS.MaxStore <= 0 {
		return fmt.Errorf("FAME_NATS_MAX_STORE must be positive")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if !c.Journal.Enabled {
		return nil
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("FAME_JOURNAL_PATH is required when FAME_JOURNAL_ENABLED=true")
	}
	if c.Journal.Threads < 0 {
		return fmt.Errorf("FAME_JOURNAL_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if c.Recovery.ConnectivityTimeout <= 0 {
		return fmt.Errorf("FAME_RECOVERY_CONNECTIVITY_TIMEOUT must be positive")
	}
	if c.Recovery.PollInterval <= 0 {
		return fmt.Errorf("FAME_RECOVERY_POLL_INTERVAL must be positive")
	}
	if c.Recovery.PollInterval >= c.Recovery.ConnectivityTimeout {
		return fmt.Errorf("FAME_RECOVERY_POLL_INTERVAL must be shorter than FAME_RECOVERY_CONNECTIVITY_TIMEOUT")
	}
	if c.Recovery.HistoryLimit < 1 || c.Recovery.HistoryLimit > maxRecoveryHistory {
		return fmt.Errorf("FAME_RECOVERY_HISTORY_LIMIT must be between 1 and %d", maxRecoveryHistory)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("FAME_LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("FAME_LOG_FORMAT must be one of: json, console")
	}
	return nil
}
