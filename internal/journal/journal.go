// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package journal persists accepted status transitions to an embedded
// DuckDB database for post-show analytics.
//
// The journal is an append-only side channel. The cache manager writes
// to it best-effort after a status write is accepted; a journal failure
// is logged and never fails the write. Reads serve the /journal API
// endpoints and are not scoped to the active event, so a finished
// show's history stays queryable until the database file is rotated
// away.
//
// Each row records a from/to status pair. The from side comes from the
// journal's own per-artist chain, not from the caller: by the time the
// journal runs, the cache has already replaced its copy of the record.
// The chain is reloaded from disk on open so it survives restarts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

const (
	inMemoryPath     = ":memory:"
	defaultMaxMemory = "512MB"
	openTimeout      = 10 * time.Second
	closeTimeout     = 30 * time.Second
)

// Config controls where the journal database lives and how much of the
// machine DuckDB may use.
type Config struct {
	Path      string // database file, ":memory:" keeps the journal ephemeral
	Threads   int    // DuckDB worker threads, 0 means one per CPU
	MaxMemory string // DuckDB memory ceiling, e.g. "512MB"
}

// Journal is the DuckDB-backed transition log. One instance is shared
// by the cache manager (writes) and the HTTP API (reads); both sides
// are safe for concurrent use.
type Journal struct {
	conn *sql.DB

	mu   sync.Mutex
	last map[artistKey]models.PerformanceStatus
}

// artistKey identifies an artist within one event. Transitions chain
// per key: the next row's from_status is this key's last to_status.
type artistKey struct {
	eventID  string
	artistID string
}

// Open opens or creates the journal database, applies the schema, and
// reloads the per-artist status chain from existing rows.
func Open(cfg Config) (*Journal, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = defaultMaxMemory
	}

	// Ensure the parent directory exists for file-backed journals.
	// 0750 per gosec G301.
	if dir := filepath.Dir(cfg.Path); cfg.Path != inMemoryPath && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
		}
	}

	// Auto-install/auto-load stay off so startup cannot hang fetching
	// extensions in a restricted network. The journal needs none.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{
		conn: conn,
		last: make(map[artistKey]models.PerformanceStatus),
	}

	if err := j.migrate(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	if err := j.loadLastStatuses(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to reload journal state: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", threads).
		Str("max_memory", maxMemory).
		Int("chained_artists", len(j.last)).
		Msg("Transition journal opened")

	return j, nil
}

// migrate applies the journal schema. All columns live in the initial
// CREATE TABLE; there is no versioned migration history yet.
func (j *Journal) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS status_transitions (
			id UUID PRIMARY KEY,
			event_id TEXT NOT NULL,
			artist_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			version BIGINT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_event_artist ON status_transitions(event_id, artist_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_event_time ON status_transitions(event_id, recorded_at)`,
	}

	for _, query := range queries {
		if _, err := j.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// loadLastStatuses seeds the per-artist chain from the newest row of
// each (event, artist) pair.
func (j *Journal) loadLastStatuses(ctx context.Context) error {
	query := `
		SELECT event_id, artist_id, to_status
		FROM (
			SELECT event_id, artist_id, to_status,
			       ROW_NUMBER() OVER (PARTITION BY event_id, artist_id ORDER BY version DESC, recorded_at DESC) AS rn
			FROM status_transitions
		)
		WHERE rn = 1
	`

	rows, err := j.conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var key artistKey
		var status models.PerformanceStatus
		if err := rows.Scan(&key.eventID, &key.artistID, &status); err != nil {
			return err
		}
		j.last[key] = status
	}
	return rows.Err()
}

// RecordTransition journals one accepted write.
func (j *Journal) RecordTransition(ctx context.Context, record *models.StatusRecord) error {
	return j.RecordBatch(ctx, []*models.StatusRecord{record})
}

// RecordBatch journals a set of accepted writes in one transaction.
// Rows for the same artist chain within the batch in slice order. A
// failed batch leaves the in-memory chain untouched.
func (j *Journal) RecordBatch(ctx context.Context, records []*models.StatusRecord) error {
	if len(records) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.JournalErrors.Inc()
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op after a successful commit
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO status_transitions (
			id, event_id, artist_id, from_status, to_status, version, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		metrics.JournalErrors.Inc()
		return fmt.Errorf("failed to prepare journal insert: %w", err)
	}
	defer closeQuietly(stmt)

	staged := make(map[artistKey]models.PerformanceStatus, len(records))
	for _, record := range records {
		key := artistKey{eventID: record.EventID, artistID: record.ArtistID}
		from := j.fromStatusLocked(key, staged)

		recordedAt := record.Timestamp
		if recordedAt.IsZero() {
			recordedAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			uuid.New(), record.EventID, record.ArtistID,
			string(from), string(record.PerformanceStatus),
			record.Version, recordedAt.UTC(),
		); err != nil {
			metrics.JournalErrors.Inc()
			return fmt.Errorf("failed to insert transition for artist %s: %w", record.ArtistID, err)
		}
		staged[key] = record.PerformanceStatus
	}

	if err := tx.Commit(); err != nil {
		metrics.JournalErrors.Inc()
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}

	for key, status := range staged {
		j.last[key] = status
	}
	metrics.JournalTransitions.Add(float64(len(records)))
	return nil
}

// fromStatusLocked resolves the from-status for key, preferring rows
// staged earlier in the same batch. An artist with no journaled rows
// starts from not_started. Caller must hold j.mu.
func (j *Journal) fromStatusLocked(key artistKey, staged map[artistKey]models.PerformanceStatus) models.PerformanceStatus {
	if status, ok := staged[key]; ok {
		return status
	}
	if status, ok := j.last[key]; ok {
		return status
	}
	return models.StatusNotStarted
}

// Close checkpoints and closes the journal database. The checkpoint
// flushes the WAL so the next open does not have to replay it.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if _, err := j.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint journal before close")
	}

	return j.conn.Close()
}

// closeQuietly closes a resource and explicitly ignores any error.
// Used in error paths where Close errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
