// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package queue

import (
	"context"
	"time"

	"github.com/HtooAg/FAME-sub001/internal/logging"
)

// Start begins the background drain loop. It runs until Stop is called or
// the context is canceled. Calling Start on a running queue is a no-op.
func (q *UpdateQueue) Start(ctx context.Context) error {
	q.mu.Lock()

	// Wait for any in-progress Stop() to complete
	for q.stopping {
		stopDone := q.stopDone
		q.mu.Unlock()
		<-stopDone
		q.mu.Lock()
	}

	if q.running {
		q.mu.Unlock()
		return nil
	}

	q.ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	q.stopDone = make(chan struct{})

	// Capture context and done channel to avoid races
	loopCtx := q.ctx
	done := q.stopDone

	q.mu.Unlock()

	go q.runWithContext(loopCtx, done)

	logging.Info().
		Dur("interval", q.config.DrainInterval).
		Int("batch_size", q.config.BatchSize).
		Int("max_retries", q.config.MaxRetries).
		Msg("Update queue drain loop started")
	return nil
}

// Stop gracefully stops the drain loop. Queued entries are retained.
func (q *UpdateQueue) Stop() {
	q.mu.Lock()
	if !q.running || q.stopping {
		q.mu.Unlock()
		return
	}

	q.cancel()
	q.running = false
	q.stopping = true
	stopDone := q.stopDone
	q.mu.Unlock()

	// Wait for the goroutine to signal completion
	<-stopDone

	q.mu.Lock()
	q.stopping = false
	q.mu.Unlock()

	logging.Info().Msg("Update queue drain loop stopped")
}

// IsRunning returns whether the drain loop is active.
func (q *UpdateQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Kick nudges the drain loop to process ahead of the next tick.
// Never blocks; a pending kick is coalesced.
func (q *UpdateQueue) Kick() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// runWithContext is the drain loop goroutine. The context is passed as a
// parameter to avoid race conditions with Stop(). The done channel is
// closed when the goroutine exits.
func (q *UpdateQueue) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Process(ctx)
		case <-q.kick:
			q.Process(ctx)
		}
	}
}
