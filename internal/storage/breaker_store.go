// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around a Store.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval between closed-state count resets.
	Interval time.Duration

	// Timeout before an open breaker probes again.
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the breaker.
	FailureThreshold float64

	// MinRequests before the threshold is evaluated.
	MinRequests uint32
}

// DefaultBreakerConfig returns the production tuning for a named store.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// BreakerStore wraps a Store with a circuit breaker so a dead backend
// fails fast instead of stacking timeouts. A tripped breaker surfaces as
// ErrStoreUnavailable, which the update queue treats like any other
// persistence failure: keep the update and retry with backoff.
//
// A missing key is a successful round trip, not a backend failure, so
// ErrKeyNotFound never counts against the breaker.
type BreakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker[any]
	name    string
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, config BreakerConfig) *BreakerStore {
	if config.Name == "" {
		config.Name = "store"
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 0.6
	}
	if config.MinRequests == 0 {
		config.MinRequests = 10
	}

	s := &BreakerStore{inner: inner, name: config.Name}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrKeyNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()

			event := logging.Warn()
			if to == gobreaker.StateClosed {
				event = logging.Info()
			}
			event.
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state changed")
		},
	}

	s.breaker = gobreaker.NewCircuitBreaker[any](settings)
	metrics.CircuitBreakerState.WithLabelValues(config.Name).Set(stateToFloat(gobreaker.StateClosed))
	return s
}

// State reports the breaker state. The recovery service polls this to
// decide whether the backend is worth probing.
func (s *BreakerStore) State() gobreaker.State {
	return s.breaker.State()
}

// Get reads through the breaker.
func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.execute(func() (any, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return castResult[[]byte](result)
}

// Set writes through the breaker.
func (s *BreakerStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.execute(func() (any, error) {
		return nil, s.inner.Set(ctx, key, value)
	})
	return err
}

// Delete removes through the breaker.
func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.execute(func() (any, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

// List enumerates through the breaker.
func (s *BreakerStore) List(ctx context.Context, prefix string) ([]KV, error) {
	result, err := s.execute(func() (any, error) {
		return s.inner.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return castResult[[]KV](result)
}

// Healthy probes through the breaker. While the breaker is open this
// reports ErrStoreUnavailable without touching the backend.
func (s *BreakerStore) Healthy(ctx context.Context) error {
	_, err := s.execute(func() (any, error) {
		return nil, s.inner.Healthy(ctx)
	})
	return err
}

// Close closes the wrapped store directly; shutdown must not depend on
// breaker state.
func (s *BreakerStore) Close() error {
	return s.inner.Close()
}

// execute runs fn through the breaker and classifies the outcome for
// metrics. Breaker rejections are mapped to ErrStoreUnavailable.
func (s *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := s.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(s.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: circuit breaker %s: %v", ErrStoreUnavailable, s.name, err)
		}
		if errors.Is(err, ErrKeyNotFound) {
			metrics.CircuitBreakerRequests.WithLabelValues(s.name, "success").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(s.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(s.name, "success").Inc()
	return result, nil
}

// castResult converts the breaker's untyped result. A nil result yields
// the zero value, which callers see only alongside a non-nil error.
func castResult[T any](result any) (T, error) {
	var zero T
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
