// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package conflict decides which of two competing status records wins.
//
// Resolution is whole-record last-writer-wins: the loser is discarded
// entirely, never merged field by field. The same resolver runs on every
// path where two copies of a record meet — a remote notification against
// the local cache, and the local store against the cloud store during
// sync — so the outcome is identical no matter where the copies collide.
package conflict

import (
	"time"

	"github.com/HtooAg/FAME-sub001/internal/models"
)

// DefaultSkewThreshold is the window within which two timestamps are
// treated as effectively equal. Wall clocks on the venue machines drift;
// inside this window version numbers are more trustworthy than instants.
const DefaultSkewThreshold = 60 * time.Second

// Strategy names the comparison that decided a resolution.
type Strategy string

// Strategies.
const (
	StrategyTimestamp Strategy = "timestamp"
	StrategyVersion   Strategy = "version"
)

// Winner names which side survived.
type Winner string

// Winners.
const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Result is the outcome of resolving two records.
type Result struct {
	// Resolved is a copy of the winning record; mutating it does not
	// touch either input.
	Resolved *models.StatusRecord
	Strategy Strategy
	Winner   Winner
	Reason   models.ConflictReason
	// Conflicts lists the tracked fields whose values differed between
	// the two records, regardless of which side won.
	Conflicts []string
}

// Resolution maps the winner to the schema's resolution value.
func (r Result) Resolution() models.ConflictResolution {
	if r.Winner == WinnerLocal {
		return models.ResolutionLocalWins
	}
	return models.ResolutionRemoteWins
}

// Resolver compares status records under a configurable skew threshold.
type Resolver struct {
	skew time.Duration
}

// NewResolver creates a resolver. A non-positive skew falls back to
// DefaultSkewThreshold.
func NewResolver(skew time.Duration) *Resolver {
	if skew <= 0 {
		skew = DefaultSkewThreshold
	}
	return &Resolver{skew: skew}
}

// SkewThreshold returns the configured skew window.
func (r *Resolver) SkewThreshold() time.Duration {
	return r.skew
}

// Resolve picks the winner between a local and a remote record.
//
// Beyond the skew window the strictly newer timestamp wins. Inside it the
// higher version wins; equal versions fall back to the exact instants, so
// the outcome is the same whichever argument order the caller uses.
func (r *Resolver) Resolve(local, remote *models.StatusRecord) Result {
	conflicts := diffFields(local, remote)

	delta := local.Timestamp.Sub(remote.Timestamp)
	if delta < 0 {
		delta = -delta
	}

	if delta > r.skew {
		res := Result{
			Strategy:  StrategyTimestamp,
			Reason:    models.ConflictTimestamp,
			Conflicts: conflicts,
		}
		if local.Timestamp.After(remote.Timestamp) {
			res.Winner = WinnerLocal
			res.Resolved = local.Clone()
		} else {
			res.Winner = WinnerRemote
			res.Resolved = remote.Clone()
		}
		return res
	}

	if local.Version != remote.Version {
		res := Result{
			Strategy:  StrategyVersion,
			Reason:    models.ConflictVersion,
			Conflicts: conflicts,
		}
		if local.Version > remote.Version {
			res.Winner = WinnerLocal
			res.Resolved = local.Clone()
		} else {
			res.Winner = WinnerRemote
			res.Resolved = remote.Clone()
		}
		return res
	}

	// Equal versions inside the skew window: the exact instants break the
	// tie. Identical instants leave local in place.
	reason := models.ConflictVersion
	if len(conflicts) > 0 {
		reason = models.ConflictDataMismatch
	}
	res := Result{
		Strategy:  StrategyTimestamp,
		Reason:    reason,
		Conflicts: conflicts,
	}
	if remote.Timestamp.After(local.Timestamp) {
		res.Winner = WinnerRemote
		res.Resolved = remote.Clone()
	} else {
		res.Winner = WinnerLocal
		res.Resolved = local.Clone()
	}
	return res
}

// Significant reports whether the divergence between two records crosses
// the reporting threshold used by the sync service: timestamps further
// apart than the skew window, or any tracked field mismatch.
func (r *Resolver) Significant(local, remote *models.StatusRecord) bool {
	delta := local.Timestamp.Sub(remote.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta > r.skew {
		return true
	}
	return len(diffFields(local, remote)) > 0
}

// diffFields lists the tracked data fields that differ between two
// records. Ordering metadata (timestamp, version, dirty) is not tracked.
func diffFields(local, remote *models.StatusRecord) []string {
	var fields []string
	if local.PerformanceStatus != remote.PerformanceStatus {
		fields = append(fields, "performanceStatus")
	}
	if !intPtrEqual(local.PerformanceOrder, remote.PerformanceOrder) {
		fields = append(fields, "performanceOrder")
	}
	if !timePtrEqual(local.PerformanceDate, remote.PerformanceDate) {
		fields = append(fields, "performanceDate")
	}
	return fields
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
