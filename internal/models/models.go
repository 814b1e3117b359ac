// Package models defines the persistent entities of the archiver's run
// history.
//
// The document-shaped sync state (snapshots, blacklists, tokens) lives
// in the state package; models only covers what goes into SQLite.
package models

import (
	"fmt"
	"time"
)

// Run records one archival run: when it ran, what it touched, and
// whether it failed as a whole.
type Run struct {
	ID                string    // uuid
	Sequence          int       // human-readable ordering, assigned by the repository
	StartedAt         time.Time
	FinishedAt        time.Time
	PairsTotal        int
	PairsFailed       int
	TracksAdded       int
	TracksBlacklisted int
	Error             string // run-level error text, empty on success
}

// Validate checks if the run's data is consistent.
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("run start time is required")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("run finished before it started")
	}
	if r.PairsFailed > r.PairsTotal {
		return fmt.Errorf("more failed pairs than pairs")
	}
	return nil
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
