package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
)

// ReconcileResult reports what one reconciliation did.
type ReconcileResult struct {
	SourceID      string
	TargetID      string
	Blacklisted   []string // user removals detected this run, now blacklisted
	Added         []string // URIs sent to the target, in source order
	SkippedLocal  int      // candidates excluded by the target's blacklist
	SkippedGlobal int      // candidates excluded by the global blacklist
}

// Reconciler computes and applies the minimal additive update that
// brings a target playlist up to date with its source while respecting
// the user's removals.
type Reconciler struct {
	svc    services.Service
	store  *state.Store
	logger *log.Logger
}

// NewReconciler creates a Reconciler over the given service and state store.
func NewReconciler(svc services.Service, store *state.Store, logger *log.Logger) *Reconciler {
	return &Reconciler{svc: svc, store: store, logger: logger}
}

// Reconcile runs one pass for a resolved source/target pair.
//
// The previous run's snapshot of the target is the diffing baseline:
// anything in the snapshot but missing from the live target can only
// have been removed by the user (this engine only ever adds), so it
// joins the target's blacklist for good. New source tracks not already
// on the target and not blacklisted locally or globally are appended in
// source order, then the snapshot is overwritten with a fresh live read.
//
// Running twice with no remote changes in between is a no-op the second
// time: no adds, no blacklist growth.
func (r *Reconciler) Reconcile(ctx context.Context, sourceID, targetID string, global state.TrackSet) (*ReconcileResult, error) {
	result := &ReconcileResult{SourceID: sourceID, TargetID: targetID}

	liveTarget, err := r.svc.PlaylistTracks(ctx, targetID)
	if err != nil {
		return result, fmt.Errorf("%w: reading target %s: %v", shared.ErrAPIRequest, targetID, err)
	}
	targetSet := state.NewTrackSet(liveTarget...)

	record := r.store.Record(targetID)
	for _, uri := range record.Tracks {
		if !targetSet.Contains(uri) {
			result.Blacklisted = append(result.Blacklisted, uri)
		}
	}
	if len(result.Blacklisted) > 0 {
		r.store.AddBlacklist(targetID, result.Blacklisted...)
		r.logger.Info("user removals blacklisted", "playlist", targetID, "count", len(result.Blacklisted))
	}
	local := r.store.Record(targetID).Blacklist

	liveSource, err := r.svc.PlaylistTracks(ctx, sourceID)
	if err != nil {
		return result, fmt.Errorf("%w: reading source %s: %v", shared.ErrAPIRequest, sourceID, err)
	}

	var adds []string
	for _, uri := range liveSource {
		switch {
		case targetSet.Contains(uri):
		case local.Contains(uri):
			result.SkippedLocal++
		case global.Contains(uri):
			result.SkippedGlobal++
		default:
			adds = append(adds, uri)
		}
	}

	// An empty add list skips the remote call entirely; the API rejects
	// empty batches.
	for _, batch := range chunk(adds, services.MaxAddBatch) {
		if err := r.svc.AddTracks(ctx, targetID, batch); err != nil {
			// Prior chunks are already on the remote target. The stale
			// snapshot stays; the next run re-reads and recovers.
			return result, fmt.Errorf("%w: adding %d tracks to %s: %v", shared.ErrAPIRequest, len(batch), targetID, err)
		}
		result.Added = append(result.Added, batch...)
	}

	fresh, err := r.svc.PlaylistTracks(ctx, targetID)
	if err != nil {
		return result, fmt.Errorf("%w: re-reading target %s: %v", shared.ErrAPIRequest, targetID, err)
	}
	r.store.SetSnapshot(targetID, fresh)

	if len(result.Added) > 0 {
		r.logger.Info("tracks archived", "playlist", targetID, "added", len(result.Added),
			"skipped_local", result.SkippedLocal, "skipped_global", result.SkippedGlobal)
	}

	return result, nil
}

// chunk splits uris into batches of at most size, preserving order.
func chunk(uris []string, size int) [][]string {
	if len(uris) == 0 {
		return nil
	}
	var out [][]string
	for size < len(uris) {
		out = append(out, uris[:size])
		uris = uris[size:]
	}
	return append(out, uris)
}
