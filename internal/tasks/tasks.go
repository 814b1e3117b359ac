// package tasks implements the archival pipeline: playlist identity
// resolution, the reconciliation engine, and the per-run orchestration
// that ties them together.
//
// The core abstraction is [Archiver], which runs all configured
// source → target pairs once per invocation. Operations emit progress
// updates via channels for non-blocking status reporting to the CLI.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
)

// AuthChecker probes whether the API client is currently usable.
type AuthChecker interface {
	CheckAuth(ctx context.Context) bool
}

// RunSummary aggregates one archival run for history and logging.
type RunSummary struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	PairsTotal        int
	PairsFailed       int
	TracksAdded       int
	TracksBlacklisted int
	Error             string
}

// RunRecorder persists run summaries. Recording is best-effort; a
// recorder failure never fails the run.
type RunRecorder interface {
	Record(summary RunSummary) error
}

// PairResult is the outcome of one configured pair within a run.
type PairResult struct {
	Pair     Pair
	SourceID string
	TargetID string
	Result   *ReconcileResult
	Skipped  bool // source unresolvable, pair skipped with a warning
	Err      error
}

// RunResult contains everything one archival run did.
type RunResult struct {
	Summary RunSummary
	Pairs   []PairResult
}

// Archiver orchestrates one scheduled run across all configured pairs.
type Archiver struct {
	svc       services.Service
	store     *state.Store
	auth      AuthChecker
	recorder  RunRecorder
	blacklist *shared.PlaylistRef
	pairs     []Pair
	logger    *log.Logger

	reconciler *Reconciler
}

// ArchiverOpts contains dependencies for creating an Archiver.
type ArchiverOpts struct {
	Service   services.Service
	Store     *state.Store
	Auth      AuthChecker
	Recorder  RunRecorder // optional
	Blacklist *shared.PlaylistRef
	Pairs     []Pair
	Logger    *log.Logger
}

// NewArchiver creates an Archiver with the provided dependencies.
func NewArchiver(opts ArchiverOpts) *Archiver {
	return &Archiver{
		svc:        opts.Service,
		store:      opts.Store,
		auth:       opts.Auth,
		recorder:   opts.Recorder,
		blacklist:  opts.Blacklist,
		pairs:      opts.Pairs,
		logger:     opts.Logger,
		reconciler: NewReconciler(opts.Service, opts.Store, opts.Logger),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (a *Archiver) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run performs one archival run: authorization check, global blacklist
// refresh, one playlist listing reused across pairs, then per-pair
// resolution and reconciliation. A failing pair never prevents the
// others from running; the run as a whole only aborts when the client
// is unauthorized or the playlist listing itself fails.
func (a *Archiver) Run(ctx context.Context, progress chan<- ProgressUpdate) (*RunResult, error) {
	result := &RunResult{Summary: RunSummary{
		ID:         shared.GenerateID(),
		StartedAt:  time.Now(),
		PairsTotal: len(a.pairs),
	}}

	a.sendProgress(progress, checkAuthUpdate())
	if !a.auth.CheckAuth(ctx) {
		a.logger.Error("archival run aborted: not authorized")
		return a.finish(result, shared.ErrNotAuthenticated)
	}

	a.sendProgress(progress, fetchPlaylistsUpdate())
	known, err := a.svc.UserPlaylists(ctx)
	if err != nil {
		a.logger.Error("failed to list user playlists", "error", err)
		return a.finish(result, fmt.Errorf("%w: listing playlists: %v", shared.ErrAPIRequest, err))
	}

	global := a.loadGlobalBlacklist(ctx, known, progress)

	for i, pair := range a.pairs {
		a.sendProgress(progress, resolvePairUpdate(i+1, len(a.pairs), pair))

		pr := a.runPair(ctx, pair, known, global, progress, i+1)
		result.Pairs = append(result.Pairs, pr)

		switch {
		case pr.Skipped:
			a.logger.Warn("pair skipped: source not found", "source", pair.Source)
		case pr.Err != nil:
			result.Summary.PairsFailed++
			a.logger.Error("pair failed", "source", pair.Source, "target", pair.Target, "error", pr.Err)
		default:
			result.Summary.TracksAdded += len(pr.Result.Added)
			result.Summary.TracksBlacklisted += len(pr.Result.Blacklisted)
			a.sendProgress(progress, reconcileUpdate(i+1, len(a.pairs), pr.Result))
		}
	}

	return a.finish(result, nil)
}

// finish stamps, records, and flushes the run.
func (a *Archiver) finish(result *RunResult, err error) (*RunResult, error) {
	result.Summary.FinishedAt = time.Now()
	if err != nil {
		result.Summary.Error = err.Error()
	}

	if a.recorder != nil {
		if recErr := a.recorder.Record(result.Summary); recErr != nil {
			a.logger.Warn("failed to record run history", "error", recErr)
		}
	}
	a.store.Flush()

	a.logger.Info("archival run finished",
		"run", result.Summary.ID,
		"pairs", result.Summary.PairsTotal,
		"failed", result.Summary.PairsFailed,
		"added", result.Summary.TracksAdded,
		"blacklisted", result.Summary.TracksBlacklisted,
		"took", result.Summary.FinishedAt.Sub(result.Summary.StartedAt))

	return result, err
}

// loadGlobalBlacklist drains the configured blacklist playlist into a
// fresh set. It is rebuilt from scratch every run: the playlist's
// current contents mean "currently disallowed everywhere", not
// historical intent. A load failure logs an error and yields an empty
// set so the run can proceed on the per-target blacklists alone.
func (a *Archiver) loadGlobalBlacklist(ctx context.Context, known []services.Playlist, progress chan<- ProgressUpdate) state.TrackSet {
	if a.blacklist == nil {
		return state.TrackSet{}
	}

	a.sendProgress(progress, fetchBlacklistUpdate())

	d := Descriptor{ID: a.blacklist.ID, Name: a.blacklist.Name}
	id, err := Resolve(d, known, a.store)
	if err != nil {
		a.logger.Error("failed to resolve global blacklist playlist", "ref", d, "error", err)
		return state.TrackSet{}
	}

	uris, err := a.svc.PlaylistTracks(ctx, id)
	if err != nil {
		a.logger.Error("failed to read global blacklist playlist", "playlist", id, "error", err)
		return state.TrackSet{}
	}

	a.logger.Debug("global blacklist refreshed", "playlist", id, "tracks", len(uris))
	return state.NewTrackSet(uris...)
}

// runPair resolves one pair's identities and reconciles it. All errors
// are captured in the PairResult; the pair boundary is the error boundary.
func (a *Archiver) runPair(ctx context.Context, pair Pair, known []services.Playlist, global state.TrackSet, progress chan<- ProgressUpdate, step int) PairResult {
	pr := PairResult{Pair: pair}

	sourceID, err := Resolve(pair.Source, known, a.store)
	if err != nil {
		if errors.Is(err, shared.ErrPlaylistNotFound) {
			pr.Skipped = true
			return pr
		}
		pr.Err = err
		return pr
	}
	pr.SourceID = sourceID

	sourceName, err := a.playlistName(ctx, sourceID, known)
	if err != nil {
		pr.Err = fmt.Errorf("%w: fetching source %s: %v", shared.ErrAPIRequest, sourceID, err)
		return pr
	}
	a.store.SetName(sourceID, sourceName)

	targetID, created, targetName, err := a.ensureTarget(ctx, pair, sourceID, sourceName, known, progress, step)
	if err != nil {
		pr.Err = err
		return pr
	}
	pr.TargetID = targetID
	if targetName != "" {
		a.store.SetName(targetID, targetName)
	}

	// A freshly created target already got its cover copied.
	if pair.ReplaceCover && !created {
		a.copyCover(ctx, sourceID, targetID)
	}

	pr.Result, pr.Err = a.reconciler.Reconcile(ctx, sourceID, targetID, global)
	return pr
}

// ensureTarget resolves the pair's target, creating a private playlist
// named after the descriptor when none exists yet. An entry that names
// only its source gets a target derived from the resolved source name,
// so id-only sources still archive into "<source name> (save)".
func (a *Archiver) ensureTarget(ctx context.Context, pair Pair, sourceID, sourceName string, known []services.Playlist, progress chan<- ProgressUpdate, step int) (id string, created bool, name string, err error) {
	target := pair.Target
	if target.ID == "" && target.Name == "" {
		target.Name = sourceName + saveSuffix
	}

	targetID, err := Resolve(target, known, a.store)
	if err == nil {
		return targetID, false, a.knownName(targetID, known, target.Name), nil
	}
	if !errors.Is(err, shared.ErrPlaylistNotFound) {
		return "", false, "", err
	}

	name = target.Name

	a.sendProgress(progress, createTargetUpdate(step, len(a.pairs), name))

	pl, err := a.svc.CreatePlaylist(ctx, name, false)
	if err != nil {
		return "", false, "", fmt.Errorf("%w: creating target %q: %v", shared.ErrAPIRequest, name, err)
	}
	a.logger.Info("target playlist created", "name", name, "id", pl.ID)

	a.copyCover(ctx, sourceID, pl.ID)

	return pl.ID, true, pl.Name, nil
}

// playlistName returns the display name for id, preferring the
// already-fetched listing over an extra API call. Playlists followed
// from other users do not appear in the listing.
func (a *Archiver) playlistName(ctx context.Context, id string, known []services.Playlist) (string, error) {
	for _, pl := range known {
		if pl.ID == id {
			return pl.Name, nil
		}
	}
	pl, err := a.svc.Playlist(ctx, id)
	if err != nil {
		return "", err
	}
	return pl.Name, nil
}

// knownName is playlistName without the API fallback, for targets whose
// name we already hold.
func (a *Archiver) knownName(id string, known []services.Playlist, fallback string) string {
	for _, pl := range known {
		if pl.ID == id {
			return pl.Name
		}
	}
	if fallback != "" {
		return fallback
	}
	return a.store.Record(id).Name
}

// copyCover copies the source cover image onto the target. Always
// best-effort: a failure is logged and never aborts the pair.
func (a *Archiver) copyCover(ctx context.Context, sourceID, targetID string) {
	img, err := a.svc.CoverImage(ctx, sourceID)
	if err != nil {
		a.logger.Warn("failed to fetch source cover image", "playlist", sourceID, "error", err)
		return
	}
	if err := a.svc.UploadCover(ctx, targetID, img); err != nil {
		a.logger.Warn("failed to upload cover image", "playlist", targetID, "error", err)
		return
	}
	a.logger.Debug("cover image copied", "source", sourceID, "target", targetID)
}
