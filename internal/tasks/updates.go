package tasks

import "fmt"

// ProgressUpdate represents a progress event during an archival run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	CheckAuth Phase = iota
	FetchBlacklist
	FetchPlaylists
	ResolvePair
	CreateTarget
	Reconcile
	RecordRun
)

func (p Phase) String() string {
	switch p {
	case CheckAuth:
		return "check_auth"
	case FetchBlacklist:
		return "fetch_blacklist"
	case FetchPlaylists:
		return "fetch_playlists"
	case ResolvePair:
		return "resolve_pair"
	case CreateTarget:
		return "create_target"
	case Reconcile:
		return "reconcile"
	case RecordRun:
		return "record_run"
	default:
		return ""
	}
}

func checkAuthUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: CheckAuth, Step: 1, Total: 1, Message: "Checking authorization..."}
}

func fetchBlacklistUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchBlacklist, Step: 1, Total: 1, Message: "Refreshing global blacklist..."}
}

func fetchPlaylistsUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchPlaylists, Step: 1, Total: 1, Message: "Listing user playlists..."}
}

func resolvePairUpdate(step, total int, pair Pair) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolvePair,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Resolving %s → %s...", pair.Source, pair.Target),
		Data:    pair,
	}
}

func createTargetUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreateTarget,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Creating target playlist %q...", name),
	}
}

func reconcileUpdate(step, total int, result *ReconcileResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Reconcile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Reconciled pair %d/%d", step, total),
		Data:    result,
	}
}
