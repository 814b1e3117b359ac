package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/state"
	mocks "github.com/dersimn/spotify-archiver/internal/testing"
)

func TestReconciler(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)

	t.Run("First Run Copies Source", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.Tracks["src"] = []string{"spotify:track:a", "spotify:track:b"}
		svc.Tracks["dst"] = []string{}
		store := testStore(t)

		result, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", state.TrackSet{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(result.Added) != 2 {
			t.Errorf("expected 2 added, got %d", len(result.Added))
		}
		if len(result.Blacklisted) != 0 {
			t.Errorf("expected no blacklisting, got %v", result.Blacklisted)
		}

		rec := store.Record("dst")
		if len(rec.Tracks) != 2 {
			t.Errorf("expected snapshot of 2 tracks, got %v", rec.Tracks)
		}
	})

	t.Run("Preserves Source Order", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.Tracks["src"] = []string{"spotify:track:c", "spotify:track:a", "spotify:track:b"}
		svc.Tracks["dst"] = []string{}
		store := testStore(t)

		result, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", state.TrackSet{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := []string{"spotify:track:c", "spotify:track:a", "spotify:track:b"}
		for i, uri := range want {
			if result.Added[i] != uri {
				t.Fatalf("expected source order %v, got %v", want, result.Added)
			}
		}
	})

	t.Run("User Removal Is Blacklisted Forever", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.Tracks["src"] = []string{"spotify:track:a", "spotify:track:b"}
		svc.Tracks["dst"] = []string{"spotify:track:a"}
		store := testStore(t)

		// Previous run saw both tracks on the target; the user since
		// removed track b.
		store.SetSnapshot("dst", []string{"spotify:track:a", "spotify:track:b"})

		r := NewReconciler(svc, store, logger)
		result, err := r.Reconcile(ctx, "src", "dst", state.TrackSet{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(result.Blacklisted) != 1 || result.Blacklisted[0] != "spotify:track:b" {
			t.Errorf("expected track b blacklisted, got %v", result.Blacklisted)
		}
		if len(result.Added) != 0 {
			t.Errorf("expected removed track to not be re-added, got %v", result.Added)
		}
		if result.SkippedLocal != 1 {
			t.Errorf("expected 1 local skip, got %d", result.SkippedLocal)
		}

		t.Run("Still Excluded After Source Shuffle", func(t *testing.T) {
			svc.Tracks["src"] = []string{"spotify:track:b", "spotify:track:a", "spotify:track:c"}

			result, err := r.Reconcile(ctx, "src", "dst", state.TrackSet{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(result.Added) != 1 || result.Added[0] != "spotify:track:c" {
				t.Errorf("expected only track c added, got %v", result.Added)
			}
			if result.SkippedLocal != 1 {
				t.Errorf("expected blacklist to keep excluding track b, got %d skips", result.SkippedLocal)
			}
		})
	})

	t.Run("Global Blacklist", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.Tracks["src"] = []string{"spotify:track:a", "spotify:track:banned"}
		svc.Tracks["dst"] = []string{}
		store := testStore(t)

		global := state.NewTrackSet("spotify:track:banned")
		result, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", global)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(result.Added) != 1 || result.Added[0] != "spotify:track:a" {
			t.Errorf("expected banned track skipped, got %v", result.Added)
		}
		if result.SkippedGlobal != 1 {
			t.Errorf("expected 1 global skip, got %d", result.SkippedGlobal)
		}

		t.Run("Does Not Touch Persisted Blacklist", func(t *testing.T) {
			rec := store.Record("dst")
			if rec.Blacklist.Contains("spotify:track:banned") {
				t.Error("global exclusions must not leak into the per-target blacklist")
			}
		})
	})

	t.Run("Idempotent When Nothing Changed", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.Tracks["src"] = []string{"spotify:track:a", "spotify:track:b"}
		svc.Tracks["dst"] = []string{}
		store := testStore(t)

		r := NewReconciler(svc, store, logger)
		if _, err := r.Reconcile(ctx, "src", "dst", state.TrackSet{}); err != nil {
			t.Fatalf("first run: %v", err)
		}

		result, err := r.Reconcile(ctx, "src", "dst", state.TrackSet{})
		if err != nil {
			t.Fatalf("second run: %v", err)
		}

		if len(result.Added) != 0 {
			t.Errorf("expected no adds on second run, got %v", result.Added)
		}
		if len(result.Blacklisted) != 0 {
			t.Errorf("expected no blacklisting on second run, got %v", result.Blacklisted)
		}
	})

	t.Run("Chunks Large Add Batches", func(t *testing.T) {
		svc := mocks.NewMockService()
		var source []string
		for i := 0; i < 250; i++ {
			source = append(source, fmt.Sprintf("spotify:track:%03d", i))
		}
		svc.Tracks["src"] = source
		svc.Tracks["dst"] = []string{}
		store := testStore(t)

		result, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", state.TrackSet{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(result.Added) != 250 {
			t.Errorf("expected 250 added, got %d", len(result.Added))
		}
		if len(svc.AddCalls) != 3 {
			t.Fatalf("expected 3 batches, got %d", len(svc.AddCalls))
		}
		if len(svc.AddCalls[0]) != 100 || len(svc.AddCalls[1]) != 100 || len(svc.AddCalls[2]) != 50 {
			t.Errorf("expected batches of 100/100/50, got %d/%d/%d",
				len(svc.AddCalls[0]), len(svc.AddCalls[1]), len(svc.AddCalls[2]))
		}
		if svc.AddCalls[2][49] != "spotify:track:249" {
			t.Errorf("expected last batch to end with the final track, got %s", svc.AddCalls[2][49])
		}
	})

	t.Run("Add Failure Keeps Stale Snapshot", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.Tracks["src"] = []string{"spotify:track:a"}
		svc.Tracks["dst"] = []string{}
		svc.AddErr = errors.New("rate limited")
		store := testStore(t)

		_, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", state.TrackSet{})
		if err == nil {
			t.Fatal("expected error from failed add")
		}

		rec := store.Record("dst")
		if len(rec.Tracks) != 0 {
			t.Errorf("expected snapshot untouched after failure, got %v", rec.Tracks)
		}

		t.Run("Next Run Recovers", func(t *testing.T) {
			svc.AddErr = nil

			result, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", state.TrackSet{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(result.Added) != 1 {
				t.Errorf("expected recovery add, got %v", result.Added)
			}
		})
	})

	t.Run("Target Read Failure", func(t *testing.T) {
		svc := mocks.NewMockService()
		svc.TracksErr["dst"] = errors.New("boom")
		store := testStore(t)

		if _, err := NewReconciler(svc, store, logger).Reconcile(ctx, "src", "dst", state.TrackSet{}); err == nil {
			t.Error("expected error when target cannot be read")
		}
	})
}

func TestChunk(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if got := chunk(nil, 100); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("Exact Multiple", func(t *testing.T) {
		uris := []string{"a", "b", "c", "d"}
		got := chunk(uris, 2)
		if len(got) != 2 || len(got[0]) != 2 || len(got[1]) != 2 {
			t.Errorf("expected 2 batches of 2, got %v", got)
		}
	})

	t.Run("Remainder", func(t *testing.T) {
		uris := []string{"a", "b", "c"}
		got := chunk(uris, 2)
		if len(got) != 2 || len(got[1]) != 1 {
			t.Errorf("expected trailing batch of 1, got %v", got)
		}
	})
}
