package repositories

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/dersimn/spotify-archiver/internal/models"
	"github.com/dersimn/spotify-archiver/internal/shared"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func testRun(id string) *models.Run {
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	return &models.Run{
		ID:                id,
		StartedAt:         started,
		FinishedAt:        started.Add(30 * time.Second),
		PairsTotal:        2,
		PairsFailed:       1,
		TracksAdded:       10,
		TracksBlacklisted: 3,
	}
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)

		t.Run("Assigns Sequence", func(t *testing.T) {
			first := testRun(shared.GenerateID())
			if err := repo.Create(first); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if first.Sequence != 1 {
				t.Errorf("expected sequence 1, got %d", first.Sequence)
			}

			second := testRun(shared.GenerateID())
			if err := repo.Create(second); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if second.Sequence != 2 {
				t.Errorf("expected sequence 2, got %d", second.Sequence)
			}
		})

		t.Run("Rejects Invalid Run", func(t *testing.T) {
			invalid := testRun("")
			err := repo.Create(invalid)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "validation failed") {
				t.Errorf("expected validation failure, got %v", err)
			}
		})

		t.Run("Rejects Duplicate ID", func(t *testing.T) {
			run := testRun(shared.GenerateID())
			if err := repo.Create(run); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := repo.Create(run); err == nil {
				t.Error("expected primary key conflict")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)

		run := testRun(shared.GenerateID())
		run.Error = "one pair failed"
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		t.Run("Existing Run", func(t *testing.T) {
			got, err := repo.Get(run.ID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if got.ID != run.ID || got.Sequence != run.Sequence {
				t.Errorf("expected stored identity, got %+v", got)
			}
			if got.TracksAdded != 10 || got.TracksBlacklisted != 3 {
				t.Errorf("expected stored counters, got %+v", got)
			}
			if got.Error != "one pair failed" {
				t.Errorf("expected stored error text, got %q", got.Error)
			}
			if !got.StartedAt.Equal(run.StartedAt) {
				t.Errorf("expected started_at %s, got %s", run.StartedAt, got.StartedAt)
			}
		})

		t.Run("Missing Run", func(t *testing.T) {
			if _, err := repo.Get("missing"); err == nil {
				t.Error("expected error for missing run")
			}
		})
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)

		for i := 0; i < 5; i++ {
			if err := repo.Create(testRun(shared.GenerateID())); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		t.Run("Newest First", func(t *testing.T) {
			runs, err := repo.List(10)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(runs) != 5 {
				t.Fatalf("expected 5 runs, got %d", len(runs))
			}
			if runs[0].Sequence != 5 || runs[4].Sequence != 1 {
				t.Errorf("expected descending sequence, got %d..%d", runs[0].Sequence, runs[4].Sequence)
			}
		})

		t.Run("Respects Limit", func(t *testing.T) {
			runs, err := repo.List(2)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(runs) != 2 {
				t.Errorf("expected 2 runs, got %d", len(runs))
			}
		})

		t.Run("Default Limit", func(t *testing.T) {
			runs, err := repo.List(0)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(runs) != 5 {
				t.Errorf("expected all 5 runs under default limit, got %d", len(runs))
			}
		})
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "runs")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}
}
