package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dersimn/spotify-archiver/internal/repositories"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/urfave/cli/v3"
)

// RunsList prints recent archival runs from the history database.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", shared.ErrInvalidArgument, limit)
	}

	db, err := r.openDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := repositories.NewRunRepository(db)
	runs, err := repo.List(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if useJSON {
		return r.writeJSON(runs, pretty)
	}

	if len(runs) == 0 {
		r.writePlain("No runs recorded yet.\n")
		return nil
	}

	r.writePlain("Found %d runs:\n\n", len(runs))
	for _, run := range runs {
		status := "✓"
		if run.Error != "" || run.PairsFailed > 0 {
			status = "✗"
		}
		r.writePlain("%s #%d %s\n", status, run.Sequence, run.StartedAt.Format(time.RFC3339))
		r.writePlain("   Pairs: %d (%d failed)  Added: %d  Blacklisted: %d  Took: %s\n",
			run.PairsTotal, run.PairsFailed, run.TracksAdded, run.TracksBlacklisted,
			run.Duration().Round(time.Millisecond))
		if run.Error != "" {
			r.writePlain("   Error: %s\n", run.Error)
		}
		r.writePlain("\n")
	}

	return nil
}
