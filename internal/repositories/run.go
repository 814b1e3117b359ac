package repositories

import (
	"database/sql"
	"fmt"

	"github.com/dersimn/spotify-archiver/internal/models"
)

// RunRepository persists [models.Run] rows.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with a generated sequence number.
func (r *RunRepository) Create(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.Sequence = sequence

	query := `
		INSERT INTO runs (id, sequence, started_at, finished_at, pairs_total, pairs_failed, tracks_added, tracks_blacklisted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID,
		run.Sequence,
		run.StartedAt,
		run.FinishedAt,
		run.PairsTotal,
		run.PairsFailed,
		run.TracksAdded,
		run.TracksBlacklisted,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := `
		SELECT id, sequence, started_at, finished_at, pairs_total, pairs_failed, tracks_added, tracks_blacklisted, error
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return run, nil
}

// List retrieves the most recent runs, newest first, up to limit.
func (r *RunRepository) List(limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, sequence, started_at, finished_at, pairs_total, pairs_failed, tracks_added, tracks_blacklisted, error
		FROM runs
		ORDER BY sequence DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// scanner covers both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	err := row.Scan(
		&run.ID,
		&run.Sequence,
		&run.StartedAt,
		&run.FinishedAt,
		&run.PairsTotal,
		&run.PairsFailed,
		&run.TracksAdded,
		&run.TracksBlacklisted,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
