package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/auth"
	"github.com/dersimn/spotify-archiver/internal/models"
	"github.com/dersimn/spotify-archiver/internal/repositories"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
	"github.com/dersimn/spotify-archiver/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	spotify *services.SpotifyService
	store   *state.Store
	manager *auth.Manager
	logger  *log.Logger
	output  io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Spotify *services.SpotifyService
	Store   *state.Store
	Manager *auth.Manager
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		spotify: opts.Spotify,
		store:   opts.Store,
		manager: opts.Manager,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, runCommand, authCommand, playlistsCommand, stateCommand, runsCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// requireSpotify guards commands that need configured credentials.
func (r *Runner) requireSpotify() error {
	if r.spotify == nil || r.manager == nil {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrMissingConfig)
	}
	return nil
}

// openDatabase opens the run-history database per configuration.
func (r *Runner) openDatabase() (*sql.DB, error) {
	path := r.config.Database.Path
	if path == "" {
		path = "archiver.db"
	}
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if r.config.Database.MaxOpenConns > 0 {
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	}
	return db, nil
}

// newArchiver assembles the archival job from the runner's dependencies.
func (r *Runner) newArchiver(recorder tasks.RunRecorder) *tasks.Archiver {
	return tasks.NewArchiver(tasks.ArchiverOpts{
		Service:   r.spotify,
		Store:     r.store,
		Auth:      r.manager,
		Recorder:  recorder,
		Blacklist: r.config.Blacklist,
		Pairs:     tasks.PairsFromConfig(r.config),
		Logger:    r.logger,
	})
}

// runRecorder adapts RunRepository to the tasks.RunRecorder interface.
type runRecorder struct {
	repo *repositories.RunRepository
}

func (rr *runRecorder) Record(s tasks.RunSummary) error {
	return rr.repo.Create(&models.Run{
		ID:                s.ID,
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
		PairsTotal:        s.PairsTotal,
		PairsFailed:       s.PairsFailed,
		TracksAdded:       s.TracksAdded,
		TracksBlacklisted: s.TracksBlacklisted,
		Error:             s.Error,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return err
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
