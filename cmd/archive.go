package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dersimn/spotify-archiver/internal/repositories"
	"github.com/dersimn/spotify-archiver/internal/scheduler"
	"github.com/dersimn/spotify-archiver/internal/server"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the archiver daemon: the cron scheduler, the OAuth
// login/callback server, and the self-refreshing credential manager,
// until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.manager.Start(ctx)
	defer r.manager.Stop()

	recorder, closeDB := r.tryRecorder()
	defer closeDB()

	archiver := r.newArchiver(recorder)
	job := func() {
		if _, err := archiver.Run(context.Background(), nil); err != nil {
			r.logger.Error("scheduled archival run failed", "error", err)
		}
	}

	expr := cmd.String("cron")
	if expr == "" {
		expr = r.config.Schedule.Cron
	}

	sched, err := scheduler.New(expr, job, r.logger)
	if err != nil {
		return err
	}

	handler := server.NewOAuthHandler(r.spotify, r.manager, r.logger)
	handler.OnAuthorized = sched.RunNow

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(handler)

	httpServer := &http.Server{
		Addr:    r.config.Server.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	sched.Start()

	if !r.manager.IsAuthorized() {
		r.logger.Info("no stored credentials, visit /login to authorize",
			"url", fmt.Sprintf("http://%s/login", httpServer.Addr))
	} else if cmd.Bool("immediate") {
		sched.RunNow()
	}

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutting down")
	case runErr = <-serverErrors:
		r.logger.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	sched.Stop()
	r.store.Flush()

	return runErr
}

// RunOnce performs a single archival pass across all configured pairs.
func (r *Runner) RunOnce(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	if !r.manager.IsAuthorized() {
		return fmt.Errorf("%w: run 'spotify-archiver auth login' first", shared.ErrNotAuthenticated)
	}

	r.manager.Start(ctx)
	defer r.manager.Stop()

	var recorder tasks.RunRecorder
	closeDB := func() {}
	if !cmd.Bool("no-record") {
		recorder, closeDB = r.tryRecorder()
	}
	defer closeDB()

	archiver := r.newArchiver(recorder)

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("→ %s\n", update.Message)
		}
	}()

	result, err := archiver.Run(ctx, progress)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlainln("✓ Archival run complete")
	r.writePlain("  Pairs:       %d (%d failed)\n", result.Summary.PairsTotal, result.Summary.PairsFailed)
	r.writePlain("  Added:       %d tracks\n", result.Summary.TracksAdded)
	r.writePlain("  Blacklisted: %d tracks\n", result.Summary.TracksBlacklisted)
	r.writePlain("  Took:        %s\n", result.Summary.FinishedAt.Sub(result.Summary.StartedAt).Round(time.Millisecond))

	if result.Summary.PairsFailed > 0 {
		return fmt.Errorf("%d of %d pairs failed", result.Summary.PairsFailed, result.Summary.PairsTotal)
	}

	return nil
}

// tryRecorder opens the run-history database and returns a recorder
// over it. History is best-effort: when the database cannot be opened
// or migrated the run proceeds without recording.
func (r *Runner) tryRecorder() (tasks.RunRecorder, func()) {
	db, err := r.openDatabase()
	if err != nil {
		r.logger.Warn("run history unavailable", "error", err)
		return nil, func() {}
	}

	if err := shared.RunMigrations(db); err != nil {
		r.logger.Warn("run history migrations failed", "error", err)
		db.Close()
		return nil, func() {}
	}

	return &runRecorder{repo: repositories.NewRunRepository(db)}, func() { db.Close() }
}
