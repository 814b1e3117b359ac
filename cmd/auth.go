package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dersimn/spotify-archiver/internal/server"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin performs the OAuth2 authorization flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization,
// and persists the granted tokens to the state store.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	handler := server.NewOAuthHandler(r.spotify, r.manager, r.logger)
	router := server.NewBasicRouter()
	router.Handler(handler)

	httpServer := &http.Server{
		Addr:    r.config.Server.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting OAuth server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	loginURL := fmt.Sprintf("http://%s/login", httpServer.Addr)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", loginURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := shared.OpenBrowser(loginURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", loginURL)
		}
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result error

	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrAuthFailed)
	case <-ctx.Done():
		return ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	r.manager.Stop()
	r.store.Flush()

	if result != nil {
		return fmt.Errorf("authorization failed: %w", result)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.store.Path())
	r.writePlain("You can now use: spotify-archiver run\n")

	return nil
}

// AuthStatus reports whether stored credentials exist and still work.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	if !r.manager.IsAuthorized() {
		r.writePlain("✗ Not authorized. Run 'spotify-archiver auth login' first.\n")
		return nil
	}

	r.manager.Start(ctx)
	defer r.manager.Stop()

	if !r.manager.CheckAuth(ctx) {
		r.writePlain("✗ Stored credentials rejected by the Spotify API.\n")
		r.writePlain("  Run 'spotify-archiver auth login' to reauthorize.\n")
		return nil
	}

	user, err := r.spotify.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Authorized as %s (%s)\n", user.DisplayName, user.ID)

	return nil
}
