package main

import (
	"context"
	"os"

	"github.com/dersimn/spotify-archiver/internal/auth"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}

	statePath := config.State.Path
	if statePath == "" {
		statePath = "state.json"
	}
	store := state.Open(statePath, logger)

	var spotify *services.SpotifyService
	var manager *auth.Manager
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map()); err == nil {
			spotify = svc
			manager = auth.NewManager(svc, store, logger)
		} else {
			logger.Warn("spotify service unavailable", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Spotify: spotify,
		Store:   store,
		Manager: manager,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "spotify-archiver",
		Usage:    "Keep proxy playlists in sync with their sources while respecting your removals",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
