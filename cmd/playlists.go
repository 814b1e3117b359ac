package main

import (
	"context"
	"fmt"

	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/urfave/cli/v3"
)

// Playlists lists the authorized user's Spotify playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", shared.ErrInvalidArgument, limit)
	}

	if err := r.requireSpotify(); err != nil {
		return err
	}

	if !r.manager.IsAuthorized() {
		return fmt.Errorf("%w: run 'spotify-archiver auth login' first", shared.ErrNotAuthenticated)
	}

	r.manager.Start(ctx)
	defer r.manager.Stop()

	r.logger.Infof("listing spotify playlists with limit %v", limit)

	playlists, err := r.spotify.UserPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Public {
			r.writePlain("   Visibility: Public\n")
		} else {
			r.writePlain("   Visibility: Private\n")
		}
		r.writePlain("\n")
	}

	return nil
}
