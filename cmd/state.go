package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
	"github.com/urfave/cli/v3"
)

// StateShow prints the persisted playlist snapshots and blacklists.
// Tokens are never printed.
func (r *Runner) StateShow(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("playlist")
	pretty := cmd.Bool("pretty")

	snapshot := r.store.Snapshot()

	playlists := snapshot.Playlists
	if playlistID != "" {
		record, ok := playlists[playlistID]
		if !ok {
			return fmt.Errorf("%w: no state for playlist %s", shared.ErrPlaylistNotFound, playlistID)
		}
		playlists = map[string]*state.PlaylistRecord{playlistID: record}
	}

	return r.writeJSON(stateView(playlists), pretty)
}

// playlistView is the printable shape of one playlist record.
type playlistView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Tracks    int      `json:"tracks"`
	Blacklist []string `json:"blacklist"`
}

func stateView(playlists map[string]*state.PlaylistRecord) []playlistView {
	views := make([]playlistView, 0, len(playlists))
	for id, record := range playlists {
		views = append(views, playlistView{
			ID:        id,
			Name:      record.Name,
			Tracks:    len(record.Tracks),
			Blacklist: record.Blacklist.Slice(),
		})
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	return views
}
