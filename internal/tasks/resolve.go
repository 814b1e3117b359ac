package tasks

import (
	"fmt"

	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
)

// Descriptor identifies a configured playlist by explicit ID or by
// display name, optionally preferring persisted records for the lookup.
type Descriptor struct {
	ID                string
	Name              string
	FindByPersistence bool
}

// String describes the descriptor for log lines.
func (d Descriptor) String() string {
	if d.ID != "" {
		return d.ID
	}
	return fmt.Sprintf("%q", d.Name)
}

// Resolve maps a descriptor to a concrete playlist ID.
//
// Resolution order, most trusted first:
//
//  1. An explicit ID is used verbatim, no validation.
//  2. With FindByPersistence set, persisted records are scanned for an
//     exact name match. Zero matches fall through; more than one is an
//     ambiguity error.
//  3. The pre-fetched snapshot of the user's playlists is scanned for
//     an exact name match, with the same zero/one/many policy.
//
// A miss after all three steps is [shared.ErrPlaylistNotFound].
func Resolve(d Descriptor, known []services.Playlist, store *state.Store) (string, error) {
	if d.ID != "" {
		return d.ID, nil
	}
	if d.Name == "" {
		return "", fmt.Errorf("%w: descriptor has neither id nor name", shared.ErrInvalidConfig)
	}

	if d.FindByPersistence {
		ids := store.FindByName(d.Name)
		if len(ids) > 1 {
			return "", fmt.Errorf("%w: %d persisted playlists named %q", shared.ErrAmbiguousPlaylist, len(ids), d.Name)
		}
		if len(ids) == 1 {
			return ids[0], nil
		}
	}

	var matches []string
	for _, pl := range known {
		if pl.Name == d.Name {
			matches = append(matches, pl.ID)
		}
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("%w: %d playlists named %q", shared.ErrAmbiguousPlaylist, len(matches), d.Name)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	return "", fmt.Errorf("%w: %q", shared.ErrPlaylistNotFound, d.Name)
}

// Pair is one configured source → target mapping, derived from the
// settings on every run.
type Pair struct {
	Source       Descriptor
	Target       Descriptor
	ReplaceCover bool
}

// saveSuffix is appended to a source name to derive the default target
// name in the shorthand configuration form.
const saveSuffix = " (save)"

// PairsFromConfig derives the run's pairs from configured archive
// entries. The shorthand form (bare name) archives "<name>" into
// "<name> (save)" with a persistence-first target lookup.
func PairsFromConfig(cfg *shared.Config) []Pair {
	pairs := make([]Pair, 0, len(cfg.Archive))
	for _, e := range cfg.Archive {
		var p Pair

		if e.Source != nil {
			p.Source = Descriptor{ID: e.Source.ID, Name: e.Source.Name, FindByPersistence: e.Source.FindByPersistence}
		} else {
			p.Source = Descriptor{Name: e.Name}
		}

		if e.Target != nil {
			p.Target = Descriptor{ID: e.Target.ID, Name: e.Target.Name, FindByPersistence: e.Target.FindByPersistence}
			p.ReplaceCover = e.Target.ReplaceCoverOnRefresh
		} else {
			name := e.Name
			if name == "" {
				name = p.Source.Name
			}
			if name != "" {
				name += saveSuffix
			}
			p.Target = Descriptor{Name: name, FindByPersistence: true}
		}

		pairs = append(pairs, p)
	}
	return pairs
}
