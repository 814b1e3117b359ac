// package state owns the persisted archiver state: OAuth tokens and
// per-playlist snapshots with their blacklists.
//
// The state lives in a single JSON document on disk. All mutation goes
// through [Store] methods, which write through to a debounced,
// atomically replaced file. Callers never touch the file themselves.
package state

import (
	"encoding/json"
	"sort"
)

// TokenState holds the OAuth access/refresh token pair.
type TokenState struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TrackSet is a set of track URIs. It serializes as a sorted string
// slice: membership is what matters, JSON needs an order.
type TrackSet map[string]struct{}

// NewTrackSet builds a TrackSet from the given URIs.
func NewTrackSet(uris ...string) TrackSet {
	s := make(TrackSet, len(uris))
	for _, uri := range uris {
		s[uri] = struct{}{}
	}
	return s
}

// Contains reports whether uri is in the set.
func (s TrackSet) Contains(uri string) bool {
	_, ok := s[uri]
	return ok
}

// Slice returns the set's members sorted lexicographically.
func (s TrackSet) Slice() []string {
	out := make([]string, 0, len(s))
	for uri := range s {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

func (s TrackSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *TrackSet) UnmarshalJSON(data []byte) error {
	var uris []string
	if err := json.Unmarshal(data, &uris); err != nil {
		return err
	}
	*s = NewTrackSet(uris...)
	return nil
}

// PlaylistRecord is the persisted view of one remote playlist.
//
// Tracks is the target-side track list as observed at the end of the
// previous run; the remote list stays authoritative. Blacklist holds
// tracks the user removed from this playlist and that must never be
// re-added. It only ever grows.
type PlaylistRecord struct {
	Name      string   `json:"name"`
	Tracks    []string `json:"tracks"`
	Blacklist TrackSet `json:"blacklist"`
}

// State is the whole persisted document.
type State struct {
	Tokens    TokenState                 `json:"tokens"`
	Playlists map[string]*PlaylistRecord `json:"playlists"`
}

// newState returns the zero-value document.
func newState() *State {
	return &State{Playlists: map[string]*PlaylistRecord{}}
}
