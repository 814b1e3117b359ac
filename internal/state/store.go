package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultFlushDelay is the debounce window between a mutation and the
// resulting disk write.
const DefaultFlushDelay = 500 * time.Millisecond

// Store wraps the persisted [State] behind a mutex and writes every
// mutation through to disk after a debounce window.
//
// Write failures are logged and never surfaced to mutators; the next
// mutation schedules another attempt.
type Store struct {
	path   string
	logger *log.Logger
	delay  time.Duration

	mu    sync.Mutex
	state *State
	timer *time.Timer

	// wmu serializes whole flushes so a timer-fired flush racing a
	// manual one cannot land an older document last. Always locked
	// before mu.
	wmu sync.Mutex
}

// Open loads the state document at path into a new Store.
//
// A missing or unparseable file yields the zero-value state: losing the
// snapshot history is recoverable, refusing to start is not.
func Open(path string, logger *log.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		delay:  DefaultFlushDelay,
		state:  newState(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read state file, starting empty", "path", path, "error", err)
		}
		return s
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("failed to parse state file, starting empty", "path", path, "error", err)
		return s
	}
	if loaded.Playlists == nil {
		loaded.Playlists = map[string]*PlaylistRecord{}
	}
	s.state = &loaded

	return s
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// SetFlushDelay overrides the debounce window (used by tests).
func (s *Store) SetFlushDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Tokens returns a copy of the persisted token pair.
func (s *Store) Tokens() TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Tokens
}

// SetTokens replaces both tokens and schedules a flush.
func (s *Store) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tokens = TokenState{AccessToken: access, RefreshToken: refresh}
	s.scheduleFlush()
}

// SetAccessToken replaces only the access token, leaving the refresh
// token untouched (the refresh loop's usual mutation).
func (s *Store) SetAccessToken(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tokens.AccessToken = access
	s.scheduleFlush()
}

// Record returns a copy of the record for the given playlist ID,
// creating an empty one if none exists yet.
func (s *Store) Record(id string) PlaylistRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(id)
	return PlaylistRecord{
		Name:      rec.Name,
		Tracks:    append([]string(nil), rec.Tracks...),
		Blacklist: NewTrackSet(rec.Blacklist.Slice()...),
	}
}

// SetName updates a record's display name.
func (s *Store) SetName(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(id)
	if rec.Name == name {
		return
	}
	rec.Name = name
	s.scheduleFlush()
}

// SetSnapshot overwrites a record's track snapshot with a fresh live read.
func (s *Store) SetSnapshot(id string, tracks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(id)
	rec.Tracks = append([]string(nil), tracks...)
	s.scheduleFlush()
}

// AddBlacklist unions the given URIs into a record's blacklist and
// returns how many were new. The blacklist never shrinks.
func (s *Store) AddBlacklist(id string, uris ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(id)
	added := 0
	for _, uri := range uris {
		if _, ok := rec.Blacklist[uri]; !ok {
			rec.Blacklist[uri] = struct{}{}
			added++
		}
	}
	if added > 0 {
		s.scheduleFlush()
	}
	return added
}

// FindByName returns the IDs of all records whose display name matches
// exactly, sorted for determinism.
func (s *Store) FindByName(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, rec := range s.state.Playlists {
		if rec.Name == name {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of the whole document (for `state show`).
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := State{Tokens: s.state.Tokens, Playlists: make(map[string]*PlaylistRecord, len(s.state.Playlists))}
	for id, rec := range s.state.Playlists {
		out.Playlists[id] = &PlaylistRecord{
			Name:      rec.Name,
			Tracks:    append([]string(nil), rec.Tracks...),
			Blacklist: NewTrackSet(rec.Blacklist.Slice()...),
		}
	}
	return out
}

// Flush forces any pending write to happen now.
func (s *Store) Flush() {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("failed to marshal state", "error", err)
		return
	}
	s.write(data)
}

// record returns the live record for id, creating it if needed.
// Callers must hold s.mu.
func (s *Store) record(id string) *PlaylistRecord {
	rec, ok := s.state.Playlists[id]
	if !ok {
		rec = &PlaylistRecord{Tracks: []string{}, Blacklist: TrackSet{}}
		s.state.Playlists[id] = rec
	}
	if rec.Blacklist == nil {
		rec.Blacklist = TrackSet{}
	}
	return rec
}

// scheduleFlush arms (or re-arms) the debounced write.
// Callers must hold s.mu.
func (s *Store) scheduleFlush() {
	if s.timer != nil {
		s.timer.Reset(s.delay)
		return
	}
	s.timer = time.AfterFunc(s.delay, s.Flush)
}

// write replaces the state file atomically via a temp file and rename.
func (s *Store) write(data []byte) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		s.logger.Error("failed to create temp state file", "error", err)
		return
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.logger.Error("failed to write state file", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("failed to close state file", "error", err)
		return
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("failed to replace state file", "error", err)
	}
}
