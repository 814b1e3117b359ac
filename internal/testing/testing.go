// package testing contains shared testing utilities
package testing

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/dersimn/spotify-archiver/internal/services"
)

// MockService is a configurable test double for [services.Service]. The
// maps are keyed by playlist ID; AddTracks appends into Tracks so
// reconciliation tests can observe remote effects.
type MockService struct {
	User      *services.User
	UserErr   error
	Playlists []services.Playlist
	ListErr   error
	Tracks    map[string][]string
	TracksErr map[string]error
	AddErr    error
	Covers    map[string][]byte
	Uploaded  map[string][]byte

	AddCalls [][]string // batches passed to AddTracks, in order
	Created  []services.Playlist
}

// NewMockService returns a MockService with empty track maps.
func NewMockService() *MockService {
	return &MockService{
		User:      &services.User{ID: "user", DisplayName: "User"},
		Tracks:    map[string][]string{},
		TracksErr: map[string]error{},
		Covers:    map[string][]byte{},
		Uploaded:  map[string][]byte{},
	}
}

func (m *MockService) CurrentUser(ctx context.Context) (*services.User, error) {
	return m.User, m.UserErr
}

func (m *MockService) UserPlaylists(ctx context.Context) ([]services.Playlist, error) {
	return m.Playlists, m.ListErr
}

func (m *MockService) Playlist(ctx context.Context, playlistID string) (*services.Playlist, error) {
	for _, pl := range m.Playlists {
		if pl.ID == playlistID {
			return &pl, nil
		}
	}
	return nil, fmt.Errorf("playlist not found: %s", playlistID)
}

func (m *MockService) PlaylistTracks(ctx context.Context, playlistID string) ([]string, error) {
	if err := m.TracksErr[playlistID]; err != nil {
		return nil, err
	}
	return append([]string(nil), m.Tracks[playlistID]...), nil
}

func (m *MockService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if m.AddErr != nil {
		return m.AddErr
	}
	m.AddCalls = append(m.AddCalls, append([]string(nil), uris...))
	m.Tracks[playlistID] = append(m.Tracks[playlistID], uris...)
	return nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, name string, public bool) (*services.Playlist, error) {
	pl := services.Playlist{ID: fmt.Sprintf("created-%d", len(m.Created)+1), Name: name, Public: public}
	m.Created = append(m.Created, pl)
	if m.Tracks[pl.ID] == nil {
		m.Tracks[pl.ID] = []string{}
	}
	return &pl, nil
}

func (m *MockService) CoverImage(ctx context.Context, playlistID string) ([]byte, error) {
	img, ok := m.Covers[playlistID]
	if !ok {
		return nil, fmt.Errorf("playlist has no cover image")
	}
	return img, nil
}

func (m *MockService) UploadCover(ctx context.Context, playlistID string, jpeg []byte) error {
	m.Uploaded[playlistID] = jpeg
	return nil
}

func (m *MockService) Name() string { return "mock" }

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
