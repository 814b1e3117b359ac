// package services defines interface Service for interacting with the
// remote playlist API
package services

import (
	"context"

	"golang.org/x/oauth2"
)

// MaxAddBatch is the remote API's maximum number of tracks per add call.
const MaxAddBatch = 100

// Service defines the playlist operations the archiver needs from a
// music service provider.
type Service interface {
	// CurrentUser retrieves the authenticated user's profile.
	// Doubles as the cheap authorization probe.
	CurrentUser(ctx context.Context) (*User, error)

	// UserPlaylists retrieves all playlists of the authenticated user,
	// draining pagination.
	UserPlaylists(ctx context.Context) ([]Playlist, error)

	// Playlist retrieves a single playlist by ID.
	Playlist(ctx context.Context, playlistID string) (*Playlist, error)

	// PlaylistTracks retrieves every track URI of a playlist in playlist
	// order, draining pagination. Entries without a resolvable URI are
	// filtered out.
	PlaylistTracks(ctx context.Context, playlistID string) ([]string, error)

	// AddTracks appends up to [MaxAddBatch] track URIs to a playlist in
	// a single call. Callers chunk larger lists.
	AddTracks(ctx context.Context, playlistID string, uris []string) error

	// CreatePlaylist creates a playlist owned by the authenticated user.
	CreatePlaylist(ctx context.Context, name string, public bool) (*Playlist, error)

	// CoverImage downloads a playlist's primary cover image as JPEG bytes.
	CoverImage(ctx context.Context, playlistID string) ([]byte, error)

	// UploadCover replaces a playlist's cover image. Only JPEG content
	// is accepted by the remote API.
	UploadCover(ctx context.Context, playlistID string, jpeg []byte) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// OAuthService defines the token operations the credential manager
// needs, separate from playlist access.
type OAuthService interface {
	// AuthURL returns the authorization URL for the code grant.
	AuthURL(state string) string

	// Exchange trades an authorization code for a token pair.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh trades a refresh token for a fresh access token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// SetAccessToken installs the access token used for API calls.
	SetAccessToken(token string)
}

// User represents a service user profile.
type User struct {
	ID          string
	DisplayName string
}

// Playlist represents a playlist from the remote service.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
	OwnerID     string
}
