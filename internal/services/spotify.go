// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Conservative client-side ceiling; Spotify throttles around 180/min.
	spotifyRateLimit = 5.0
)

// spotifyScopes are requested on every authorization grant. The write
// scopes cover playlist creation and cover upload.
var spotifyScopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
	"playlist-modify-public",
	"ugc-image-upload",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifyTrackRef struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Owner       spotifyOwner    `json:"owner"`
	Public      bool            `json:"public"`
	Tracks      spotifyTrackRef `json:"tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifyPlaylist `json:"items"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
}

type spotifyPlaylistItem struct {
	Track *struct {
		URI string `json:"uri"`
	} `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of playlist tracks.
type SpotifyPaginatedTracks struct {
	Items  []spotifyPlaylistItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Next   *string               `json:"next"`
}

// SpotifyService implements [Service] and [OAuthService] for the
// Spotify Web API. Uses [oauth2] for authentication and rate-limits
// every call with [rate.Limiter].
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string

	// cached after the first CurrentUser call, needed for playlist creation
	userID string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("missing client_id in credentials")
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("missing client_secret in credentials")
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(spotifyRateLimit), 1),
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for an access/refresh token pair.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	s.token = token
	return token, nil
}

// Refresh trades a refresh token for a fresh access token. The new
// access token is installed on the client as a side effect.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	s.token = token
	return token, nil
}

// SetAccessToken installs a previously persisted access token.
func (s *SpotifyService) SetAccessToken(token string) {
	s.token = &oauth2.Token{AccessToken: token}
}

// doRequest performs an authenticated, rate-limited HTTP request to the
// Spotify API and decodes the JSON response into result.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil || s.token.AccessToken == "" {
		return fmt.Errorf("not authenticated: no access token installed")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*User, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	s.userID = user.ID
	return &User{ID: user.ID, DisplayName: user.DisplayName}, nil
}

// UserPlaylists retrieves all of the current user's playlists, draining
// pagination 50 at a time.
func (s *SpotifyService) UserPlaylists(ctx context.Context) ([]Playlist, error) {
	var all []Playlist
	limit := 50
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

		var page SpotifyPaginatedPlaylists
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			all = append(all, toPlaylist(sp))
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return all, nil
}

// Playlist retrieves a playlist by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*Playlist, error) {
	var sp SpotifyPlaylist
	endpoint := fmt.Sprintf("/playlists/%s", playlistID)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &sp); err != nil {
		return nil, err
	}

	pl := toPlaylist(sp)
	return &pl, nil
}

// PlaylistTracks retrieves every track URI of a playlist in playlist
// order, draining pagination 100 at a time. Items without a resolvable
// track URI (local files, removed episodes) are filtered out.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]string, error) {
	uris := []string{}
	limit := 100
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?fields=items(track(uri)),next,total,limit,offset&limit=%d&offset=%d",
			playlistID, limit, offset)

		var page SpotifyPaginatedTracks
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.URI == "" {
				continue
			}
			uris = append(uris, item.Track.URI)
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return uris, nil
}

// AddTracks appends up to [MaxAddBatch] track URIs to a playlist.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return fmt.Errorf("no track URIs provided")
	}
	if len(uris) > MaxAddBatch {
		return fmt.Errorf("maximum %d track URIs allowed per call", MaxAddBatch)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	body := map[string]any{"uris": uris}

	return s.doRequest(ctx, http.MethodPost, endpoint, body, nil)
}

// CreatePlaylist creates a playlist owned by the authenticated user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name string, public bool) (*Playlist, error) {
	if s.userID == "" {
		if _, err := s.CurrentUser(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", s.userID)
	body := map[string]any{"name": name, "public": public}

	var sp SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &sp); err != nil {
		return nil, err
	}

	pl := toPlaylist(sp)
	return &pl, nil
}

// CoverImage downloads a playlist's primary cover image.
//
// The remote upload endpoint only accepts JPEG, so anything else the
// CDN serves is rejected here instead of failing later on upload.
func (s *SpotifyService) CoverImage(ctx context.Context, playlistID string) ([]byte, error) {
	var images []SpotifyImage
	endpoint := fmt.Sprintf("/playlists/%s/images", playlistID)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &images); err != nil {
		return nil, err
	}
	if len(images) == 0 || images[0].URL == "" {
		return nil, fmt.Errorf("playlist has no cover image")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, images[0].URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cover download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cover download failed: status %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/jpeg") {
		return nil, fmt.Errorf("cover image is %s, only image/jpeg is supported", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cover image: %w", err)
	}

	return data, nil
}

// UploadCover replaces a playlist's cover image with the given JPEG.
func (s *SpotifyService) UploadCover(ctx context.Context, playlistID string, jpeg []byte) error {
	if s.token == nil || s.token.AccessToken == "" {
		return fmt.Errorf("not authenticated: no access token installed")
	}
	if !isJPEG(jpeg) {
		return fmt.Errorf("cover data is not JPEG")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(jpeg)
	endpoint := fmt.Sprintf("%s/playlists/%s/images", s.baseURL, playlistID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cover upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cover upload failed: status %d", resp.StatusCode)
	}

	return nil
}

// toPlaylist converts a Spotify playlist response to the service DTO.
func toPlaylist(sp SpotifyPlaylist) Playlist {
	return Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
		OwnerID:     sp.Owner.ID,
	}
}

// isJPEG checks for the JPEG SOI marker.
func isJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8
}
