package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig   = fmt.Errorf("configuration not found")
	ErrInvalidConfig   = fmt.Errorf("invalid configuration")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// API and resolution errors
	ErrAPIRequest        = fmt.Errorf("API request failed")
	ErrPlaylistNotFound  = fmt.Errorf("playlist not found")
	ErrAmbiguousPlaylist = fmt.Errorf("ambiguous playlist name")
)
