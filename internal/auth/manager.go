// package auth owns the OAuth token lifecycle: completing the
// authorization-code grant and keeping the access token fresh with a
// self-rescheduling background refresh timer.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
	"golang.org/x/oauth2"
)

const (
	// defaultRefreshInterval is used when the token response carries no
	// usable lifetime.
	defaultRefreshInterval = 30 * time.Minute

	// retryBase and retryCap bound the backoff chain after a failed
	// refresh: 1m, 2m, 4m, ... capped at 30m.
	retryBase = time.Minute
	retryCap  = 30 * time.Minute

	// refreshTimeout bounds each background token exchange.
	refreshTimeout = 30 * time.Second
)

// TokenService is the slice of the Spotify client the manager needs:
// the OAuth grants plus the cheap profile probe.
type TokenService interface {
	services.OAuthService
	CurrentUser(ctx context.Context) (*services.User, error)
}

// Manager keeps the API client authorized. It moves through three
// states: unauthenticated (no refresh token), authenticating (callback
// pending), authorized (refresh timer armed).
type Manager struct {
	svc    TokenService
	store  *state.Store
	logger *log.Logger

	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	failures int
	stopped  bool
}

// NewManager creates a Manager over the given token service and state store.
func NewManager(svc TokenService, store *state.Store, logger *log.Logger) *Manager {
	return &Manager{svc: svc, store: store, logger: logger}
}

// Start installs any persisted tokens and arms the refresh chain. With
// a persisted refresh token it refreshes immediately so the process
// never starts on a stale access token. Without one it does nothing;
// the HTTP login flow or `auth login` has to run first.
func (m *Manager) Start(ctx context.Context) {
	tokens := m.store.Tokens()
	if tokens.AccessToken != "" {
		m.svc.SetAccessToken(tokens.AccessToken)
	}
	if tokens.RefreshToken == "" {
		m.logger.Info("no refresh token persisted, waiting for login")
		return
	}

	if err := m.refresh(ctx); err != nil {
		m.logger.Error("initial token refresh failed", "error", err)
		m.scheduleRetry()
	}
}

// IsAuthorized reports whether a refresh token is persisted. It says
// nothing about whether the grant is still valid; use CheckAuth for that.
func (m *Manager) IsAuthorized() bool {
	return m.store.Tokens().RefreshToken != ""
}

// CheckAuth performs a cheap authenticated probe call. Any failure,
// whatever the cause, reads as "not currently usable".
func (m *Manager) CheckAuth(ctx context.Context) bool {
	if _, err := m.svc.CurrentUser(ctx); err != nil {
		m.logger.Debug("authorization probe failed", "error", err)
		return false
	}
	return true
}

// CompleteAuthorization exchanges an authorization code for a token
// pair, persists it, and arms the refresh chain.
//
// The exchange is followed by one immediate refresh: freshly granted
// access tokens are rejected by certain write endpoints (cover image
// upload), a refreshed one is not. Remote API quirk, not ours.
func (m *Manager) CompleteAuthorization(ctx context.Context, code string) (state.TokenState, error) {
	token, err := m.svc.Exchange(ctx, code)
	if err != nil {
		return state.TokenState{}, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if token.RefreshToken == "" {
		return state.TokenState{}, fmt.Errorf("%w: grant returned no refresh token", shared.ErrAuthFailed)
	}

	m.store.SetTokens(token.AccessToken, token.RefreshToken)
	m.svc.SetAccessToken(token.AccessToken)

	if err := m.refresh(ctx); err != nil {
		m.logger.Warn("post-grant refresh failed, keeping granted token", "error", err)
		m.scheduleRetry()
	}

	return m.store.Tokens(), nil
}

// refresh exchanges the persisted refresh token for a fresh access
// token, persists it, and re-arms the timer at half the token lifetime.
func (m *Manager) refresh(ctx context.Context) error {
	tokens := m.store.Tokens()
	if tokens.RefreshToken == "" {
		return shared.ErrNoRefreshToken
	}

	token, err := m.svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	// Providers may rotate the refresh token on use.
	if token.RefreshToken != "" && token.RefreshToken != tokens.RefreshToken {
		m.store.SetTokens(token.AccessToken, token.RefreshToken)
	} else {
		m.store.SetAccessToken(token.AccessToken)
	}
	m.svc.SetAccessToken(token.AccessToken)

	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()

	m.schedule(refreshInterval(token))
	return nil
}

// fire is the timer callback driving the background refresh chain.
func (m *Manager) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := m.refresh(ctx); err != nil {
		m.logger.Error("token refresh failed", "error", err)
		m.scheduleRetry()
		return
	}
	m.logger.Debug("access token refreshed")
}

// schedule arms the timer to fire after d. A changed interval restarts
// the timer: servers vary token lifetime between calls.
func (m *Manager) schedule(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}

	if m.timer == nil {
		m.timer = time.AfterFunc(d, m.fire)
	} else {
		m.timer.Stop()
		m.timer.Reset(d)
	}
	if m.interval != d {
		m.logger.Debug("refresh timer armed", "interval", d)
		m.interval = d
	}
}

// scheduleRetry backs off exponentially so a revoked grant cannot
// silently end the chain; the next attempt is always armed.
func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	m.failures++
	attempt := m.failures
	backoff := retryBase << (attempt - 1)
	if backoff > retryCap || backoff <= 0 {
		backoff = retryCap
	}
	m.mu.Unlock()

	m.logger.Warn("retrying token refresh", "attempt", attempt, "in", backoff)
	m.schedule(backoff)
}

// Stop halts the refresh chain; no pending fire survives.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// refreshInterval returns half the token's reported lifetime.
func refreshInterval(token *oauth2.Token) time.Duration {
	if token.Expiry.IsZero() {
		return defaultRefreshInterval
	}
	lifetime := time.Until(token.Expiry)
	if lifetime <= 0 {
		return defaultRefreshInterval
	}
	return lifetime / 2
}
