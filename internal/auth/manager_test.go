package auth

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
	"golang.org/x/oauth2"
)

type mockTokenService struct {
	user    *services.User
	userErr error

	exchangeToken *oauth2.Token
	exchangeErr   error
	refreshToken  *oauth2.Token
	refreshErr    error

	installed     []string
	exchangeCalls int
	refreshCalls  int
}

func (m *mockTokenService) AuthURL(state string) string { return "https://example.com/auth?" + state }

func (m *mockTokenService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	m.exchangeCalls++
	return m.exchangeToken, m.exchangeErr
}

func (m *mockTokenService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.refreshCalls++
	return m.refreshToken, m.refreshErr
}

func (m *mockTokenService) SetAccessToken(token string) {
	m.installed = append(m.installed, token)
}

func (m *mockTokenService) CurrentUser(ctx context.Context) (*services.User, error) {
	return m.user, m.userErr
}

func newTestManager(t *testing.T, svc *mockTokenService) (*Manager, *state.Store) {
	t.Helper()
	store := state.Open(filepath.Join(t.TempDir(), "state.json"), log.New(io.Discard))
	return NewManager(svc, store, log.New(io.Discard)), store
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("Start", func(t *testing.T) {
		t.Run("Without Persisted Tokens", func(t *testing.T) {
			svc := &mockTokenService{}
			m, _ := newTestManager(t, svc)
			defer m.Stop()

			m.Start(ctx)

			if svc.refreshCalls != 0 {
				t.Errorf("expected no refresh without a refresh token, got %d", svc.refreshCalls)
			}
			if m.IsAuthorized() {
				t.Error("expected unauthorized state")
			}
		})

		t.Run("With Persisted Tokens", func(t *testing.T) {
			svc := &mockTokenService{
				refreshToken: &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)},
			}
			m, store := newTestManager(t, svc)
			defer m.Stop()

			store.SetTokens("stale", "refresh1")
			m.Start(ctx)

			if svc.refreshCalls != 1 {
				t.Fatalf("expected immediate refresh, got %d calls", svc.refreshCalls)
			}
			if store.Tokens().AccessToken != "fresh" {
				t.Errorf("expected refreshed access token persisted, got %s", store.Tokens().AccessToken)
			}
			if store.Tokens().RefreshToken != "refresh1" {
				t.Errorf("expected refresh token kept, got %s", store.Tokens().RefreshToken)
			}

			last := svc.installed[len(svc.installed)-1]
			if last != "fresh" {
				t.Errorf("expected fresh token installed on client, got %s", last)
			}
		})

		t.Run("Failed Initial Refresh Arms Retry", func(t *testing.T) {
			svc := &mockTokenService{refreshErr: errors.New("revoked")}
			m, store := newTestManager(t, svc)
			defer m.Stop()

			store.SetTokens("stale", "refresh1")
			m.Start(ctx)

			m.mu.Lock()
			defer m.mu.Unlock()
			if m.failures != 1 {
				t.Errorf("expected 1 recorded failure, got %d", m.failures)
			}
			if m.timer == nil {
				t.Error("expected retry timer armed")
			}
		})
	})

	t.Run("Refresh Token Rotation", func(t *testing.T) {
		svc := &mockTokenService{
			refreshToken: &oauth2.Token{AccessToken: "fresh", RefreshToken: "rotated"},
		}
		m, store := newTestManager(t, svc)
		defer m.Stop()

		store.SetTokens("stale", "refresh1")
		m.Start(ctx)

		if store.Tokens().RefreshToken != "rotated" {
			t.Errorf("expected rotated refresh token persisted, got %s", store.Tokens().RefreshToken)
		}
	})

	t.Run("CompleteAuthorization", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			svc := &mockTokenService{
				exchangeToken: &oauth2.Token{AccessToken: "granted", RefreshToken: "refresh1"},
				refreshToken:  &oauth2.Token{AccessToken: "refreshed", Expiry: time.Now().Add(time.Hour)},
			}
			m, store := newTestManager(t, svc)
			defer m.Stop()

			tokens, err := m.CompleteAuthorization(ctx, "code123")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if svc.exchangeCalls != 1 {
				t.Errorf("expected 1 exchange, got %d", svc.exchangeCalls)
			}
			if svc.refreshCalls != 1 {
				t.Errorf("expected immediate post-grant refresh, got %d", svc.refreshCalls)
			}
			if tokens.AccessToken != "refreshed" {
				t.Errorf("expected refreshed token returned, got %s", tokens.AccessToken)
			}
			if store.Tokens().RefreshToken != "refresh1" {
				t.Errorf("expected refresh token persisted, got %s", store.Tokens().RefreshToken)
			}
			if !m.IsAuthorized() {
				t.Error("expected authorized state after grant")
			}
		})

		t.Run("Exchange Failure", func(t *testing.T) {
			svc := &mockTokenService{exchangeErr: errors.New("bad code")}
			m, _ := newTestManager(t, svc)
			defer m.Stop()

			if _, err := m.CompleteAuthorization(ctx, "bad"); !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("Grant Without Refresh Token", func(t *testing.T) {
			svc := &mockTokenService{exchangeToken: &oauth2.Token{AccessToken: "granted"}}
			m, store := newTestManager(t, svc)
			defer m.Stop()

			if _, err := m.CompleteAuthorization(ctx, "code"); !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if store.Tokens().RefreshToken != "" {
				t.Error("expected nothing persisted for a refresh-less grant")
			}
		})

		t.Run("Post Grant Refresh Failure Keeps Granted Token", func(t *testing.T) {
			svc := &mockTokenService{
				exchangeToken: &oauth2.Token{AccessToken: "granted", RefreshToken: "refresh1"},
				refreshErr:    errors.New("throttled"),
			}
			m, store := newTestManager(t, svc)
			defer m.Stop()

			tokens, err := m.CompleteAuthorization(ctx, "code")
			if err != nil {
				t.Fatalf("expected grant to survive refresh failure, got %v", err)
			}
			if tokens.AccessToken != "granted" {
				t.Errorf("expected granted token kept, got %s", tokens.AccessToken)
			}
			if store.Tokens().RefreshToken != "refresh1" {
				t.Error("expected refresh token persisted")
			}
		})
	})

	t.Run("CheckAuth", func(t *testing.T) {
		t.Run("Probe Succeeds", func(t *testing.T) {
			svc := &mockTokenService{user: &services.User{ID: "u1"}}
			m, _ := newTestManager(t, svc)

			if !m.CheckAuth(ctx) {
				t.Error("expected probe to pass")
			}
		})

		t.Run("Probe Fails", func(t *testing.T) {
			svc := &mockTokenService{userErr: errors.New("401")}
			m, _ := newTestManager(t, svc)

			if m.CheckAuth(ctx) {
				t.Error("expected probe to fail")
			}
		})
	})

	t.Run("Stop Disarms Timer", func(t *testing.T) {
		svc := &mockTokenService{
			refreshToken: &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)},
		}
		m, store := newTestManager(t, svc)

		store.SetTokens("stale", "refresh1")
		m.Start(ctx)
		m.Stop()

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.timer != nil {
			t.Error("expected timer cleared after Stop")
		}
		if !m.stopped {
			t.Error("expected stopped flag set")
		}
	})
}

func TestRefreshInterval(t *testing.T) {
	t.Run("No Expiry", func(t *testing.T) {
		if got := refreshInterval(&oauth2.Token{}); got != defaultRefreshInterval {
			t.Errorf("expected default interval, got %s", got)
		}
	})

	t.Run("Half Lifetime", func(t *testing.T) {
		token := &oauth2.Token{Expiry: time.Now().Add(time.Hour)}
		got := refreshInterval(token)
		if got < 29*time.Minute || got > 30*time.Minute {
			t.Errorf("expected roughly half an hour, got %s", got)
		}
	})

	t.Run("Already Expired", func(t *testing.T) {
		token := &oauth2.Token{Expiry: time.Now().Add(-time.Minute)}
		if got := refreshInterval(token); got != defaultRefreshInterval {
			t.Errorf("expected default interval, got %s", got)
		}
	})
}
