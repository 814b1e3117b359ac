package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/state"
	"golang.org/x/oauth2"
)

type stubOAuthService struct{}

func (s *stubOAuthService) AuthURL(st string) string {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(st)
}

func (s *stubOAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, errors.New("not used")
}

func (s *stubOAuthService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return nil, errors.New("not used")
}

func (s *stubOAuthService) SetAccessToken(token string) {}

type stubAuthorizer struct {
	err   error
	codes []string
}

func (a *stubAuthorizer) CompleteAuthorization(ctx context.Context, code string) (state.TokenState, error) {
	a.codes = append(a.codes, code)
	if a.err != nil {
		return state.TokenState{}, a.err
	}
	return state.TokenState{AccessToken: "at", RefreshToken: "rt"}, nil
}

func newTestHandler(authorizer *stubAuthorizer) *OAuthHandler {
	return NewOAuthHandler(&stubOAuthService{}, authorizer, log.New(io.Discard))
}

// doLogin performs the login redirect and extracts the armed state token.
func doLogin(t *testing.T, h *OAuthHandler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect, got %d", rec.Code)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}

	st := location.Query().Get("state")
	if st == "" {
		t.Fatal("expected state parameter in redirect")
	}
	return st
}

func TestOAuthHandler(t *testing.T) {
	t.Run("Routes", func(t *testing.T) {
		h := newTestHandler(&stubAuthorizer{})
		routes := h.Routes()
		if len(routes) != 2 {
			t.Fatalf("expected 2 routes, got %d", len(routes))
		}
	})

	t.Run("Login Redirects To Provider", func(t *testing.T) {
		h := newTestHandler(&stubAuthorizer{})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Location"), "accounts.example.com") {
			t.Errorf("expected provider redirect, got %s", rec.Header().Get("Location"))
		}
	})

	t.Run("Callback", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			authorizer := &stubAuthorizer{}
			h := newTestHandler(authorizer)

			authorized := false
			h.OnAuthorized = func() { authorized = true }

			st := doLogin(t, h)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+st+"&code=code123", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if len(authorizer.codes) != 1 || authorizer.codes[0] != "code123" {
				t.Errorf("expected authorization with code123, got %v", authorizer.codes)
			}
			if !authorized {
				t.Error("expected OnAuthorized hook to run")
			}

			select {
			case err := <-h.Result():
				if err != nil {
					t.Errorf("expected nil result, got %v", err)
				}
			default:
				t.Error("expected result on channel")
			}
		})

		t.Run("Invalid State", func(t *testing.T) {
			h := newTestHandler(&stubAuthorizer{})
			doLogin(t, h)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=wrong&code=code123", nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})

		t.Run("Without Pending Flow", func(t *testing.T) {
			h := newTestHandler(&stubAuthorizer{})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=anything&code=code123", nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})

		t.Run("State Is Single Use", func(t *testing.T) {
			h := newTestHandler(&stubAuthorizer{})
			st := doLogin(t, h)

			first := httptest.NewRecorder()
			h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?state="+st+"&code=c1", nil))
			if first.Code != http.StatusOK {
				t.Fatalf("expected first callback to pass, got %d", first.Code)
			}

			second := httptest.NewRecorder()
			h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/callback?state="+st+"&code=c2", nil))
			if second.Code != http.StatusBadRequest {
				t.Errorf("expected replayed state rejected, got %d", second.Code)
			}
		})

		t.Run("Provider Error", func(t *testing.T) {
			h := newTestHandler(&stubAuthorizer{})
			st := doLogin(t, h)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+st+"&error=access_denied", nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}

			select {
			case err := <-h.Result():
				if err == nil {
					t.Error("expected error result")
				}
			default:
				t.Error("expected result on channel")
			}
		})

		t.Run("Exchange Failure", func(t *testing.T) {
			h := newTestHandler(&stubAuthorizer{err: errors.New("exchange failed")})
			st := doLogin(t, h)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+st+"&code=code123", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("expected 500, got %d", rec.Code)
			}
		})
	})

	t.Run("Relogin After Success", func(t *testing.T) {
		h := newTestHandler(&stubAuthorizer{})

		st := doLogin(t, h)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state="+st+"&code=c1", nil))
		<-h.Result()

		st2 := doLogin(t, h)
		rec2 := httptest.NewRecorder()
		h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/callback?state="+st2+"&code=c2", nil))

		if rec2.Code != http.StatusOK {
			t.Errorf("expected reauthorization to pass, got %d", rec2.Code)
		}
	})
}
