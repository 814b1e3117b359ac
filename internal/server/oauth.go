package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dersimn/spotify-archiver/internal/services"
	"github.com/dersimn/spotify-archiver/internal/shared"
	"github.com/dersimn/spotify-archiver/internal/state"
)

// Authorizer completes an authorization-code grant. Implemented by the
// credential manager.
type Authorizer interface {
	CompleteAuthorization(ctx context.Context, code string) (state.TokenState, error)
}

// OAuthHandler serves the login/callback pair of the authorization-code
// flow. Each /login arms a fresh state token, so re-authorization over
// the process lifetime is allowed; a callback without a pending flow is
// rejected.
type OAuthHandler struct {
	svc        services.OAuthService
	authorizer Authorizer
	logger     *log.Logger

	// OnAuthorized, when set, runs once after each successful grant
	// (used to trigger an immediate archival run).
	OnAuthorized func()

	mu      sync.Mutex
	pending string // armed state token, "" when no flow pending

	results chan error
}

// NewOAuthHandler creates an OAuth handler over the given service and authorizer.
func NewOAuthHandler(svc services.OAuthService, authorizer Authorizer, logger *log.Logger) *OAuthHandler {
	return &OAuthHandler{
		svc:        svc,
		authorizer: authorizer,
		logger:     logger,
		results:    make(chan error, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET /login", "GET /callback"}
}

// Result receives one value per completed callback: nil on success, the
// grant error otherwise. Used by the CLI one-shot login flow.
func (h *OAuthHandler) Result() <-chan error {
	return h.results
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login arms a fresh state token and redirects to the remote
// authorization URL with the required scopes.
func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request) {
	st := shared.GenerateID()

	h.mu.Lock()
	h.pending = st
	h.mu.Unlock()

	http.Redirect(w, r, h.svc.AuthURL(st), http.StatusFound)
}

// callback validates the state parameter, completes the token exchange,
// and triggers the post-authorization hook.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	h.mu.Lock()
	pending := h.pending
	h.pending = ""
	h.mu.Unlock()

	if pending == "" || q.Get("state") != pending {
		h.fail(w, http.StatusBadRequest, "Invalid state parameter", fmt.Errorf("invalid state parameter"))
		return
	}

	if code := q.Get("code"); code != "" {
		if _, err := h.authorizer.CompleteAuthorization(r.Context(), code); err != nil {
			h.fail(w, http.StatusInternalServerError, "Token exchange failed", err)
			return
		}
	} else {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))
		h.fail(w, http.StatusBadRequest, "Authorization failed", err)
		return
	}

	h.logger.Info("authorization completed")
	h.send(nil)

	if h.OnAuthorized != nil {
		h.OnAuthorized()
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// fail logs, reports through the result channel, and writes the HTTP error.
func (h *OAuthHandler) fail(w http.ResponseWriter, status int, msg string, err error) {
	h.logger.Error("authorization callback failed", "error", err)
	h.send(err)
	http.Error(w, msg, status)
}

// send reports a callback outcome without blocking when nobody listens.
func (h *OAuthHandler) send(err error) {
	select {
	case h.results <- err:
	default:
	}
}

const successPage = `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>The first archival run has been triggered. You can close this window.</p>
    </div>
</body>
</html>
`
