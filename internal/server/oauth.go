package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/plsync/internal/shared"
)

// CompleteFunc finishes a login with the state and code from the callback. It is satisfied by
// [auth.TokenManager.CompleteLogin].
type CompleteFunc func(ctx context.Context, state, code string) error

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	err error
}

// Error returns the failure of the flow, or nil on success.
func (o OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the redirect of a PKCE authorization code flow.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	path        string
	complete    CompleteFunc
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler serving path that passes the callback to complete.
func NewOAuthHandler(path string, complete CompleteFunc) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		path:       path,
		complete:   complete,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// The state is checked and the code exchanged by the [CompleteFunc]; the outcome is sent through the
// result channel. Only the first callback is processed.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if err := h.complete(r.Context(), q.Get("state"), code); err != nil {
		h.Send(OAuthResult{err: err})
		if errors.Is(err, shared.ErrStateMismatch) {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

const successPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>plsync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh; color: #333;">
<h2 style="color: #1DB954;">Logged in to Spotify</h2>
<p>Return to the terminal; plsync has your token.</p>
</body>
</html>
`
