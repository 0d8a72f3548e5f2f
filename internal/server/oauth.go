package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/auth"
	"github.com/desertthunder/syncronus/internal/shared"
)

// CallbackResult is the outcome of one authorization callback.
type CallbackResult struct {
	err error
}

func (r CallbackResult) Error() error {
	return r.err
}

// CallbackHandler handles the OAuth2 authorization-code callback for a
// provider session. Implements [Handler] for registration with a [Router].
type CallbackHandler struct {
	session     *auth.Session
	state       string
	resultChan  chan CallbackResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewCallbackHandler creates a callback handler completing the given session.
// The state token should be cryptographically random for CSRF protection.
func NewCallbackHandler(session *auth.Session, state string) *CallbackHandler {
	return &CallbackHandler{
		session:    session,
		state:      state,
		resultChan: make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, exchanges the authorization code through the
// session, and sends the result through the result channel.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only handle callback once
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	state := r.URL.Query().Get("state")
	if state != h.state {
		err := fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)
		h.send(CallbackResult{err: err})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		errDesc := r.URL.Query().Get("error_description")
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, errParam, errDesc)
		h.send(CallbackResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if err := h.session.Exchange(r.Context(), code); err != nil {
		h.send(CallbackResult{err: err})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(CallbackResult{})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `
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
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`)
}

// send delivers the callback result exactly once.
func (h *CallbackHandler) send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving flow completion.
//
// The channel receives exactly one result and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}

// WaitForCallback serves the handler on addr until the callback arrives, the
// timeout elapses, or ctx is cancelled. The server is always shut down before
// returning.
func WaitForCallback(ctx context.Context, addr string, handler *CallbackHandler, timeout time.Duration, logger *log.Logger) error {
	router := NewBasicRouter()
	if logger != nil {
		router.Use(LoggingMiddleware(logger))
	}
	router.Handler(handler)

	srv := &http.Server{Addr: addr, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	select {
	case result := <-handler.Result():
		return result.Error()
	case err := <-errChan:
		return fmt.Errorf("callback server failed: %w", err)
	case <-time.After(timeout):
		return fmt.Errorf("%w: no callback received within %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
