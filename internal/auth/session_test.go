package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/syncronus/internal/shared"
)

func testProvider(tokenURL string, pkce, secretExchange, secretRefresh bool) Provider {
	return Provider{
		Name:             "TestService",
		AuthURL:          "https://auth.example.com/authorize",
		TokenURL:         tokenURL,
		UsePKCE:          pkce,
		SecretOnExchange: secretExchange,
		SecretOnRefresh:  secretRefresh,
	}
}

func newTestSession(t *testing.T, provider Provider) *Session {
	t.Helper()

	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	session, err := NewSession(provider, SessionOpts{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8888/callback",
		Scopes:       []string{"playlists.read", "playlists.write"},
		Store:        store,
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	return session
}

func TestSessionAuthURL(t *testing.T) {
	t.Run("Plain Flow", func(t *testing.T) {
		session := newTestSession(t, testProvider("https://token.example.com", false, true, true))

		authURL, err := session.AuthURL("state123")
		if err != nil {
			t.Fatal(err)
		}

		parsed, err := url.Parse(authURL)
		if err != nil {
			t.Fatal(err)
		}

		q := parsed.Query()
		if q.Get("response_type") != "code" {
			t.Errorf("expected response_type=code, got %q", q.Get("response_type"))
		}
		if q.Get("client_id") != "cid" {
			t.Errorf("expected client_id, got %q", q.Get("client_id"))
		}
		if q.Get("scope") != "playlists.read playlists.write" {
			t.Errorf("expected space-joined scope, got %q", q.Get("scope"))
		}
		if q.Get("state") != "state123" {
			t.Errorf("expected state, got %q", q.Get("state"))
		}
		if q.Get("code_challenge") != "" {
			t.Error("plain flow should not carry a code challenge")
		}
	})

	t.Run("PKCE Flow", func(t *testing.T) {
		session := newTestSession(t, testProvider("https://token.example.com", true, false, false))

		authURL, err := session.AuthURL("")
		if err != nil {
			t.Fatal(err)
		}

		parsed, _ := url.Parse(authURL)
		q := parsed.Query()

		if q.Get("code_challenge_method") != "S256" {
			t.Fatalf("expected S256 challenge method, got %q", q.Get("code_challenge_method"))
		}

		// Challenge must derive deterministically from the persisted verifier
		verifier := session.store.Load().Verifier
		if len(verifier) < 43 {
			t.Fatalf("verifier too short: %d chars", len(verifier))
		}

		sum := sha256.Sum256([]byte(verifier))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		if q.Get("code_challenge") != want {
			t.Errorf("challenge mismatch: got %q want %q", q.Get("code_challenge"), want)
		}
	})
}

func TestSessionExchange(t *testing.T) {
	t.Run("Commits Tokens", func(t *testing.T) {
		var gotForm url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotForm = r.PostForm
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, false, true, true))

		if err := session.Exchange(context.Background(), "code123"); err != nil {
			t.Fatalf("exchange failed: %v", err)
		}

		if gotForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type: %q", gotForm.Get("grant_type"))
		}
		if gotForm.Get("code") != "code123" {
			t.Errorf("code: %q", gotForm.Get("code"))
		}
		if gotForm.Get("client_secret") != "secret" {
			t.Errorf("expected client_secret on exchange, got %q", gotForm.Get("client_secret"))
		}

		if session.AccessToken() != "at" {
			t.Errorf("access token not committed: %q", session.AccessToken())
		}
		if !session.Authenticated() {
			t.Error("expected session to be authenticated after exchange")
		}

		// Committed state must also be on disk
		persisted := session.store.Load()
		if persisted.AccessToken != "at" || persisted.RefreshToken != "rt" {
			t.Errorf("tokens not persisted: %+v", persisted)
		}
	})

	t.Run("PKCE Sends Verifier From Store", func(t *testing.T) {
		var gotForm url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotForm = r.PostForm
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
		}))
		defer server.Close()

		provider := testProvider(server.URL, true, false, false)
		session := newTestSession(t, provider)

		if _, err := session.AuthURL(""); err != nil {
			t.Fatal(err)
		}
		verifier := session.store.Load().Verifier

		// Simulate a process restart between authorization and callback
		restarted, err := NewSession(provider, SessionOpts{
			ClientID:    "cid",
			RedirectURI: "http://127.0.0.1:8888/callback",
			Store:       session.store,
		})
		if err != nil {
			t.Fatal(err)
		}

		if err := restarted.Exchange(context.Background(), "code123"); err != nil {
			t.Fatalf("exchange failed: %v", err)
		}

		if gotForm.Get("code_verifier") != verifier {
			t.Errorf("verifier not reloaded from store: got %q want %q", gotForm.Get("code_verifier"), verifier)
		}
		if _, ok := gotForm["client_secret"]; ok {
			t.Error("PKCE exchange must not send client_secret for this provider")
		}
	})

	t.Run("Non 200 Raises AuthError With Body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, false, true, true))

		err := session.Exchange(context.Background(), "already-used")
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected *AuthError, got %T (%v)", err, err)
		}
		if !strings.Contains(authErr.Body, "invalid_grant") {
			t.Errorf("expected response body in error, got %q", authErr.Body)
		}
	})
}

func TestSessionEnsureToken(t *testing.T) {
	t.Run("Valid Token Makes No Network Calls", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Write([]byte(`{"access_token":"B","expires_in":3600}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, false, true, true))
		session.creds = &Credentials{AccessToken: "A", RefreshToken: "R", ExpiresAt: time.Now().Add(-10 * time.Second).Unix()}

		if err := session.EnsureToken(context.Background()); err != nil {
			t.Fatal(err)
		}
		if calls != 1 {
			t.Fatalf("expected one refresh call, got %d", calls)
		}

		// Second call: token is fresh, zero network activity
		if err := session.EnsureToken(context.Background()); err != nil {
			t.Fatal(err)
		}
		if calls != 1 {
			t.Errorf("expected no further calls, got %d", calls)
		}
	})

	t.Run("Expiry Boundary Is Expired", func(t *testing.T) {
		refreshed := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			refreshed = true
			w.Write([]byte(`{"access_token":"B","expires_in":3600}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, false, true, true))
		frozen := time.Now()
		session.now = func() time.Time { return frozen }
		session.creds = &Credentials{AccessToken: "A", RefreshToken: "R", ExpiresAt: frozen.Unix()}

		if err := session.EnsureToken(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !refreshed {
			t.Error("token at exact expiry must trigger a refresh")
		}
	})

	t.Run("Refresh Keeps Prior Refresh Token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Response omits refresh_token; rotation is provider-optional
			w.Write([]byte(`{"access_token":"B","expires_in":3600}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, false, true, true))
		session.creds = &Credentials{AccessToken: "A", RefreshToken: "R", ExpiresAt: time.Now().Unix() - 10}

		if err := session.EnsureToken(context.Background()); err != nil {
			t.Fatal(err)
		}

		if session.AccessToken() != "B" {
			t.Errorf("access token: %q", session.AccessToken())
		}
		if session.creds.RefreshToken != "R" {
			t.Errorf("refresh token must be retained, got %q", session.creds.RefreshToken)
		}

		persisted := session.store.Load()
		if persisted.AccessToken != "B" || persisted.RefreshToken != "R" {
			t.Errorf("persisted record mismatch: %+v", persisted)
		}
	})

	t.Run("Refresh Omits Secret When Descriptor Says So", func(t *testing.T) {
		var gotForm url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotForm = r.PostForm
			w.Write([]byte(`{"access_token":"B","expires_in":3600}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, true, false, false))
		session.creds = &Credentials{RefreshToken: "R"}

		if err := session.EnsureToken(context.Background()); err != nil {
			t.Fatal(err)
		}

		if _, ok := gotForm["client_secret"]; ok {
			t.Error("client_secret key must be absent from refresh body, not merely empty")
		}
		if gotForm.Get("client_id") != "cid" {
			t.Errorf("client_id: %q", gotForm.Get("client_id"))
		}
		if gotForm.Get("refresh_token") != "R" {
			t.Errorf("refresh_token: %q", gotForm.Get("refresh_token"))
		}
	})

	t.Run("No Refresh Token", func(t *testing.T) {
		session := newTestSession(t, testProvider("https://token.example.com", false, true, true))

		err := session.EnsureToken(context.Background())
		if err == nil {
			t.Fatal("expected error with no tokens")
		}

		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected *AuthError, got %T", err)
		}
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("Expiry Margin Applied On Commit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"B","expires_in":3600}`))
		}))
		defer server.Close()

		session := newTestSession(t, testProvider(server.URL, false, true, true))
		frozen := time.Now()
		session.now = func() time.Time { return frozen }
		session.creds = &Credentials{RefreshToken: "R"}

		if err := session.EnsureToken(context.Background()); err != nil {
			t.Fatal(err)
		}

		want := frozen.Add(3600*time.Second - expiryMargin).Unix()
		if session.creds.ExpiresAt != want {
			t.Errorf("expires_at: got %d want %d", session.creds.ExpiresAt, want)
		}
	})
}
