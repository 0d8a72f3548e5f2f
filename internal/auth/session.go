package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/shared"
	"golang.org/x/oauth2"
)

// expiryMargin is subtracted from the server-reported token lifetime so
// consumers see tokens as expired slightly before the provider does.
const expiryMargin = 60 * time.Second

// AuthError indicates authentication/authorization cannot proceed.
//
// Terminal for the current operation; the caller must restart the interactive
// flow or supply credentials.
type AuthError struct {
	Service string
	Op      string // "exchange" or "refresh"
	Body    string // Provider response body, when one was received
	Err     error
}

func (e *AuthError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s failed: %s", e.Service, e.Op, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// SessionOpts contains configuration for creating a [Session].
type SessionOpts struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Store        *Store
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// Session produces and maintains a usable access token for a single provider.
//
// Not safe for concurrent use; callers needing concurrency must run
// independent sessions, each with its own store path.
type Session struct {
	provider     Provider
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	store        *Store
	creds        *Credentials
	client       *http.Client
	logger       *log.Logger
	now          func() time.Time
}

// NewSession creates a session for the given provider, loading any cached
// credentials from the store.
func NewSession(provider Provider, opts SessionOpts) (*Session, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: %s client_id must be set", shared.ErrMissingCredentials, provider.Name)
	}
	if opts.ClientSecret == "" && (provider.SecretOnExchange || provider.SecretOnRefresh) {
		return nil, fmt.Errorf("%w: %s client_secret must be set", shared.ErrMissingCredentials, provider.Name)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: token store is required", shared.ErrInvalidArgument)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Session{
		provider:     provider,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		redirectURI:  opts.RedirectURI,
		scopes:       opts.Scopes,
		store:        opts.Store,
		creds:        opts.Store.Load(),
		client:       client,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Provider returns the session's capability descriptor.
func (s *Session) Provider() Provider {
	return s.provider
}

// AuthURL builds the provider authorization URL for the user to visit.
//
// When the provider requires PKCE, a fresh verifier is generated and persisted
// to the store before returning so it survives a process restart between
// authorization and callback.
func (s *Session) AuthURL(state string) (string, error) {
	params := url.Values{}
	params.Set("client_id", s.clientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", s.redirectURI)
	params.Set("scope", strings.Join(s.scopes, " "))

	if state != "" {
		params.Set("state", state)
	}

	if s.provider.UsePKCE {
		verifier := oauth2.GenerateVerifier()
		params.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
		params.Set("code_challenge_method", "S256")

		s.creds.Verifier = verifier
		if err := s.store.Save(s.creds); err != nil {
			return "", fmt.Errorf("failed to persist PKCE verifier: %w", err)
		}
	}

	return s.provider.AuthURL + "?" + params.Encode(), nil
}

// Exchange trades an authorization code for tokens and commits them.
//
// A code is single-use; exchanging it twice fails provider-side and surfaces
// as an [*AuthError].
func (s *Session) Exchange(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.redirectURI)
	form.Set("client_id", s.clientID)

	if !s.provider.UsePKCE || s.provider.SecretOnExchange {
		form.Set("client_secret", s.clientSecret)
	}

	if s.provider.UsePKCE {
		if s.creds.Verifier == "" {
			// Authorization may have happened in a previous process
			s.creds.Verifier = s.store.Load().Verifier
		}
		if s.creds.Verifier != "" {
			form.Set("code_verifier", s.creds.Verifier)
		}
	}

	return s.postToken(ctx, "exchange", form)
}

// EnsureToken guarantees a usable access token, refreshing if missing or
// expired. A token at its exact expiry instant counts as expired.
//
// Fails with [*AuthError] wrapping [shared.ErrNoRefreshToken] when the caller
// must redo the interactive flow.
func (s *Session) EnsureToken(ctx context.Context) error {
	if s.creds.Valid(s.now()) {
		return nil
	}

	if s.creds.RefreshToken == "" {
		return &AuthError{Service: s.provider.Name, Op: "refresh", Err: shared.ErrNoRefreshToken}
	}

	s.logger.Debug("refreshing access token", "service", s.provider.Name)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.creds.RefreshToken)
	form.Set("client_id", s.clientID)

	// Some providers reject an unexpected client_secret key outright, so the
	// field is omitted entirely rather than sent empty.
	if s.provider.SecretOnRefresh {
		form.Set("client_secret", s.clientSecret)
	}

	return s.postToken(ctx, "refresh", form)
}

// Authenticated reports whether a refresh token is present. No network call.
func (s *Session) Authenticated() bool {
	return s.creds.RefreshToken != ""
}

// AccessToken returns the current access token. Call [Session.EnsureToken] first.
func (s *Session) AccessToken() string {
	return s.creds.AccessToken
}

// Credentials exposes the in-memory record for provider-extension fields.
func (s *Session) Credentials() *Credentials {
	return s.creds
}

// SaveCredentials persists the in-memory record after extension-field updates.
func (s *Session) SaveCredentials() error {
	return s.store.Save(s.creds)
}

// tokenResponse is the subset of the token endpoint payload the session consumes.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// postToken executes a form-encoded token endpoint call and commits the result.
//
// Auth calls are never retried; every failure mode becomes an [*AuthError].
func (s *Session) postToken(ctx context.Context, op string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Service: s.provider.Name, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return &AuthError{Service: s.provider.Name, Op: op, Err: fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Service: s.provider.Name, Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Service: s.provider.Name, Op: op, Body: string(body), Err: shared.ErrAuthFailed}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return &AuthError{Service: s.provider.Name, Op: op, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}

	s.commit(payload)

	if err := s.store.Save(s.creds); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}

	return nil
}

// commit overwrites the token state from a successful token endpoint response.
//
// The refresh token is retained when the response omits one; rotation is
// provider-optional and the old token stays valid.
func (s *Session) commit(payload tokenResponse) {
	s.creds.AccessToken = payload.AccessToken
	s.creds.ExpiresAt = s.now().Add(time.Duration(payload.ExpiresIn)*time.Second - expiryMargin).Unix()

	if payload.RefreshToken != "" {
		s.creds.RefreshToken = payload.RefreshToken
	}

	// Exchange consumed the verifier
	s.creds.Verifier = ""
}
