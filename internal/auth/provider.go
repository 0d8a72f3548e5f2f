package auth

// Provider is a static capability descriptor for one OAuth2 provider.
//
// Constructed once at session creation and never mutated.
type Provider struct {
	Name     string // Service name for logs and error messages (e.g. "Spotify")
	AuthURL  string // Authorization endpoint
	TokenURL string // Token endpoint

	UsePKCE          bool // Attach code_challenge/code_verifier (S256)
	SecretOnExchange bool // Send client_secret with grant_type=authorization_code
	SecretOnRefresh  bool // Send client_secret with grant_type=refresh_token
}
