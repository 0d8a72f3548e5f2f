package auth

import (
	"encoding/json"
	"time"
)

// Credentials is the persisted token state for a single provider account.
//
// Provider-specific fields (e.g. Tidal's resolved user id and country) live in
// Extra and survive rewrite cycles: unknown keys read from the cache file are
// written back untouched.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64  // Unix seconds; access token is usable while now < ExpiresAt
	Verifier     string // PKCE verifier, present only during an in-flight exchange
	Extra        map[string]any
}

// Valid reports whether the access token can still be used at the given instant.
//
// A token whose ExpiresAt equals now is already expired.
func (c *Credentials) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Unix() < c.ExpiresAt
}

// ExtraString returns a provider-extension field as a string, or "" when absent.
func (c *Credentials) ExtraString(key string) string {
	if c.Extra == nil {
		return ""
	}
	s, _ := c.Extra[key].(string)
	return s
}

// SetExtra stores a provider-extension field on the record.
func (c *Credentials) SetExtra(key string, value any) {
	if c.Extra == nil {
		c.Extra = make(map[string]any)
	}
	c.Extra[key] = value
}

// MarshalJSON serializes the full record, merging extension fields with the
// fixed token keys. Fixed keys win on collision.
func (c *Credentials) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		data[k] = v
	}

	data["access_token"] = nullable(c.AccessToken)
	data["refresh_token"] = nullable(c.RefreshToken)
	data["expires_at"] = c.ExpiresAt
	if c.Verifier != "" {
		data["verifier"] = c.Verifier
	} else {
		delete(data, "verifier")
	}

	return json.Marshal(data)
}

// UnmarshalJSON reads the fixed token keys and keeps everything else in Extra.
func (c *Credentials) UnmarshalJSON(b []byte) error {
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}

	c.AccessToken, _ = data["access_token"].(string)
	c.RefreshToken, _ = data["refresh_token"].(string)
	c.Verifier, _ = data["verifier"].(string)
	if f, ok := data["expires_at"].(float64); ok {
		c.ExpiresAt = int64(f)
	}

	delete(data, "access_token")
	delete(data, "refresh_token")
	delete(data, "expires_at")
	delete(data, "verifier")

	if len(data) > 0 {
		c.Extra = data
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
