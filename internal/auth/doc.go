// Package auth implements the OAuth2 authorization-code flow shared by all music services.
//
// # Provider Variance
//
// Services differ in small, data-like ways: whether PKCE is required, and whether the
// client secret is sent on code exchange and on token refresh. A [Provider] descriptor
// captures those differences so a single [Session] implementation serves every service
// (Spotify sends the secret everywhere; Tidal uses PKCE and never sends it).
//
// # Token Lifecycle
//
// [Session] owns the access/refresh token state machine:
//
//	Unauthenticated -> AuthURL -> Exchange -> Authenticated -> EnsureToken (refresh) -> Authenticated
//
// Tokens are committed to a [Store] backed by a JSON file on every mutation, with a
// 60-second safety margin subtracted from the server-reported lifetime so tokens read
// as expired slightly before the provider rejects them. A refresh response that omits
// a new refresh token keeps the previous one; rotation is provider-optional.
//
// Auth calls are never retried: a rejected code is not recoverable, and retry policy
// for data calls belongs to services.Fetcher.
//
// # Errors
//
// All exchange/refresh failures, including transport errors, surface as [*AuthError]
// so callers can prompt the user to re-authorize.
package auth
