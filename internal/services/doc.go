// Package services defines the [Service] interface for music streaming providers and implements it for Spotify and Tidal.
//
// # Service Interface
//
// All music providers implement a common abstraction, enabling playlist operations to work uniformly across providers.
//
// # Resilient Fetching
//
// [Fetcher] wraps authenticated GET/POST with uniform rate-limit handling: 429 responses
// are retried with header-driven or exponential backoff (reads retry more aggressively
// than writes), any other >= 400 status fails immediately, and transport errors are
// never retried. [FetchAll] drives cursor-based pagination over multi-page collections
// with hard item caps, soft page caps, and per-item skip semantics.
//
// Every request re-checks token validity through the provider's [auth.Session], so a
// long-running fetch loop survives a token expiring mid-loop.
//
// # Provider Implementations
//
// [SpotifyService] uses the plain authorization-code flow (client secret on both
// exchange and refresh) and Spotify's offset pagination with absolute next URLs.
//
// [TidalService] uses PKCE (no client secret on exchange or refresh) against Tidal's
// JSON:API shape, resolving root-relative next cursors against the API base. The
// resolved user id and country ride along in the token cache as extension fields.
//
// # Error Handling
//
// Typed errors keep failure modes distinguishable:
//   - [*auth.AuthError] : re-authorization required
//   - [*RateLimitError] : retries exhausted while the provider kept responding 429
//   - [*UpstreamError] : any other >= 400 status, never retried
//   - [shared.ErrEmptyCollection] : first page of a paginated resource had zero items
//   - [shared.ErrNotInRegion] : track unavailable in the user's region, skipped not fatal
//
// Track matching across services uses ISRC exclusively.
package services
