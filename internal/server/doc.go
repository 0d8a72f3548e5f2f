// Package server provides HTTP routing, middleware, and the OAuth2 callback
// handler for the interactive authorization flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [CallbackHandler] completes the OAuth2 authorization code flow for a
// provider session. It validates the state parameter (CSRF protection),
// exchanges the authorization code through [auth.Session.Exchange], and sends
// the outcome through a channel. Only one callback is processed; replays get
// a 400.
//
// # Usage
//
// When the user runs an auth command, [WaitForCallback] starts a temporary
// HTTP server on the configured redirect address, opens the browser, handles
// the callback, and shuts down once the exchange completes or times out.
package server
