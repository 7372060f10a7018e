// Package server receives the redirect at the end of a Spotify PKCE login.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] is the only middleware in use.
//
// The [BasicRouter] implementation registers method patterns on an [http.ServeMux].
//
// # OAuth Callback Handler
//
// [OAuthHandler] hands the state and code of the callback to a [CompleteFunc], normally
// auth.TokenManager.CompleteLogin, which validates the state against the stored one, consumes the stored
// verifier and exchanges the code. The outcome is sent through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Usage
//
// `plsync auth login` binds a [CallbackServer] on the configured host and port, opens the browser at the
// authorization URL and waits for the result, then shuts the server down.
package server
