// Package auth manages the Spotify OAuth token lifecycle for a public PKCE client.
//
// [TokenManager] hands out access tokens, refreshes them when they expire and runs the authorization-code
// exchange for a new login. Stored expiries are set at 90% of the granted lifetime.
//
// Only one refresh runs at a time. Rotating refresh tokens means a second concurrent refresh could leave a
// caller holding a revoked token, so callers that find a refresh in flight wait for it (a bounded number of
// polls) instead of starting their own.
package auth
