// Package services talks to the Spotify Web API.
//
// # Client
//
// [Client] is the only place remote calls are made. Each request:
//   - acquires a bearer token from a [TokenProvider] (normally [auth.TokenManager]); a token failure
//     fails the call before any HTTP traffic
//   - waits on a token bucket ([golang.org/x/time/rate]) so bursts stay under the API's limits
//   - is retried by [retryablehttp] with a flat jittered wait on transport errors and non-2xx statuses
//   - runs inside a [gobreaker] circuit breaker that opens after consecutive network failures
//
// A 429 is never retried: it surfaces at once as [shared.ErrRateLimited] carrying the Retry-After
// delay. A 401 surfaces as [shared.ErrAuth]. Every other failure is [shared.ErrNetwork].
//
// Successful non-JSON responses return an [APIResponse] with IsJSON false and an empty body.
//
// # Catalog
//
// [SpotifyService] maps the playlist listing, playlist tracks, audio features and profile endpoints
// onto typed pages. Pagination is cursor-driven: callers pass back the Next URL of the previous page,
// which the client uses verbatim.
package services
