// Package models defines the entities cached by plsync.
//
// The package contains three categories of types:
//
// 1. Cached catalog data
//   - [PlaylistEntry] : Playlist metadata plus its loaded tracks
//   - [TrackEntry] : Track metadata with tempo enrichment
//
// 2. Credentials
//   - [TokenRecord] : OAuth access/refresh pair with an early expiry
//
// 3. Cache observation
//   - [CacheState] : Lifecycle state of the local cache
//   - [Snapshot] : Immutable view of the ordered playlist index
//
// An entry is only marked FullyLoaded when every track page has been fetched. Sync resets it whenever
// the remote snapshot id changes, which is what forces a later track refetch.
package models
