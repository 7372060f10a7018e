// Package repositories implements SQLite persistence for the playlist cache and credentials.
//
// Key Implementations:
//   - [PlaylistRepository] : The ordered id list (playlist_order) and the id-keyed entry map (playlist_index)
//   - [KVRepository] : Token record and transient PKCE values (kv)
//
// Every repository runs against a [DBTX], so the same code serves plain connections and transactions.
// The cache package relies on this to write the order list and the index in one transaction.
package repositories
