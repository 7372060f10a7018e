// Package cache implements the durable local playlist cache.
//
// A [Cache] owns the SQLite database, an in-memory mirror of the ordered playlist index, and its lifecycle state:
//
//	Closed -> Init -> Open -> Loaded (first load)
//	                      \-> Ready  (any later load)
//	Updated after a completed sync, Failed on any storage error, Deleted on explicit delete.
//
// Writes go through transactions ([Cache.Update], [Cache.Put], [Cache.WriteFullSnapshot]). After a commit the
// mirror is replaced by a new immutable [models.Snapshot] and pushed to subscribers, so a reader sees either
// the state before a transaction or the state after it. Subscribers get the latest snapshot only; a slow
// subscriber skips intermediate ones.
//
// Track pages fetched during a sync are shown through [Cache.SetMirrorEntry] without touching storage.
package cache
