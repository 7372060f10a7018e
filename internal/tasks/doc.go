// Package tasks keeps the local cache consistent with the remote catalog with real-time progress reporting.
//
// # Core Operations
//
// [SyncEngine] runs one pass at a time; a second concurrent call fails with [shared.ErrSyncInProgress].
//
//  1. [SyncEngine.FetchAllPlaylists] : populate or reconcile the playlist index
//     - Empty cache: saves each listing page as soon as it arrives, so progress survives a later failure
//     - Otherwise: runs [SyncEngine.SyncPlaylists]
//
//  2. [SyncEngine.SyncPlaylists] : diff-based reconcile
//     - Fetches the complete listing first and changes nothing if any page fails
//     - Replaces the order list and applies the [Diff] of the index in one transaction
//     - A changed snapshot id clears the cached tracks; ids missing upstream are deleted
//
//  3. [SyncEngine.FetchAllTracks] : page through one playlist's tracks
//     - Each page is enriched with tempo and time signature, joined by track id
//     - Pages appear in the cache mirror as they arrive but are persisted only once all pages succeed
//
//  4. [SyncEngine.FetchTracksForAll] : [SyncEngine.FetchAllTracks] for every playlist not yet loaded
//     - Rate-limit and auth errors stop the pass; other failures are recorded and skipped
//
//  5. [SyncEngine.SavePlaylist] : create a sorted copy of a loaded playlist upstream
//     - Needs a [Publisher], set with [WithPublisher]
//     - Tracks are added 100 per call and local tracks are skipped
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data.
// Updates use select with default to prevent blocking.
//
// # Errors
//
// Failures are appended to a [shared.ErrorLog] so observers can follow them as a pass runs.
package tasks
