package tasks

import (
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchPlaylists Phase = iota
	PopulatePlaylists
	Reconcile
	FetchTracks
	EnrichTracks
	PersistTracks
	LoadCache
	CreatePlaylist
	AddTracks
)

func (p Phase) String() string {
	switch p {
	case FetchPlaylists:
		return "fetch_playlists"
	case PopulatePlaylists:
		return "populate_playlists"
	case Reconcile:
		return "reconcile"
	case FetchTracks:
		return "fetch_tracks"
	case EnrichTracks:
		return "enrich_tracks"
	case PersistTracks:
		return "persist_tracks"
	case LoadCache:
		return "load_cache"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	default:
		return ""
	}
}

func fetchPlaylistsUpdate(page, fetched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    page,
		Message: fmt.Sprintf("Fetching playlists (page %d, %d so far)...", page, fetched),
	}
}

func populateUpdate(page, written int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PopulatePlaylists,
		Step:    page,
		Message: fmt.Sprintf("Saved page %d (%d playlists)", page, written),
	}
}

func reconcileUpdate(result *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase: Reconcile,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("%d added, %d updated, %d removed, %d unchanged",
			result.Added, result.Updated, result.Removed, result.Unchanged),
		Data: result,
	}
}

func loadCacheUpdate(playlists int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadCache,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded %d playlists", playlists),
	}
}

func fetchTracksUpdate(entry *models.PlaylistEntry, page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    len(entry.Tracks),
		Total:   entry.TotalTracks,
		Message: fmt.Sprintf("[%d/%d] %s (page %d)", len(entry.Tracks), entry.TotalTracks, entry.Name, page),
	}
}

func enrichFailedUpdate(entry *models.PlaylistEntry, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnrichTracks,
		Step:    len(entry.Tracks),
		Total:   entry.TotalTracks,
		Message: fmt.Sprintf("tempo lookup failed for %s: %v", entry.Name, err),
	}
}

func persistTracksUpdate(step, total int, entry *models.PlaylistEntry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, entry.Name, len(entry.Tracks)),
		Data:    entry,
	}
}

func trackFetchFailedUpdate(step, total int, entry models.PlaylistEntry, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PersistTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, entry.Name, err),
	}
}

func createPlaylistUpdate(result *SaveResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Created %s", result.Name),
		Data:    result.PlaylistID,
	}
}

func addTracksUpdate(result *SaveResult, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    result.Added,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] tracks added to %s", result.Added, total, result.Name),
	}
}
