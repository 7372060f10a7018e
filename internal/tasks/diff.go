package tasks

import (
	"maps"
	"slices"

	"github.com/desertthunder/plsync/internal/cache"
	"github.com/desertthunder/plsync/internal/models"
)

// DiffStats counts the outcome of a [Diff] per entry.
type DiffStats struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int
}

// Diff reconciles cached entries against a complete remote listing.
//
// A listed id with a different snapshot id replaces the cached metadata and drops its tracks. A cached id
// missing from the listing is deleted. A listed id not yet cached is inserted with no tracks. Entries with
// the same snapshot id are left alone, so their tracks and loaded flag survive.
func Diff(existing map[string]models.PlaylistEntry, listing []models.PlaylistEntry) (cache.IndexDiff, DiffStats) {
	var (
		diff  cache.IndexDiff
		stats DiffStats
	)

	remaining := make(map[string]models.PlaylistEntry, len(listing))
	for _, e := range listing {
		if _, dup := remaining[e.ID]; !dup {
			remaining[e.ID] = e
		}
	}

	for _, id := range slices.Sorted(maps.Keys(existing)) {
		cached := existing[id]
		remote, ok := remaining[id]
		if !ok {
			diff.Deletes = append(diff.Deletes, id)
			stats.Removed++
			continue
		}
		delete(remaining, id)

		if remote.SnapshotID == cached.SnapshotID {
			stats.Unchanged++
			continue
		}
		cached.SnapshotID = remote.SnapshotID
		cached.Name = remote.Name
		cached.TotalTracks = remote.TotalTracks
		diff.Upserts = append(diff.Upserts, cached.Reset())
		stats.Updated++
	}

	for _, e := range listing {
		if _, ok := remaining[e.ID]; !ok {
			continue
		}
		delete(remaining, e.ID)
		diff.Upserts = append(diff.Upserts, e.Reset())
		stats.Added++
	}

	return diff, stats
}

// listingOrder returns the listing's ids in remote order without duplicates.
func listingOrder(listing []models.PlaylistEntry) []string {
	seen := make(map[string]struct{}, len(listing))
	order := make([]string, 0, len(listing))
	for _, e := range listing {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		order = append(order, e.ID)
	}
	return order
}
