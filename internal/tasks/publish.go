package tasks

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// Publisher writes playlists to the remote side. It is implemented by [services.SpotifyService].
type Publisher interface {
	CurrentUser(ctx context.Context) (*services.SpotifyUser, error)
	CreatePlaylist(ctx context.Context, userID string, playlist services.NewPlaylist) (*services.SpotifyPlaylist, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) (int, error)
}

// WithPublisher enables [SyncEngine.SavePlaylist].
func WithPublisher(p Publisher) Option {
	return func(e *SyncEngine) { e.publisher = p }
}

// SortKey orders the tracks of a saved playlist.
type SortKey string

const (
	SortNone   SortKey = "none"
	SortBPM    SortKey = "bpm"
	SortTrack  SortKey = "track"
	SortArtist SortKey = "artist"
)

// ParseSortKey accepts a sort key name. An empty string keeps the playlist order.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortBPM, SortTrack, SortArtist, SortNone:
		return k, nil
	case "":
		return SortNone, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q (bpm, track, artist, none)", shared.ErrInvalidArgument, s)
	}
}

// Label is the key as it appears in a saved playlist's name.
func (k SortKey) Label() string {
	switch k {
	case SortBPM:
		return "BPM"
	case SortTrack:
		return "Track"
	case SortArtist:
		return "Artist"
	default:
		return "None"
	}
}

// SortTracks returns a sorted copy of tracks. Ties keep their playlist order and tracks without a
// tempo sort after the rest under [SortBPM].
func SortTracks(tracks []models.TrackEntry, key SortKey) []models.TrackEntry {
	sorted := slices.Clone(tracks)

	switch key {
	case SortBPM:
		slices.SortStableFunc(sorted, func(a, b models.TrackEntry) int {
			switch {
			case a.BPM <= 0 && b.BPM <= 0:
				return 0
			case a.BPM <= 0:
				return 1
			case b.BPM <= 0:
				return -1
			}
			return cmp.Compare(a.BPM, b.BPM)
		})
	case SortTrack:
		slices.SortStableFunc(sorted, func(a, b models.TrackEntry) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	case SortArtist:
		slices.SortStableFunc(sorted, func(a, b models.TrackEntry) int {
			return cmp.Compare(strings.ToLower(a.Artist), strings.ToLower(b.Artist))
		})
	}
	return sorted
}

// SavedName is the name given to a playlist saved from name under key.
func SavedName(name string, key SortKey) string {
	return fmt.Sprintf("%s - Sorted by %s", name, key.Label())
}

// SaveResult summarizes a [SyncEngine.SavePlaylist] call.
type SaveResult struct {
	Pass       string
	PlaylistID string // Id of the created playlist, empty when creation failed
	Name       string
	Added      int // Tracks added before any failure
	Skipped    int // Local tracks, which cannot be added by id
}

// SavePlaylist creates a private playlist owned by the current user holding entry's tracks sorted by
// key. Local tracks are skipped.
//
// The cache is not changed. A failure after creation leaves the new playlist with the tracks added so far
// and the result reports its id.
func (e *SyncEngine) SavePlaylist(ctx context.Context, entry models.PlaylistEntry, key SortKey, progress chan<- ProgressUpdate) (*SaveResult, error) {
	if e.publisher == nil {
		return nil, fmt.Errorf("%w: saving playlists", shared.ErrNotImplemented)
	}

	pass, logger, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer e.end()
	logger = logger.With("source", entry.ID, "sort", string(key))

	result := &SaveResult{Pass: pass, Name: SavedName(entry.Name, key)}

	ids := make([]string, 0, len(entry.Tracks))
	for _, t := range SortTracks(entry.Tracks, key) {
		if t.IsLocal || t.ID == "" {
			result.Skipped++
			continue
		}
		ids = append(ids, t.ID)
	}

	user, err := e.publisher.CurrentUser(ctx)
	if err != nil {
		logger.Error("failed to resolve current user", "error", err)
		return result, e.record("save:"+entry.ID, err)
	}

	created, err := e.publisher.CreatePlaylist(ctx, user.ID, services.NewPlaylist{
		Name:        result.Name,
		Description: "Sorted playlist from " + entry.Name,
	})
	if err != nil {
		logger.Error("failed to create playlist", "error", err)
		return result, e.record("save:"+entry.ID, err)
	}
	result.PlaylistID = created.ID
	e.sendProgress(progress, createPlaylistUpdate(result))

	result.Added, err = e.publisher.AddTracks(ctx, created.ID, ids)
	e.sendProgress(progress, addTracksUpdate(result, len(ids)))
	if err != nil {
		logger.Error("failed to add tracks", "playlist", created.ID, "added", result.Added, "error", err)
		return result, e.record("save:"+entry.ID, err)
	}

	logger.Info("saved playlist", "playlist", created.ID, "tracks", result.Added, "skipped", result.Skipped)
	return result, nil
}
