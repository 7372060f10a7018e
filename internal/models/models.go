// package models defines the data model for the playlist cache
package models

import (
	"slices"
	"time"
)

// Sentinel values substituted for missing remote fields.
const (
	UnknownPlaylist = "Unknown name"
	DeletedTrack    = "Track Deleted"
	UnknownArtist   = "Unknown artist"
	UnknownAlbum    = "Unknown album"
)

// TrackEntry is one track of a cached playlist.
type TrackEntry struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Artist        string  `json:"artist"`
	Album         string  `json:"album"`
	IsPlayable    bool    `json:"is_playable"`
	IsLocal       bool    `json:"is_local"`
	PreviewURL    string  `json:"preview_url,omitempty"`
	BPM           float64 `json:"bpm"`
	TimeSignature int     `json:"time_signature"`
}

// PlaylistEntry is a cached playlist.
//
// TotalTracks is the remote count hint and may differ from len(Tracks).
type PlaylistEntry struct {
	ID          string       `json:"id"`
	SnapshotID  string       `json:"snapshot_id"`
	Name        string       `json:"name"`
	TotalTracks int          `json:"total_tracks"`
	FullyLoaded bool         `json:"fully_loaded"`
	Tracks      []TrackEntry `json:"tracks"`
}

// Clone returns a copy that shares no slice storage with e.
func (e PlaylistEntry) Clone() PlaylistEntry {
	e.Tracks = slices.Clone(e.Tracks)
	return e
}

// Reset clears the track list and the loaded flag, keeping identity and metadata.
func (e PlaylistEntry) Reset() PlaylistEntry {
	e.Tracks = []TrackEntry{}
	e.FullyLoaded = false
	return e
}

// TokenRecord is the persisted OAuth credential.
//
// ExpiresAtMs is set early (90% of the granted lifetime) so a token is never used at its edge.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAtMs  int64  `json:"expires_ms"`
}

// Expired reports whether the access token must be refreshed at now.
func (t TokenRecord) Expired(now time.Time) bool {
	return now.UnixMilli() >= t.ExpiresAtMs
}

// ExpiresAt returns the expiry as a [time.Time].
func (t TokenRecord) ExpiresAt() time.Time {
	return time.UnixMilli(t.ExpiresAtMs)
}

// ExpiryFromLifetime computes the stored expiry for a token issued at issuedAt with a lifetime of secs seconds.
func ExpiryFromLifetime(issuedAt time.Time, secs int64) int64 {
	return issuedAt.UnixMilli() + (secs*9/10)*1000
}

// CacheState is the lifecycle state of the local cache.
type CacheState int

const (
	StateClosed CacheState = iota
	StateInit
	StateOpen
	StateLoaded
	StateReady
	StateUpdated
	StateFailed
	StateDeleted
)

func (s CacheState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateInit:
		return "init"
	case StateOpen:
		return "open"
	case StateLoaded:
		return "loaded"
	case StateReady:
		return "ready"
	case StateUpdated:
		return "updated"
	case StateFailed:
		return "failed"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Writable reports whether mutations are accepted in state s.
func (s CacheState) Writable() bool {
	switch s {
	case StateFailed, StateDeleted, StateClosed, StateInit:
		return false
	default:
		return true
	}
}

// Snapshot is an immutable view of the cache. Callers must not modify its maps or slices.
type Snapshot struct {
	State   CacheState               `json:"-"`
	Order   []string                 `json:"order"`
	Entries map[string]PlaylistEntry `json:"entries"`
}

// Playlists returns the entries in display order. Ids without an entry are skipped.
func (s Snapshot) Playlists() []PlaylistEntry {
	out := make([]PlaylistEntry, 0, len(s.Order))
	for _, id := range s.Order {
		if e, ok := s.Entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Entry returns the entry for id.
func (s Snapshot) Entry(id string) (PlaylistEntry, bool) {
	e, ok := s.Entries[id]
	return e, ok
}

// Empty reports whether no playlists are mirrored.
func (s Snapshot) Empty() bool {
	return len(s.Order) == 0 && len(s.Entries) == 0
}
