// package tasks implements the synchronization passes between the remote catalog and the local cache.
//
// The core abstraction is SyncEngine, which reconciles playlist listings and fetches track pages.
// Operations emit progress updates via channels for non-blocking status reporting to the CLI.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/plsync/internal/cache"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// Catalog is the remote side of a sync. It is implemented by [services.SpotifyService].
type Catalog interface {
	Playlists(ctx context.Context, next string) (*services.PlaylistPage, error)
	PlaylistTracks(ctx context.Context, playlistID, next string) (*services.TrackPage, error)
	AudioFeatures(ctx context.Context, ids []string) (map[string]services.AudioFeature, error)
}

// Store is the local side of a sync. It is implemented by [cache.Cache].
type Store interface {
	Snapshot() models.Snapshot
	Update(ctx context.Context, fn func(*cache.Tx) error) error
	Put(ctx context.Context, entry models.PlaylistEntry) error
	Load(ctx context.Context) error
	MarkUpdated()
	SetMirrorEntry(entry models.PlaylistEntry)
}

// SyncResult summarizes a playlist pass.
type SyncResult struct {
	Pass      string // Pass id, also logged under "pass"
	Populated bool   // True when the empty-cache path ran
	Pages     int    // Listing pages fetched
	Total     int    // Playlists in the listing
	DiffStats
}

// TracksResult summarizes a [SyncEngine.FetchTracksForAll] pass.
type TracksResult struct {
	Pass    string
	Loaded  []string         // Playlists persisted as fully loaded
	Skipped int              // Playlists that were already fully loaded
	Failed  map[string]error // Per-playlist failures that did not stop the pass
}

// SyncEngine runs synchronization passes, one at a time.
type SyncEngine struct {
	catalog   Catalog
	store     Store
	publisher Publisher
	errors    *shared.ErrorLog
	logger    *log.Logger
	strict    bool
	busy      atomic.Bool
}

// Option configures a [SyncEngine].
type Option func(*SyncEngine)

func WithLogger(l *log.Logger) Option {
	return func(e *SyncEngine) { e.logger = l }
}

// WithErrorLog sets the list that pass failures are appended to.
func WithErrorLog(l *shared.ErrorLog) Option {
	return func(e *SyncEngine) { e.errors = l }
}

// WithStrictEnrichment makes a failed tempo lookup fail the track page instead of leaving the page's
// tempo fields at zero.
func WithStrictEnrichment(strict bool) Option {
	return func(e *SyncEngine) { e.strict = strict }
}

// NewSyncEngine creates a new SyncEngine with the provided catalog and store.
func NewSyncEngine(catalog Catalog, store Store, opts ...Option) *SyncEngine {
	e := &SyncEngine{
		catalog: catalog,
		store:   store,
		errors:  shared.NewErrorLog(),
		logger:  shared.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = shared.WithLogger(e.logger, "component", "sync")
	return e
}

// Errors returns the list pass failures are appended to.
func (e *SyncEngine) Errors() *shared.ErrorLog {
	return e.errors
}

// Busy reports whether a pass is running.
func (e *SyncEngine) Busy() bool {
	return e.busy.Load()
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full, skip this update
	}
}

func (e *SyncEngine) begin() (string, *log.Logger, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return "", nil, shared.ErrSyncInProgress
	}
	pass := shared.GenerateID()
	return pass, e.logger.With("pass", pass), nil
}

func (e *SyncEngine) end() {
	e.busy.Store(false)
}

func (e *SyncEngine) record(source string, err error) error {
	e.errors.Append(source, err)
	return err
}

// FetchAllPlaylists populates an empty cache page by page, or reconciles a non-empty one with
// [SyncEngine.SyncPlaylists].
//
// When populating, each page is saved as soon as it arrives; a failed page stops the pass and leaves the
// pages already saved in place.
func (e *SyncEngine) FetchAllPlaylists(ctx context.Context, progress chan<- ProgressUpdate) (*SyncResult, error) {
	pass, logger, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer e.end()

	result := &SyncResult{Pass: pass}
	if !e.store.Snapshot().Empty() {
		return e.syncPlaylists(ctx, logger, result, progress)
	}

	result.Populated = true
	logger.Info("populating empty cache")

	next := ""
	for {
		page, err := e.catalog.Playlists(ctx, next)
		if err != nil {
			logger.Error("playlist page failed", "page", result.Pages+1, "error", err)
			return result, e.record("playlists", err)
		}
		result.Pages++

		entries := e.playlistEntries(logger, page.Items)
		e.sendProgress(progress, fetchPlaylistsUpdate(result.Pages, result.Total+len(entries)))

		err = e.store.Update(ctx, func(tx *cache.Tx) error {
			order, err := tx.Order(ctx)
			if err != nil {
				return err
			}
			seen := make(map[string]struct{}, len(order))
			for _, id := range order {
				seen[id] = struct{}{}
			}
			for _, entry := range entries {
				if err := tx.Put(ctx, entry); err != nil {
					return err
				}
				if _, ok := seen[entry.ID]; !ok {
					seen[entry.ID] = struct{}{}
					order = append(order, entry.ID)
				}
			}
			return tx.SetOrder(ctx, order)
		})
		if err != nil {
			logger.Error("failed to save playlist page", "page", result.Pages, "error", err)
			return result, e.record("cache", err)
		}

		result.Total += len(entries)
		result.Added += len(entries)
		e.sendProgress(progress, populateUpdate(result.Pages, result.Total))

		if next = page.Next; next == "" {
			break
		}
	}

	logger.Info("populated cache", "playlists", result.Total, "pages", result.Pages)
	return result, nil
}

// SyncPlaylists reconciles the cache against the complete remote listing.
//
// Nothing is written unless every listing page succeeds. The order list and the index diff are then
// written in one transaction and the mirror is reloaded.
func (e *SyncEngine) SyncPlaylists(ctx context.Context, progress chan<- ProgressUpdate) (*SyncResult, error) {
	pass, logger, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer e.end()

	return e.syncPlaylists(ctx, logger, &SyncResult{Pass: pass}, progress)
}

func (e *SyncEngine) syncPlaylists(ctx context.Context, logger *log.Logger, result *SyncResult, progress chan<- ProgressUpdate) (*SyncResult, error) {
	var listing []models.PlaylistEntry

	next := ""
	for {
		page, err := e.catalog.Playlists(ctx, next)
		if err != nil {
			logger.Error("listing incomplete, cache left unchanged", "page", result.Pages+1, "error", err)
			return result, e.record("playlists", err)
		}
		result.Pages++
		listing = append(listing, e.playlistEntries(logger, page.Items)...)
		e.sendProgress(progress, fetchPlaylistsUpdate(result.Pages, len(listing)))

		if next = page.Next; next == "" {
			break
		}
	}

	order := listingOrder(listing)
	result.Total = len(order)

	err := e.store.Update(ctx, func(tx *cache.Tx) error {
		if err := tx.SetOrder(ctx, order); err != nil {
			return err
		}
		existing, err := tx.Entries(ctx)
		if err != nil {
			return err
		}
		diff, stats := Diff(existing, listing)
		result.DiffStats = stats
		return tx.Apply(ctx, diff)
	})
	if err != nil {
		logger.Error("failed to write reconciled index", "error", err)
		return result, e.record("cache", err)
	}
	e.sendProgress(progress, reconcileUpdate(result))

	e.store.MarkUpdated()
	if err := e.store.Load(ctx); err != nil {
		return result, e.record("cache", err)
	}
	e.sendProgress(progress, loadCacheUpdate(result.Total))

	logger.Info("synced playlists",
		"added", result.Added, "updated", result.Updated, "removed", result.Removed, "unchanged", result.Unchanged)
	return result, nil
}

// playlistEntries converts a listing page. Items without an id are dropped and a missing name gets a
// placeholder.
func (e *SyncEngine) playlistEntries(logger *log.Logger, items []*services.SpotifyPlaylist) []models.PlaylistEntry {
	entries := make([]models.PlaylistEntry, 0, len(items))
	for i, item := range items {
		if item == nil || item.ID == "" {
			logger.Debug("skipping listing item without id", "index", i)
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			logger.Debug("playlist without name", "id", item.ID)
			name = models.UnknownPlaylist
		}
		entries = append(entries, models.PlaylistEntry{
			ID:          item.ID,
			SnapshotID:  item.SnapshotID,
			Name:        name,
			TotalTracks: item.Tracks.Total,
			Tracks:      []models.TrackEntry{},
		})
	}
	return entries
}

// FetchAllTracks loads every track of one cached playlist.
//
// A playlist that is already fully loaded is returned as is. Otherwise pages are fetched from the start;
// each enriched page is shown in the cache mirror right away, but the entry is only persisted, with
// FullyLoaded set, after the last page succeeds.
func (e *SyncEngine) FetchAllTracks(ctx context.Context, playlistID string, progress chan<- ProgressUpdate) (*models.PlaylistEntry, error) {
	_, logger, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer e.end()

	return e.fetchAllTracks(ctx, logger, playlistID, progress)
}

func (e *SyncEngine) fetchAllTracks(ctx context.Context, logger *log.Logger, playlistID string, progress chan<- ProgressUpdate) (*models.PlaylistEntry, error) {
	cached, ok := e.store.Snapshot().Entry(playlistID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	if cached.FullyLoaded {
		return &cached, nil
	}

	logger = logger.With("playlist", playlistID)
	entry := cached.Reset()

	next := ""
	for pageNum := 1; ; pageNum++ {
		page, err := e.catalog.PlaylistTracks(ctx, playlistID, next)
		if err != nil {
			logger.Error("track page failed, nothing persisted", "page", pageNum, "error", err)
			return nil, e.record("tracks:"+playlistID, err)
		}

		tracks := buildTracks(logger, page.Items)
		if err := e.enrich(ctx, logger, tracks); err != nil {
			e.sendProgress(progress, enrichFailedUpdate(&entry, err))
			if e.strict || shared.IsFatal(err) {
				return nil, err
			}
		}

		entry.Tracks = append(entry.Tracks, tracks...)
		e.store.SetMirrorEntry(entry)
		e.sendProgress(progress, fetchTracksUpdate(&entry, pageNum))

		if next = page.Next; next == "" {
			break
		}
	}

	entry.FullyLoaded = true
	if err := e.store.Put(ctx, entry); err != nil {
		logger.Error("failed to persist tracks", "error", err)
		return nil, e.record("cache", err)
	}

	logger.Debug("tracks loaded", "tracks", len(entry.Tracks))
	return &entry, nil
}

// enrich fills tempo and time signature by track id. Tracks without features keep zero values.
//
// A rate-limit or auth error fails the page even without strict enrichment.
func (e *SyncEngine) enrich(ctx context.Context, logger *log.Logger, tracks []models.TrackEntry) error {
	if len(tracks) == 0 {
		return nil
	}

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}

	features, err := e.catalog.AudioFeatures(ctx, ids)
	if err != nil {
		logger.Warn("audio features unavailable", "tracks", len(ids), "error", err)
		return e.record("audio-features", err)
	}

	for i := range tracks {
		if f, ok := features[tracks[i].ID]; ok {
			tracks[i].BPM = f.Tempo
			tracks[i].TimeSignature = f.TimeSignature
		}
	}
	return nil
}

// buildTracks converts a track page. Items without a track id are dropped; missing fields get placeholders.
func buildTracks(logger *log.Logger, items []*services.SpotifyPlaylistItem) []models.TrackEntry {
	tracks := make([]models.TrackEntry, 0, len(items))
	for i, item := range items {
		if item == nil || item.Track == nil || item.Track.ID == "" {
			logger.Debug("skipping item without track id", "index", i)
			continue
		}
		t := item.Track

		entry := models.TrackEntry{
			ID:         t.ID,
			Name:       t.Name,
			IsPlayable: t.IsPlayable,
			IsLocal:    t.IsLocal,
			PreviewURL: t.PreviewURL,
			Artist:     models.UnknownArtist,
			Album:      models.UnknownAlbum,
		}
		if entry.Name == "" {
			entry.Name = models.DeletedTrack
		}

		if len(t.Artists) > 0 && t.Artists[0].Name != "" {
			entry.Artist = t.Artists[0].Name
		}
		if t.Album != nil && t.Album.Name != "" {
			entry.Album = t.Album.Name
		}

		tracks = append(tracks, entry)
	}
	return tracks
}

// FetchTracksForAll runs [SyncEngine.FetchAllTracks] for every cached playlist not yet fully loaded, in
// display order.
//
// A rate-limit or auth failure stops the pass. Other failures are recorded in the result and the pass
// moves on.
func (e *SyncEngine) FetchTracksForAll(ctx context.Context, progress chan<- ProgressUpdate) (*TracksResult, error) {
	pass, logger, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer e.end()

	result := &TracksResult{Pass: pass, Failed: make(map[string]error)}

	var pending []models.PlaylistEntry
	for _, entry := range e.store.Snapshot().Playlists() {
		if entry.FullyLoaded {
			result.Skipped++
			continue
		}
		pending = append(pending, entry)
	}

	for i, entry := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		loaded, err := e.fetchAllTracks(ctx, logger, entry.ID, progress)
		if err != nil {
			e.sendProgress(progress, trackFetchFailedUpdate(i+1, len(pending), entry, err))
			if shared.IsFatal(err) || ctx.Err() != nil {
				return result, err
			}
			result.Failed[entry.ID] = err
			continue
		}

		result.Loaded = append(result.Loaded, loaded.ID)
		e.sendProgress(progress, persistTracksUpdate(i+1, len(pending), loaded))
	}

	logger.Info("track pass finished", "loaded", len(result.Loaded), "failed", len(result.Failed), "skipped", result.Skipped)
	return result, nil
}
