package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync populates or reconciles the playlist index, and optionally loads pending tracks.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	progress, stop := r.watch()
	result, err := r.engine.FetchAllPlaylists(ctx, progress)
	if err != nil {
		stop()
		return fmt.Errorf("playlist sync failed: %w", err)
	}

	if !cmd.Bool("tracks") {
		stop()
		return r.printSyncResult(result)
	}

	tracks, err := r.engine.FetchTracksForAll(ctx, progress)
	stop()
	if err != nil && tracks == nil {
		return fmt.Errorf("track sync failed: %w", err)
	}

	r.printSyncResult(result)
	r.printTracksResult(tracks)
	if err != nil {
		return fmt.Errorf("track sync stopped: %w", err)
	}
	return nil
}

func (r *Runner) printSyncResult(result *tasks.SyncResult) error {
	if result.Populated {
		return r.writePlain("%s\n", formatter.Success(fmt.Sprintf("Cached %d playlists (%d pages)", result.Total, result.Pages)))
	}
	return r.writePlain("%s\n", formatter.Success(fmt.Sprintf(
		"Reconciled %d playlists: %d added, %d updated, %d removed, %d unchanged",
		result.Total, result.Added, result.Updated, result.Removed, result.Unchanged,
	)))
}

func (r *Runner) printTracksResult(result *tasks.TracksResult) {
	r.writePlain("%s\n", formatter.Success(fmt.Sprintf(
		"Loaded tracks for %d playlists, %d already loaded", len(result.Loaded), result.Skipped,
	)))
	for _, id := range slices.Sorted(maps.Keys(result.Failed)) {
		r.writePlain("%s\n", formatter.Failure(fmt.Sprintf("  %s: %v", id, result.Failed[id])))
	}
}

// Playlists prints the cached playlist index.
//
// When the database cannot be opened, an index resumed from the snapshot file is still shown.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		if r.cache.Snapshot().Empty() {
			return err
		}
		r.logger.Warn("showing playlists from snapshot file", "error", err)
	}

	playlists := r.cache.Snapshot().Playlists()

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	if len(playlists) == 0 {
		return r.writePlain("%s\n", formatter.Warn("No playlists cached. Run 'plsync sync'."))
	}

	r.writePlainHeader(fmt.Sprintf("Playlists (%d)", len(playlists)))
	for i, p := range playlists {
		status := formatter.Muted(fmt.Sprintf("%d tracks", p.TotalTracks))
		if p.FullyLoaded {
			status = formatter.Success(fmt.Sprintf("%d tracks loaded", len(p.Tracks)))
		}
		r.writePlain("%3d. %s  %s\n", i+1, p.Name, status)
		r.writePlain("     %s\n", formatter.Muted(p.ID))
	}
	return nil
}

// Tracks loads the tracks of one playlist and prints them, or with --all loads every pending playlist.
func (r *Runner) Tracks(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	all := cmd.Bool("all")
	dance := cmd.String("dance")

	if id == "" && !all {
		return fmt.Errorf("%w: --id or --all", shared.ErrMissingArgument)
	}
	if err := r.checkDance(dance); err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if all {
		progress, stop := r.watch()
		result, err := r.engine.FetchTracksForAll(ctx, progress)
		stop()
		if result != nil {
			r.printTracksResult(result)
		}
		if err != nil {
			return fmt.Errorf("track sync stopped: %w", err)
		}
		if id == "" {
			return nil
		}
	}

	entry, err := r.loadTracks(ctx, id, cmd.Bool("json"))
	if err != nil {
		return err
	}
	normalized := r.withDance(*entry, dance)

	if cmd.Bool("json") {
		return r.writeJSON(normalized, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s (%d tracks)", normalized.Name, len(normalized.Tracks)))
	for i, t := range normalized.Tracks {
		line := fmt.Sprintf("%3d. %s - %s  %s bpm  %s", i+1, t.Artist, t.Name, formatter.FormatBPM(t.BPM),
			formatter.FormatMeter(t.TimeSignature))
		if !t.IsPlayable {
			line = formatter.Muted(line + " (unavailable)")
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// Export writes a playlist's tracks to a file.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	dance := cmd.String("dance")
	if err := r.checkDance(dance); err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	entry, err := r.loadTracks(ctx, cmd.String("id"), false)
	if err != nil {
		return err
	}
	normalized := r.withDance(*entry, dance)

	path, err := formatter.WriteExport(&normalized, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("exported playlist", "id", normalized.ID, "format", format, "path", path)
	return r.writePlain("%s\n", formatter.Success(fmt.Sprintf("Exported %d tracks to %s", len(normalized.Tracks), path)))
}

// Save creates a private playlist holding a loaded playlist's tracks in the requested order.
func (r *Runner) Save(ctx context.Context, cmd *cli.Command) error {
	key, err := tasks.ParseSortKey(cmd.String("sort"))
	if err != nil {
		return err
	}
	dance := cmd.String("dance")
	if err := r.checkDance(dance); err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	entry, err := r.loadTracks(ctx, cmd.String("id"), false)
	if err != nil {
		return err
	}
	normalized := r.withDance(*entry, dance)

	progress, stop := r.watch()
	result, err := r.engine.SavePlaylist(ctx, normalized, key, progress)
	stop()
	if err != nil {
		if result != nil && result.PlaylistID != "" {
			r.writePlain("%s\n", formatter.Warn(fmt.Sprintf("%s was created with %d tracks", result.Name, result.Added)))
		}
		return fmt.Errorf("failed to save playlist: %w", err)
	}

	r.logger.Info("saved playlist", "source", normalized.ID, "id", result.PlaylistID, "sort", key)
	msg := fmt.Sprintf("Saved %s (%d tracks)", result.Name, result.Added)
	if result.Skipped > 0 {
		msg += fmt.Sprintf(", %d local tracks skipped", result.Skipped)
	}
	return r.writePlain("%s\n", formatter.Success(msg))
}

// Dances lists the configured tempo ranges.
func (r *Runner) Dances(ctx context.Context, cmd *cli.Command) error {
	ranges := r.tempo.Ranges()
	if len(ranges) == 0 {
		return r.writePlain("%s\n", formatter.Warn("No tempo ranges configured."))
	}

	r.writePlainHeader("Dance tempo ranges")
	for _, rg := range ranges {
		r.writePlain("%-4s %-10s %3.0f-%3.0f bpm\n", rg.Key, rg.Dance, rg.Low, rg.High)
	}
	return nil
}

// loadTracks returns the fully loaded entry for id, fetching pages when needed. Progress is printed
// unless quiet is set.
func (r *Runner) loadTracks(ctx context.Context, id string, quiet bool) (*models.PlaylistEntry, error) {
	var (
		entry *models.PlaylistEntry
		err   error
	)
	if quiet {
		entry, err = r.engine.FetchAllTracks(ctx, id, nil)
	} else {
		progress, stop := r.watch()
		entry, err = r.engine.FetchAllTracks(ctx, id, progress)
		stop()
	}

	if errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, fmt.Errorf("%w (run 'plsync sync' first)", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks: %w", err)
	}
	return entry, nil
}

func (r *Runner) checkDance(key string) error {
	if key == "" {
		return nil
	}
	if _, ok := r.tempo.Lookup(key); !ok {
		keys := make([]string, 0)
		for _, rg := range r.tempo.Ranges() {
			keys = append(keys, rg.Key)
		}
		return fmt.Errorf("%w: unknown dance %q (one of %s)", shared.ErrInvalidArgument, key, strings.Join(keys, ", "))
	}
	return nil
}

// withDance returns a copy of entry with every bpm normalized for the dance key.
func (r *Runner) withDance(entry models.PlaylistEntry, key string) models.PlaylistEntry {
	if key == "" {
		return entry
	}
	entry = entry.Clone()
	for i := range entry.Tracks {
		entry.Tracks[i].BPM = r.tempo.Normalize(entry.Tracks[i].BPM, key)
	}
	return entry
}
