package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// CacheStatus prints the cache state, schema version and counts.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	openErr := r.open(ctx)
	snap := r.cache.Snapshot()

	r.writePlainHeader("Cache")
	r.writePlain("Database:  %s\n", r.config.Database.Path)
	r.writePlain("State:     %s\n", r.cache.State())
	if r.config.Cache.SnapshotPath != "" {
		r.writePlain("Snapshot:  %s\n", r.config.Cache.SnapshotPath)
	}
	if openErr != nil {
		r.writePlain("%s\n", formatter.Failure(openErr.Error()))
	} else if version, ok, err := shared.CurrentVersion(ctx, r.cache.DB()); err != nil {
		r.logger.Warn("failed to read schema version", "error", err)
	} else {
		if ok {
			r.writePlain("Schema:    v%d\n", version)
		}
		if rows, err := repositories.NewPlaylistRepository(r.cache.DB()).Count(ctx); err == nil {
			r.writePlain("Stored:    %d index rows\n", rows)
		}
	}

	loaded, tracks := 0, 0
	playlists := snap.Playlists()
	for _, p := range playlists {
		if p.FullyLoaded {
			loaded++
		}
		tracks += len(p.Tracks)
	}

	r.writePlain("Playlists: %d (%d fully loaded)\n", len(playlists), loaded)
	r.writePlain("Tracks:    %d\n", tracks)
	return nil
}

// CacheDelete drops every cached playlist. Stored tokens are kept.
func (r *Runner) CacheDelete(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}

	r.logger.Info("cache deleted", "path", r.config.Database.Path)
	return r.writePlain("%s\n", formatter.Success("Cache deleted"))
}
