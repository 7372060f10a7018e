// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"
)

// newApp builds the root command around r.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "plsync",
		Usage:   "Keep a local cache of your Spotify playlists and tracks",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.Before,
		After:    r.After,
		Commands: r.register(),
	}
}

// setupCommand handles database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles authentication with Spotify
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify in the browser (PKCE)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored token and the account it belongs to",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Remove stored tokens",
				Action: r.AuthLogout,
			},
		},
	}
}

// syncCommand reconciles the playlist index with Spotify.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch or reconcile the playlist index",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tracks",
				Usage: "Also load tracks for every playlist not yet fully loaded",
			},
		},
		Action: r.Sync,
	}
}

// playlistsCommand lists cached playlists.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"ls"},
		Usage:   "List cached playlists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Playlists,
	}
}

// tracksCommand loads and prints playlist tracks.
func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracks",
		Usage: "Load and show the tracks of a playlist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "id",
				Usage: "Playlist ID",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Load tracks for every playlist not yet fully loaded",
			},
			&cli.StringFlag{
				Name:  "dance",
				Usage: "Dance key used to normalize tempo (e.g. WC, CC)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Tracks,
	}
}

// exportCommand writes a playlist to a file.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a playlist's tracks to CSV, Markdown or text",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Playlist ID to export",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv, md or txt",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: {id}_tracks.{format})",
			},
			&cli.StringFlag{
				Name:  "dance",
				Usage: "Dance key used to normalize tempo",
			},
		},
		Action: r.Export,
	}
}

// saveCommand creates a sorted copy of a playlist in the user's library.
func saveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Save a sorted copy of a playlist to Spotify",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Playlist ID to copy",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Track order: bpm, track, artist or none",
				Value: "bpm",
			},
			&cli.StringFlag{
				Name:  "dance",
				Usage: "Dance key used to normalize tempo before sorting",
			},
		},
		Action: r.Save,
	}
}

// cacheCommand inspects or drops the local cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or delete the local cache",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show cache state and counts",
				Action: r.CacheStatus,
			},
			{
				Name:   "delete",
				Usage:  "Delete all cached playlists (tokens are kept)",
				Action: r.CacheDelete,
			},
		},
	}
}

// dancesCommand lists the configured tempo ranges.
func dancesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "dances",
		Usage:  "List configured dance tempo ranges",
		Action: r.Dances,
	}
}
