package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/auth"
	"github.com/desertthunder/plsync/internal/cache"
	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/desertthunder/plsync/internal/tempo"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and remote dependencies are created on first use by [Runner.open], after the config
// has been resolved from flags.
type Runner struct {
	config      *shared.Config
	configPath  string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error

	errors *shared.ErrorLog
	tempo  *tempo.Table
	cache  *cache.Cache

	opened  bool
	tokens  *auth.TokenManager
	client  *services.Client
	spotify *services.SpotifyService
	engine  *tasks.SyncEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Client.Timeout()}
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	r := &Runner{
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
		errors:      shared.NewErrorLog(),
	}
	r.configure(opts.Config)
	return r
}

// configure replaces the config and everything derived from it. It must run before [Runner.open].
func (r *Runner) configure(config *shared.Config) {
	r.config = config
	r.tempo = tempo.NewTable(config.Tempo)
	r.cache = cache.New(
		config.Database.Path,
		cache.WithLogger(r.logger),
		cache.WithSnapshotPath(config.Cache.SnapshotPath),
	)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, playlistsCommand, tracksCommand, exportCommand, saveCommand,
		cacheCommand, dancesCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before resolves the config file named by --config and applies --verbose.
//
// A missing config file keeps the runner's current config.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath == "" {
		return ctx, nil
	}

	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return ctx, nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.configure(config)
	r.logger.Debug("loaded config", "path", r.configPath)
	return ctx, nil
}

// After releases the database.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// Close closes the cache if it was opened.
func (r *Runner) Close() error {
	if !r.opened {
		return nil
	}
	r.opened = false
	return r.cache.Close()
}

// open seeds the mirror from the snapshot file, opens and loads the cache, then builds the token
// manager, API client and sync engine on top of it.
func (r *Runner) open(ctx context.Context) error {
	if r.opened {
		return nil
	}

	if resumed, err := r.cache.Resume(); err != nil {
		r.logger.Warn("failed to resume from snapshot file", "error", err)
	} else if resumed {
		r.logger.Debug("resumed playlist index from snapshot file", "path", r.config.Cache.SnapshotPath)
	}

	if err := r.cache.Open(ctx); err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	r.opened = true
	shared.ConfigureDatabase(r.cache.DB(), r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := r.cache.Load(ctx); err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}

	store := repositories.NewKVRepository(r.cache.DB())
	tokenOpts := append(auth.OptionsFromConfig(r.config.Auth), auth.WithHTTPClient(r.httpClient), auth.WithLogger(r.logger))
	r.tokens = auth.NewTokenManager(auth.NewOAuthConfig(r.config), store, tokenOpts...)

	r.client = services.NewClient(
		r.config.Client,
		r.tokens,
		services.WithHTTPClient(r.httpClient),
		services.WithClientLogger(r.logger),
	)
	r.spotify = services.NewSpotifyService(r.client, r.config.Sync.PlaylistPageSize, r.config.Sync.TrackPageSize)
	r.engine = tasks.NewSyncEngine(
		r.spotify,
		r.cache,
		tasks.WithLogger(r.logger),
		tasks.WithErrorLog(r.errors),
		tasks.WithStrictEnrichment(r.config.Sync.StrictEnrichment),
		tasks.WithPublisher(r.spotify),
	)
	return nil
}

// watch prints progress updates and newly recorded errors until the returned stop func is called.
func (r *Runner) watch() (chan<- tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 32)
	errs, cancel := r.errors.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case update, ok := <-progress:
				if !ok {
					r.drainErrors(errs)
					return
				}
				r.writePlain("%s\n", formatter.Muted(fmt.Sprintf("[%s] %s", update.Phase, update.Message)))
			case entry, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				r.writePlain("%s\n", formatter.Warn(fmt.Sprintf("%s: %s", entry.Source, entry.Text)))
			}
		}
	}()

	return progress, func() {
		close(progress)
		<-done
		cancel()
	}
}

// drainErrors prints entries already buffered on errs without waiting for more.
func (r *Runner) drainErrors(errs <-chan shared.ErrorEntry) {
	for {
		select {
		case entry, ok := <-errs:
			if !ok {
				return
			}
			r.writePlain("%s\n", formatter.Warn(fmt.Sprintf("%s: %s", entry.Source, entry.Text)))
		default:
			return
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", formatter.Header(title))
	r.writePlain("═══════════════════════════════════════\n")
}
