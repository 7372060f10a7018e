package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
)

// Cache is the durable playlist cache with its in-memory mirror.
type Cache struct {
	path         string
	snapshotPath string
	logger       *log.Logger

	// writeMu serializes transactions so mirror updates apply in commit order.
	writeMu sync.Mutex

	mu      sync.RWMutex
	db      *sql.DB
	state   models.CacheState
	mirror  models.Snapshot
	subs    map[int]chan models.Snapshot
	nextSub int
}

// Option configures a [Cache].
type Option func(*Cache)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) { c.logger = shared.WithLogger(l, "component", "cache") }
}

// WithSnapshotPath sets the flat snapshot file written on every load. Empty disables it.
func WithSnapshotPath(path string) Option {
	return func(c *Cache) { c.snapshotPath = path }
}

// New returns a closed cache for the SQLite database at path.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		path:   path,
		logger: shared.DiscardLogger(),
		state:  models.StateClosed,
		mirror: emptySnapshot(models.StateClosed),
		subs:   make(map[int]chan models.Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func emptySnapshot(state models.CacheState) models.Snapshot {
	return models.Snapshot{State: state, Order: []string{}, Entries: map[string]models.PlaylistEntry{}}
}

// Open opens the database and applies migrations. It is the only way out of Failed, Deleted or Closed.
func (c *Cache) Open(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.state != models.StateClosed && c.state != models.StateFailed && c.state != models.StateDeleted {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(models.StateInit)
	db := c.db
	c.mu.Unlock()

	if db == nil {
		var err error
		if db, err = shared.NewDatabase(c.path); err != nil {
			c.fail("open", err)
			return &shared.StorageError{Op: "open", Err: err}
		}
	}

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		c.mu.Lock()
		c.db = nil
		c.mu.Unlock()
		c.fail("migrate", err)
		return &shared.StorageError{Op: "migrate", Err: err}
	}

	c.mu.Lock()
	c.db = db
	c.setStateLocked(models.StateOpen)
	c.mu.Unlock()

	c.logger.Debug("opened", "path", c.path)
	return nil
}

// DB returns the underlying connection, or nil before [Cache.Open].
func (c *Cache) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// State returns the current lifecycle state.
func (c *Cache) State() models.CacheState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the current mirror. The returned value must be treated as read-only.
func (c *Cache) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror
}

// Subscribe registers an observer. The channel immediately holds the current snapshot and afterwards
// always the newest one. cancel unregisters and closes the channel.
func (c *Cache) Subscribe() (<-chan models.Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan models.Snapshot, 1)
	ch <- c.mirror
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Update runs fn in one transaction spanning the order list and the index.
//
// The mirror is replaced with the transaction's changes only after a successful commit, and the snapshot
// file is rewritten from it. A storage failure inside fn or at commit moves the cache to Failed. Any other
// error from fn, including a cancelled context, rolls back and is returned as is.
// fn must only use tx for storage access.
func (c *Cache) Update(ctx context.Context, fn func(*Tx) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	db, err := c.writable()
	if err != nil {
		return err
	}

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return c.storageErr("begin", err)
	}

	tx := newTx(sqlTx)
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		if tx.failed {
			c.fail("update", err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return c.storageErr("commit", err)
	}

	c.mu.Lock()
	c.mirror = tx.apply(c.mirror, c.state)
	snap := c.mirror
	c.publishLocked()
	c.mu.Unlock()

	c.saveSnapshotFile(snap)
	return nil
}

// Put upserts one entry in the index. The order list is not touched.
func (c *Cache) Put(ctx context.Context, entry models.PlaylistEntry) error {
	return c.Update(ctx, func(tx *Tx) error {
		return tx.Put(ctx, entry)
	})
}

// WriteFullSnapshot replaces the order list and applies diff in one transaction.
func (c *Cache) WriteFullSnapshot(ctx context.Context, order []string, diff IndexDiff) error {
	return c.Update(ctx, func(tx *Tx) error {
		if err := tx.SetOrder(ctx, order); err != nil {
			return err
		}
		return tx.Apply(ctx, diff)
	})
}

// Get reads one entry from durable storage, bypassing the mirror.
func (c *Cache) Get(ctx context.Context, id string) (*models.PlaylistEntry, error) {
	db, err := c.opened()
	if err != nil {
		return nil, err
	}
	return repositories.NewPlaylistRepository(db).Get(ctx, id)
}

// Load rebuilds the mirror from storage and publishes it.
//
// The first load after [Cache.Open] moves to Loaded; every other load moves to Ready. Ids in the order
// list without an index row are skipped.
func (c *Cache) Load(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	db, err := c.writable()
	if err != nil {
		return err
	}

	var (
		order   []string
		entries map[string]models.PlaylistEntry
	)
	err = repositories.WithTx(ctx, db, func(tx *sql.Tx) error {
		repo := repositories.NewPlaylistRepository(tx)
		var err error
		if order, err = repo.ReadOrder(ctx); err != nil {
			return err
		}
		entries, err = repo.List(ctx)
		return err
	})
	if err != nil {
		return c.storageErr("load", err)
	}

	resolved := make([]string, 0, len(order))
	mirror := make(map[string]models.PlaylistEntry, len(order))
	for _, id := range order {
		entry, ok := entries[id]
		if !ok {
			c.logger.Warn("order references missing playlist", "id", id)
			continue
		}
		resolved = append(resolved, id)
		mirror[id] = entry
	}

	c.mu.Lock()
	next := models.StateReady
	if c.state == models.StateOpen {
		next = models.StateLoaded
	}
	c.state = next
	c.mirror = models.Snapshot{State: next, Order: resolved, Entries: mirror}
	snap := c.mirror
	c.publishLocked()
	c.mu.Unlock()

	c.saveSnapshotFile(snap)

	c.logger.Debug("loaded", "state", next, "playlists", len(resolved))
	return nil
}

// SetMirrorEntry replaces one entry in the mirror only. Nothing is written to storage.
func (c *Cache) SetMirrorEntry(entry models.PlaylistEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := maps.Clone(c.mirror.Entries)
	entries[entry.ID] = entry.Clone()
	c.mirror = models.Snapshot{State: c.state, Order: c.mirror.Order, Entries: entries}
	c.publishLocked()
}

// MarkUpdated records that a sync pass has committed.
func (c *Cache) MarkUpdated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Writable() {
		c.setStateLocked(models.StateUpdated)
	}
}

// Delete drops every cached playlist and the snapshot file. Credentials stored in the same database are kept.
func (c *Cache) Delete(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db != nil {
		err := repositories.WithTx(ctx, db, func(tx *sql.Tx) error {
			return repositories.NewPlaylistRepository(tx).Reset(ctx)
		})
		if err != nil {
			return c.storageErr("delete", err)
		}
	}

	if err := c.removeSnapshotFile(); err != nil {
		c.logger.Warn("failed to remove snapshot file", "path", c.snapshotPath, "error", err)
	}

	c.mu.Lock()
	c.state = models.StateDeleted
	c.mirror = emptySnapshot(models.StateDeleted)
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// Close closes the database and moves to Closed.
func (c *Cache) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	c.setStateLocked(models.StateClosed)
	return err
}

// writable returns the connection when the current state accepts writes.
func (c *Cache) writable() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.state.Writable() || c.db == nil {
		return nil, fmt.Errorf("%w: state %s", shared.ErrCacheUnavailable, c.state)
	}
	return c.db, nil
}

func (c *Cache) opened() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, fmt.Errorf("%w: state %s", shared.ErrCacheUnavailable, c.state)
	}
	return c.db, nil
}

// storageErr moves the cache to Failed and wraps err, unless err only reports that ctx ended.
func (c *Cache) storageErr(op string, err error) error {
	if interrupted(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.fail(op, err)
	return &shared.StorageError{Op: op, Err: err}
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) fail(op string, err error) {
	c.logger.Error("storage failure", "op", op, "error", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(models.StateFailed)
}

// setStateLocked changes state and republishes the mirror with it. c.mu must be held.
func (c *Cache) setStateLocked(s models.CacheState) {
	if c.state == s {
		return
	}
	c.state = s
	c.mirror.State = s
	c.publishLocked()
}

// publishLocked delivers the mirror to every subscriber, replacing any value it has not read yet.
func (c *Cache) publishLocked() {
	for _, ch := range c.subs {
		select {
		case ch <- c.mirror:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.mirror:
		default:
		}
	}
}
