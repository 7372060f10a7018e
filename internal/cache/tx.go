package cache

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
)

// IndexDiff is the set of index changes produced by reconciling a remote listing.
type IndexDiff struct {
	Upserts []models.PlaylistEntry
	Deletes []string
}

// Empty reports whether the diff changes nothing.
func (d IndexDiff) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Deletes) == 0
}

// Tx is a transactional view over the order list and the index.
//
// It records what it writes so the mirror can be updated after commit without a reload.
type Tx struct {
	repo   *repositories.PlaylistRepository
	failed bool

	order    []string
	orderSet bool
	puts     map[string]models.PlaylistEntry
	deletes  map[string]struct{}
}

func newTx(tx *sql.Tx) *Tx {
	return &Tx{
		repo:    repositories.NewPlaylistRepository(tx),
		puts:    make(map[string]models.PlaylistEntry),
		deletes: make(map[string]struct{}),
	}
}

func (t *Tx) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if interrupted(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	t.failed = true
	return &shared.StorageError{Op: op, Err: err}
}

// Order reads the order list as seen by this transaction.
func (t *Tx) Order(ctx context.Context) ([]string, error) {
	if t.orderSet {
		return slices.Clone(t.order), nil
	}
	order, err := t.repo.ReadOrder(ctx)
	return order, t.wrap("read order", err)
}

// SetOrder replaces the order list.
func (t *Tx) SetOrder(ctx context.Context, ids []string) error {
	if err := t.repo.WriteOrder(ctx, ids); err != nil {
		return t.wrap("write order", err)
	}
	t.order = slices.Clone(ids)
	if t.order == nil {
		t.order = []string{}
	}
	t.orderSet = true
	return nil
}

// Entries reads every index row within the transaction, keyed by id.
func (t *Tx) Entries(ctx context.Context) (map[string]models.PlaylistEntry, error) {
	entries, err := t.repo.List(ctx)
	return entries, t.wrap("read index", err)
}

// Put upserts one entry.
func (t *Tx) Put(ctx context.Context, entry models.PlaylistEntry) error {
	if entry.Tracks == nil {
		entry.Tracks = []models.TrackEntry{}
	}
	if err := t.repo.Put(ctx, entry); err != nil {
		return t.wrap("put", err)
	}
	t.puts[entry.ID] = entry.Clone()
	delete(t.deletes, entry.ID)
	return nil
}

// Delete removes one entry from the index.
func (t *Tx) Delete(ctx context.Context, id string) error {
	if err := t.repo.Delete(ctx, id); err != nil {
		return t.wrap("delete", err)
	}
	delete(t.puts, id)
	t.deletes[id] = struct{}{}
	return nil
}

// Apply writes every upsert and delete of diff.
func (t *Tx) Apply(ctx context.Context, diff IndexDiff) error {
	for _, entry := range diff.Upserts {
		if err := t.Put(ctx, entry); err != nil {
			return err
		}
	}
	for _, id := range diff.Deletes {
		if err := t.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// apply returns a new snapshot with this transaction's writes on top of prev.
func (t *Tx) apply(prev models.Snapshot, state models.CacheState) models.Snapshot {
	next := models.Snapshot{State: state, Order: prev.Order, Entries: prev.Entries}

	if len(t.puts) > 0 || len(t.deletes) > 0 {
		entries := maps.Clone(prev.Entries)
		if entries == nil {
			entries = make(map[string]models.PlaylistEntry)
		}
		for id := range t.deletes {
			delete(entries, id)
		}
		maps.Copy(entries, t.puts)
		next.Entries = entries
	}

	if t.orderSet {
		next.Order = t.order
	}
	return next
}
