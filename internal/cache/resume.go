package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/desertthunder/plsync/internal/models"
)

// flatSnapshot is the on-disk shape of the resume file.
type flatSnapshot struct {
	Order   []string                        `json:"order"`
	Entries map[string]models.PlaylistEntry `json:"entries"`
}

// Resume seeds an empty mirror from the flat snapshot file so a previous index can be shown before storage
// is opened. It reports whether anything was loaded. A missing file is not an error.
func (c *Cache) Resume() (bool, error) {
	if c.snapshotPath == "" {
		return false, nil
	}

	data, err := os.ReadFile(c.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var flat flatSnapshot
	if err := json.Unmarshal(data, &flat); err != nil {
		return false, fmt.Errorf("failed to decode snapshot file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mirror.Empty() {
		return false, nil
	}
	if flat.Order == nil {
		flat.Order = []string{}
	}
	if flat.Entries == nil {
		flat.Entries = map[string]models.PlaylistEntry{}
	}
	c.mirror = models.Snapshot{State: c.state, Order: flat.Order, Entries: flat.Entries}
	c.publishLocked()

	c.logger.Debug("resumed from snapshot file", "path", c.snapshotPath, "playlists", len(flat.Order))
	return true, nil
}

// saveSnapshotFile rewrites the resume file from snap. Failures are logged only.
func (c *Cache) saveSnapshotFile(snap models.Snapshot) {
	if err := c.writeSnapshotFile(snap); err != nil {
		c.logger.Warn("failed to write snapshot file", "path", c.snapshotPath, "error", err)
	}
}

// writeSnapshotFile replaces the resume file atomically.
func (c *Cache) writeSnapshotFile(snap models.Snapshot) error {
	if c.snapshotPath == "" {
		return nil
	}

	data, err := json.Marshal(flatSnapshot{Order: snap.Order, Entries: snap.Entries})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.snapshotPath), ".plsync-snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.snapshotPath)
}

func (c *Cache) removeSnapshotFile() error {
	if c.snapshotPath == "" {
		return nil
	}
	if err := os.Remove(c.snapshotPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
