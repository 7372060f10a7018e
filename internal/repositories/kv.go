package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/desertthunder/plsync/internal/models"
)

// Keys used in the kv table.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresMs    = "expires_ms"
	KeyState        = "state"
	KeyVerifier     = "verifier"
)

// KVRepository is a string key-value store holding the token record and transient PKCE values.
type KVRepository struct {
	db *sql.DB
}

// NewKVRepository creates a new KVRepository with the given database connection
func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the value for key. ok is false when the key is absent.
func (r *KVRepository) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	return getKey(ctx, r.db, key)
}

// Set stores value under key, replacing any previous value.
func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	return setKey(ctx, r.db, key, value)
}

// Take returns the value for key and deletes it in the same transaction.
func (r *KVRepository) Take(ctx context.Context, key string) (value string, ok bool, err error) {
	err = WithTx(ctx, r.db, func(tx *sql.Tx) error {
		value, ok, err = getKey(ctx, tx, key)
		if err != nil || !ok {
			return err
		}
		return deleteKeys(ctx, tx, key)
	})
	return value, ok, err
}

// LoadToken reads the stored token record. Missing keys leave the matching fields zero.
func (r *KVRepository) LoadToken(ctx context.Context) (models.TokenRecord, error) {
	var rec models.TokenRecord

	access, _, err := getKey(ctx, r.db, KeyAccessToken)
	if err != nil {
		return rec, err
	}
	refresh, _, err := getKey(ctx, r.db, KeyRefreshToken)
	if err != nil {
		return rec, err
	}
	expires, ok, err := getKey(ctx, r.db, KeyExpiresMs)
	if err != nil {
		return rec, err
	}

	rec.AccessToken = access
	rec.RefreshToken = refresh
	if ok {
		ms, err := strconv.ParseInt(expires, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("failed to parse %s: %w", KeyExpiresMs, err)
		}
		rec.ExpiresAtMs = ms
	}
	return rec, nil
}

// SaveToken writes all three token keys in one transaction.
func (r *KVRepository) SaveToken(ctx context.Context, rec models.TokenRecord) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := setKey(ctx, tx, KeyAccessToken, rec.AccessToken); err != nil {
			return err
		}
		if err := setKey(ctx, tx, KeyRefreshToken, rec.RefreshToken); err != nil {
			return err
		}
		return setKey(ctx, tx, KeyExpiresMs, strconv.FormatInt(rec.ExpiresAtMs, 10))
	})
}

// ClearToken removes the token record and any pending PKCE values.
func (r *KVRepository) ClearToken(ctx context.Context) error {
	return deleteKeys(ctx, r.db, KeyAccessToken, KeyRefreshToken, KeyExpiresMs, KeyState, KeyVerifier)
}

func getKey(ctx context.Context, db DBTX, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func setKey(ctx context.Context, db DBTX, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func deleteKeys(ctx context.Context, db DBTX, keys ...string) error {
	for _, key := range keys {
		if _, err := db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}
