package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const (
	stateKey    = "state"
	verifierKey = "verifier"
	refreshKey  = "refresh"

	defaultLifetime = 3600
)

// TokenStore persists the token record and transient PKCE values.
type TokenStore interface {
	LoadToken(ctx context.Context) (models.TokenRecord, error)
	SaveToken(ctx context.Context, rec models.TokenRecord) error
	ClearToken(ctx context.Context) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Take(ctx context.Context, key string) (string, bool, error)
}

// TokenManager owns the access/refresh token pair.
type TokenManager struct {
	config     *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time

	refreshAttempts int
	refreshMin      time.Duration
	refreshMax      time.Duration
	pollAttempts    int
	pollMin         time.Duration
	pollMax         time.Duration

	refreshing atomic.Bool
	group      singleflight.Group
}

// Option configures a [TokenManager].
type Option func(*TokenManager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *TokenManager) { m.httpClient = c }
}

func WithLogger(l *log.Logger) Option {
	return func(m *TokenManager) { m.logger = shared.WithLogger(l, "component", "auth") }
}

// WithClock replaces time.Now, for expiry checks in tests.
func WithClock(now func() time.Time) Option {
	return func(m *TokenManager) { m.now = now }
}

// WithRefreshPolicy sets how often a refresh is attempted and the random wait between attempts.
func WithRefreshPolicy(attempts int, min, max time.Duration) Option {
	return func(m *TokenManager) {
		m.refreshAttempts, m.refreshMin, m.refreshMax = attempts, min, max
	}
}

// WithPollPolicy sets how long a caller waits on a refresh started by someone else.
func WithPollPolicy(attempts int, min, max time.Duration) Option {
	return func(m *TokenManager) {
		m.pollAttempts, m.pollMin, m.pollMax = attempts, min, max
	}
}

// OptionsFromConfig translates the [auth] config section.
func OptionsFromConfig(c shared.AuthConfig) []Option {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return []Option{
		WithRefreshPolicy(c.RefreshAttempts, ms(c.RefreshBackoffMinMs), ms(c.RefreshBackoffMaxMs)),
		WithPollPolicy(c.PollAttempts, ms(c.PollMinMs), ms(c.PollMaxMs)),
	}
}

// NewOAuthConfig builds the public-client OAuth config from the application config.
func NewOAuthConfig(cfg *shared.Config) *oauth2.Config {
	accounts := cfg.Client.AccountsURL
	return &oauth2.Config{
		ClientID:    cfg.Credentials.Spotify.ClientID,
		RedirectURL: cfg.Credentials.Spotify.RedirectURI,
		Scopes:      cfg.Credentials.Spotify.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   accounts + "/authorize",
			TokenURL:  accounts + "/api/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// NewTokenManager creates a TokenManager for config backed by store.
func NewTokenManager(config *oauth2.Config, store TokenStore, opts ...Option) *TokenManager {
	m := &TokenManager{
		config:          config,
		store:           store,
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		logger:          shared.DiscardLogger(),
		now:             time.Now,
		refreshAttempts: 3,
		refreshMin:      500 * time.Millisecond,
		refreshMax:      time.Second,
		pollAttempts:    3,
		pollMin:         500 * time.Millisecond,
		pollMax:         time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.refreshAttempts < 1 {
		m.refreshAttempts = 1
	}
	if m.pollAttempts < 1 {
		m.pollAttempts = 1
	}
	return m
}

// AcquireValidToken returns a usable access token.
//
// An unexpired token is returned as is. An expired one is refreshed by the first caller to notice; callers
// arriving while that refresh runs wait at most pollAttempts polls for it. Every failure is an AuthError.
func (m *TokenManager) AcquireValidToken(ctx context.Context) (string, error) {
	rec, err := m.store.LoadToken(ctx)
	if err != nil {
		return "", shared.AuthError(err)
	}
	if rec.AccessToken == "" || rec.RefreshToken == "" {
		return "", shared.AuthError(shared.ErrNotAuthenticated)
	}
	if !rec.Expired(m.now()) {
		return rec.AccessToken, nil
	}

	if m.refreshing.CompareAndSwap(false, true) {
		v, err, _ := m.group.Do(refreshKey, m.refreshIfExpired(ctx))
		if err != nil {
			return "", err
		}
		return v.(*models.TokenRecord).AccessToken, nil
	}

	return m.awaitRefresh(ctx)
}

// awaitRefresh waits for the in-flight refresh, re-reading the store between polls.
func (m *TokenManager) awaitRefresh(ctx context.Context) (string, error) {
	m.logger.Debug("refresh in flight, waiting")
	result := m.group.DoChan(refreshKey, m.refreshIfExpired(ctx))

	for range m.pollAttempts {
		timer := time.NewTimer(shared.Jitter(m.pollMin, m.pollMax))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", shared.AuthError(ctx.Err())
		case r := <-result:
			timer.Stop()
			if r.Err != nil {
				return "", r.Err
			}
			return r.Val.(*models.TokenRecord).AccessToken, nil
		case <-timer.C:
		}

		rec, err := m.store.LoadToken(ctx)
		if err == nil && rec.AccessToken != "" && !rec.Expired(m.now()) {
			return rec.AccessToken, nil
		}
	}

	return "", shared.AuthError(fmt.Errorf("%w: waiting for token refresh", shared.ErrTimeout))
}

// refreshIfExpired re-checks the store before refreshing so a caller that joins late never causes a second
// refresh of a token that was just renewed.
func (m *TokenManager) refreshIfExpired(ctx context.Context) func() (any, error) {
	return func() (any, error) {
		defer m.refreshing.Store(false)

		rec, err := m.store.LoadToken(ctx)
		if err == nil && rec.AccessToken != "" && !rec.Expired(m.now()) {
			return &rec, nil
		}
		return m.Refresh(ctx)
	}
}

// Refresh exchanges the stored refresh token for a new pair and stores it.
func (m *TokenManager) Refresh(ctx context.Context) (*models.TokenRecord, error) {
	rec, err := m.store.LoadToken(ctx)
	if err != nil {
		return nil, shared.AuthError(err)
	}
	if rec.RefreshToken == "" {
		return nil, shared.AuthError(shared.ErrNoRefreshToken)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	var lastErr error
	for attempt := 1; attempt <= m.refreshAttempts; attempt++ {
		issuedAt := m.now()
		tok, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken}).Token()
		if err == nil {
			next := recordFromToken(tok, issuedAt, rec.RefreshToken)
			if err := m.store.SaveToken(ctx, next); err != nil {
				return nil, shared.AuthError(err)
			}
			m.logger.Info("token refreshed", "expires", next.ExpiresAt().Format(time.RFC3339))
			return &next, nil
		}

		lastErr = err
		m.logger.Warn("token refresh failed", "attempt", attempt, "error", err)
		if attempt < m.refreshAttempts {
			if err := shared.Sleep(ctx, shared.Jitter(m.refreshMin, m.refreshMax)); err != nil {
				lastErr = err
				break
			}
		}
	}

	return nil, shared.AuthError(fmt.Errorf("%w: %w", shared.ErrRefreshFailed, lastErr))
}

// Exchange trades an authorization code and its PKCE verifier for a token pair and stores it.
func (m *TokenManager) Exchange(ctx context.Context, code, verifier string) (*models.TokenRecord, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	issuedAt := m.now()
	tok, err := m.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, shared.AuthError(fmt.Errorf("%w: %w", shared.ErrAuthFailed, err))
	}

	rec := recordFromToken(tok, issuedAt, "")
	if err := m.store.SaveToken(ctx, rec); err != nil {
		return nil, shared.AuthError(err)
	}
	return &rec, nil
}

// Status returns the stored record without refreshing it.
func (m *TokenManager) Status(ctx context.Context) (models.TokenRecord, error) {
	return m.store.LoadToken(ctx)
}

// Logout removes the stored tokens.
func (m *TokenManager) Logout(ctx context.Context) error {
	return m.store.ClearToken(ctx)
}

// recordFromToken converts a token response into a [models.TokenRecord].
//
// A response without a refresh token keeps prevRefresh.
func recordFromToken(tok *oauth2.Token, issuedAt time.Time, prevRefresh string) models.TokenRecord {
	secs := tok.ExpiresIn
	if secs <= 0 && !tok.Expiry.IsZero() {
		secs = int64(tok.Expiry.Sub(issuedAt).Round(time.Second).Seconds())
	}
	if secs <= 0 {
		secs = defaultLifetime
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = prevRefresh
	}

	return models.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAtMs:  models.ExpiryFromLifetime(issuedAt, secs),
	}
}
