package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

type tokenServer struct {
	*httptest.Server
	hits    *tu.Counter
	delay   time.Duration
	status  int
	rotate  bool
	started chan struct{}
	forms   chan url.Values
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		hits:    tu.NewCounter(),
		status:  http.StatusOK,
		started: make(chan struct{}, 8),
		forms:   make(chan url.Values, 8),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		ts.hits.Hit(r.PostForm.Get("grant_type"))
		ts.started <- struct{}{}
		ts.forms <- r.PostForm
		time.Sleep(ts.delay)

		if ts.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(ts.status)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		body := map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600}
		if ts.rotate || r.PostForm.Get("grant_type") == "authorization_code" {
			body["refresh_token"] = "rotated"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    "client",
		RedirectURL: "http://127.0.0.1:3000/callback",
		Scopes:      []string{"playlist-read-private"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/authorize",
			TokenURL:  ts.URL + "/api/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func newManager(ts *tokenServer, store TokenStore, opts ...Option) *TokenManager {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithHTTPClient(ts.Client()),
		WithRefreshPolicy(3, time.Millisecond, 2*time.Millisecond),
		WithPollPolicy(3, 5*time.Millisecond, 10*time.Millisecond),
	}
	return NewTokenManager(ts.config(), store, append(base, opts...)...)
}

func expired() models.TokenRecord {
	return models.TokenRecord{AccessToken: "stale", RefreshToken: "refresh", ExpiresAtMs: fixedNow.UnixMilli() - 1}
}

func TestAcquireValidToken(t *testing.T) {
	ctx := context.Background()

	t.Run("Unexpired Token", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewMemoryTokenStore(models.TokenRecord{
			AccessToken: "current", RefreshToken: "refresh", ExpiresAtMs: fixedNow.UnixMilli() + 60_000,
		})

		tok, err := newManager(ts, store).AcquireValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "current", tok)
		assert.Zero(t, ts.hits.Get("refresh_token"))
	})

	t.Run("Missing Tokens", func(t *testing.T) {
		ts := newTokenServer(t)
		for _, rec := range []models.TokenRecord{
			{},
			{AccessToken: "only-access", ExpiresAtMs: fixedNow.UnixMilli() + 60_000},
		} {
			_, err := newManager(ts, tu.NewMemoryTokenStore(rec)).AcquireValidToken(ctx)
			assert.ErrorIs(t, err, shared.ErrAuth)
			assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		}
		assert.Zero(t, ts.hits.Get("refresh_token"))
	})

	t.Run("Expired Token Refreshes", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewMemoryTokenStore(expired())

		tok, err := newManager(ts, store).AcquireValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fresh", tok)
		assert.Equal(t, 1, ts.hits.Get("refresh_token"))

		form := <-ts.forms
		assert.Equal(t, "refresh", form.Get("refresh_token"))
		assert.Equal(t, "client", form.Get("client_id"))

		rec, _ := store.LoadToken(ctx)
		assert.Equal(t, "refresh", rec.RefreshToken, "unrotated refresh token is kept")
		assert.Equal(t, fixedNow.UnixMilli()+3240*1000, rec.ExpiresAtMs)
	})

	t.Run("Rotated Refresh Token", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.rotate = true
		store := tu.NewMemoryTokenStore(expired())

		_, err := newManager(ts, store).AcquireValidToken(ctx)
		require.NoError(t, err)

		rec, _ := store.LoadToken(ctx)
		assert.Equal(t, "rotated", rec.RefreshToken)
	})

	t.Run("Concurrent Callers Share One Refresh", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.delay = 50 * time.Millisecond
		store := tu.NewMemoryTokenStore(expired())
		m := newManager(ts, store, WithPollPolicy(3, 40*time.Millisecond, 60*time.Millisecond))

		var wg sync.WaitGroup
		tokens := make([]string, 2)
		errs := make([]error, 2)
		for i := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tokens[i], errs[i] = m.AcquireValidToken(ctx)
			}()
		}
		wg.Wait()

		for i := range 2 {
			require.NoError(t, errs[i])
			assert.Equal(t, "fresh", tokens[i])
		}
		assert.Equal(t, 1, ts.hits.Get("refresh_token"))
	})

	t.Run("Waiting Caller Gives Up", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.delay = 300 * time.Millisecond
		store := tu.NewMemoryTokenStore(expired())
		m := newManager(ts, store, WithPollPolicy(2, 5*time.Millisecond, 10*time.Millisecond))

		leader := make(chan error, 1)
		go func() {
			_, err := m.AcquireValidToken(ctx)
			leader <- err
		}()
		<-ts.started

		_, err := m.AcquireValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrAuth)
		assert.ErrorIs(t, err, shared.ErrTimeout)

		require.NoError(t, <-leader)
		assert.Equal(t, 1, ts.hits.Get("refresh_token"))
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Exhausted Attempts", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.status = http.StatusBadRequest
		store := tu.NewMemoryTokenStore(expired())

		_, err := newManager(ts, store).Refresh(ctx)
		assert.ErrorIs(t, err, shared.ErrAuth)
		assert.ErrorIs(t, err, shared.ErrRefreshFailed)
		assert.Equal(t, 3, ts.hits.Get("refresh_token"))

		rec, _ := store.LoadToken(ctx)
		assert.Equal(t, "stale", rec.AccessToken, "store is untouched on failure")
	})

	t.Run("No Refresh Token", func(t *testing.T) {
		ts := newTokenServer(t)
		_, err := newManager(ts, tu.NewMemoryTokenStore(models.TokenRecord{AccessToken: "a"})).Refresh(ctx)
		assert.ErrorIs(t, err, shared.ErrNoRefreshToken)
		assert.Zero(t, ts.hits.Get("refresh_token"))
	})

	t.Run("Store Failure", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewMemoryTokenStore(expired())
		store.Err = errors.New("disk")

		_, err := newManager(ts, store).AcquireValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrAuth)
	})
}

func TestRecordFromToken(t *testing.T) {
	t.Run("ExpiresIn", func(t *testing.T) {
		rec := recordFromToken(&oauth2.Token{AccessToken: "a", ExpiresIn: 100}, fixedNow, "old")
		assert.Equal(t, fixedNow.UnixMilli()+90_000, rec.ExpiresAtMs)
		assert.Equal(t, "old", rec.RefreshToken)
	})

	t.Run("Expiry Fallback", func(t *testing.T) {
		tok := &oauth2.Token{AccessToken: "a", RefreshToken: "new", Expiry: fixedNow.Add(time.Hour)}
		rec := recordFromToken(tok, fixedNow, "old")
		assert.Equal(t, fixedNow.UnixMilli()+3240_000, rec.ExpiresAtMs)
		assert.Equal(t, "new", rec.RefreshToken)
	})

	t.Run("Floor", func(t *testing.T) {
		rec := recordFromToken(&oauth2.Token{AccessToken: "a", ExpiresIn: 15}, fixedNow, "")
		assert.Equal(t, fixedNow.UnixMilli()+13_000, rec.ExpiresAtMs)
	})
}

func TestPKCE(t *testing.T) {
	ctx := context.Background()

	t.Run("Challenge", func(t *testing.T) {
		assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			GenerateChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

		v1, v2 := GenerateVerifier(), GenerateVerifier()
		assert.Len(t, v1, 43)
		assert.NotEqual(t, v1, v2)
	})

	t.Run("Login Flow", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewMemoryTokenStore(models.TokenRecord{})
		m := newManager(ts, store)

		raw, err := m.BeginLogin(ctx)
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.Equal(t, "client", q.Get("client_id"))

		state, _, _ := store.Get(ctx, stateKey)
		verifier, _, _ := store.Get(ctx, verifierKey)
		assert.Equal(t, state, q.Get("state"))
		assert.Equal(t, GenerateChallenge(verifier), q.Get("code_challenge"))

		require.NoError(t, m.CompleteLogin(ctx, state, "the-code"))

		form := <-ts.forms
		assert.Equal(t, "authorization_code", form.Get("grant_type"))
		assert.Equal(t, "the-code", form.Get("code"))
		assert.Equal(t, verifier, form.Get("code_verifier"))

		rec, _ := store.LoadToken(ctx)
		assert.Equal(t, "fresh", rec.AccessToken)
		assert.Equal(t, "rotated", rec.RefreshToken)

		err = m.CompleteLogin(ctx, state, "the-code")
		assert.ErrorIs(t, err, shared.ErrStateMismatch, "state is single use")
	})

	t.Run("State Mismatch", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewMemoryTokenStore(models.TokenRecord{})
		m := newManager(ts, store)

		_, err := m.BeginLogin(ctx)
		require.NoError(t, err)

		err = m.CompleteLogin(ctx, "forged", "code")
		assert.ErrorIs(t, err, shared.ErrStateMismatch)
		assert.Zero(t, ts.hits.Get("authorization_code"))
	})

	t.Run("Logout", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewMemoryTokenStore(expired())
		m := newManager(ts, store)

		require.NoError(t, m.Logout(ctx))
		_, err := m.AcquireValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})
}
