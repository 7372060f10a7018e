package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func newTestClient(t *testing.T, url string, attempts int, tokens TokenProvider) *Client {
	t.Helper()
	cfg := shared.ClientConfig{BaseURL: url, MaxAttempts: attempts, BreakerFailures: 5, TimeoutMs: 5000}
	return NewClient(cfg, tokens, WithBackoff(time.Millisecond, 2*time.Millisecond))
}

func TestClientRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("Sends Bearer Token And Decodes JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "/v1/me", r.URL.Path)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Write([]byte(`{"id":"user-1"}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL+"/v1", 3, &tu.StaticToken{Token: "tok"})
		resp, err := c.Get(ctx, "/me")
		require.NoError(t, err)
		assert.True(t, resp.IsJSON)

		var body struct{ ID string }
		require.NoError(t, resp.Decode(&body))
		assert.Equal(t, "user-1", body.ID)
	})

	t.Run("Rate Limit Is Not Retried", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 3, &tu.StaticToken{Token: "tok"})
		_, err := c.Get(ctx, "/me/playlists")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrRateLimited)
		assert.Equal(t, int32(1), hits.Load())

		var apiErr *shared.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 7*time.Second, apiErr.RetryAfter)
		assert.True(t, shared.IsFatal(err))
	})

	t.Run("Server Errors Are Retried Up To Max Attempts", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{ "error": { "status": 502, "message": "bad gateway" } }`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 3, &tu.StaticToken{Token: "tok"})
		_, err := c.Get(ctx, "/me")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrNetwork)
		assert.Equal(t, int32(3), hits.Load())

		var apiErr *shared.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, `{"error":{"status":502,"message":"bad gateway"}}`, apiErr.Message)
	})

	t.Run("Retry Recovers", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 3, &tu.StaticToken{Token: "tok"})
		resp, err := c.Get(ctx, "/me")
		require.NoError(t, err)
		assert.True(t, resp.IsJSON)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("Error Message By Content Type", func(t *testing.T) {
		tests := []struct {
			name        string
			contentType string
			body        string
			want        string
		}{
			{"HTML Uses Status Line", "text/html", "<html>oops</html>", "404: Not Found"},
			{"Text Uses Body", "text/plain", "  no such thing \n", "no such thing"},
			{"Empty Text Uses Status Line", "text/plain", "", "404: Not Found"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", tt.contentType)
					w.WriteHeader(http.StatusNotFound)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				c := newTestClient(t, server.URL, 1, &tu.StaticToken{Token: "tok"})
				_, err := c.Get(ctx, "/x")

				var apiErr *shared.APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.want, apiErr.Message)
			})
		}
	})

	t.Run("Unauthorized Is An Auth Error After Retries", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 3, &tu.StaticToken{Token: "tok"})
		_, err := c.Get(ctx, "/me")
		assert.ErrorIs(t, err, shared.ErrAuth)
		assert.NotErrorIs(t, err, shared.ErrNetwork)
		assert.Equal(t, int32(3), hits.Load(), "401 is retried like any non-2xx status except 429")
	})

	t.Run("Non JSON Success Is Empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 1, &tu.StaticToken{Token: "tok"})
		resp, err := c.Get(ctx, "/x")
		require.NoError(t, err)
		assert.False(t, resp.IsJSON)
		assert.Empty(t, resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Token Failure Makes No Request", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 3, &tu.StaticToken{Err: errors.New("store unreadable")})
		_, err := c.Get(ctx, "/me")
		assert.ErrorIs(t, err, shared.ErrAuth)
		assert.Zero(t, hits.Load())
	})

	t.Run("Absolute URL Is Used Verbatim", func(t *testing.T) {
		var path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.RequestURI()
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := newTestClient(t, "https://api.invalid/v1", 1, &tu.StaticToken{Token: "tok"})
		_, err := c.Get(ctx, server.URL+"/v1/me/playlists?offset=50&limit=50")
		require.NoError(t, err)
		assert.Equal(t, "/v1/me/playlists?offset=50&limit=50", path)
	})

	t.Run("Transport Error Is A Network Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := newTestClient(t, url, 1, &tu.StaticToken{Token: "tok"})
		_, err := c.Get(ctx, "/me")
		assert.ErrorIs(t, err, shared.ErrNetwork)
	})

	t.Run("Breaker Opens After Consecutive Failures", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		cfg := shared.ClientConfig{BaseURL: server.URL, MaxAttempts: 1, BreakerFailures: 2, BreakerTimeoutMs: 60000}
		c := NewClient(cfg, &tu.StaticToken{Token: "tok"}, WithBackoff(time.Millisecond, time.Millisecond))

		for range 2 {
			_, err := c.Get(ctx, "/me")
			require.ErrorIs(t, err, shared.ErrNetwork)
		}

		_, err := c.Get(ctx, "/me")
		require.ErrorIs(t, err, shared.ErrNetwork)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("Rate Limits Do Not Trip The Breaker", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		cfg := shared.ClientConfig{BaseURL: server.URL, MaxAttempts: 1, BreakerFailures: 1}
		c := NewClient(cfg, &tu.StaticToken{Token: "tok"})

		for range 3 {
			_, err := c.Get(ctx, "/me")
			require.ErrorIs(t, err, shared.ErrRateLimited)
		}
	})

	t.Run("JSON Body Is Encoded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, 1, &tu.StaticToken{Token: "tok"})
		resp, err := c.Request(ctx, http.MethodPost, "/things", map[string]string{"name": "x"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 50*time.Minute)
}

func TestPacedTransport(t *testing.T) {
	rt := tu.NewMockRoundTripper(&http.Response{StatusCode: http.StatusOK}, nil)

	assert.Same(t, http.RoundTripper(rt), newPacedTransport(rt, 0, 0))

	paced := newPacedTransport(rt, 1000, 2)
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	for range 3 {
		_, err := paced.RoundTrip(req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), rt.Calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := newPacedTransport(rt, 0.001, 1)
	_, _ = slow.RoundTrip(req)
	_, err := slow.RoundTrip(req.WithContext(ctx))
	assert.Error(t, err)
}

func TestClientBodyReadFailure(t *testing.T) {
	rt := tu.NewMockRoundTripper(&http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       &tu.FCloser{},
	}, nil)

	cfg := shared.ClientConfig{BaseURL: "http://example.com/v1", MaxAttempts: 1, BreakerFailures: 5, TimeoutMs: 5000}
	c := NewClient(cfg, &tu.StaticToken{Token: "tok"}, WithHTTPClient(&http.Client{Transport: rt}))

	_, err := c.Get(context.Background(), "/me")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.Equal(t, int32(1), rt.Calls.Load())
}
