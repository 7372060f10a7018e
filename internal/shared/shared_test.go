package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrors(t *testing.T) {
	t.Run("APIError unwraps to kind", func(t *testing.T) {
		err := fmt.Errorf("fetch page: %w", RateLimitError("slow down", 3*time.Second))

		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
		if errors.Is(err, ErrNetwork) {
			t.Error("rate limit must not match ErrNetwork")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.RetryAfter != 3*time.Second {
			t.Errorf("expected RetryAfter 3s, got %+v", apiErr)
		}
	})

	t.Run("AuthError keeps cause", func(t *testing.T) {
		err := AuthError(ErrRefreshFailed)
		if !errors.Is(err, ErrAuth) || !errors.Is(err, ErrRefreshFailed) {
			t.Errorf("expected ErrAuth and ErrRefreshFailed, got %v", err)
		}
		if !IsFatal(err) {
			t.Error("auth errors should be fatal to a pass")
		}
		if IsFatal(NetworkError(500, "boom")) {
			t.Error("network errors should not be fatal to a pass")
		}
	})

	t.Run("StorageError", func(t *testing.T) {
		cause := errors.New("disk full")
		err := &StorageError{Op: "put", Err: cause}
		if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
			t.Errorf("expected ErrStorage and cause, got %v", err)
		}
	})
}

func TestErrorLog(t *testing.T) {
	t.Run("Append and Entries", func(t *testing.T) {
		l := NewErrorLog()
		l.Append("sync", errors.New("first"))
		l.Append("sync", nil)
		l.Append("tracks", errors.New("second"))

		entries := l.Entries()
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Text != "first" || entries[1].Source != "tracks" {
			t.Errorf("unexpected entries %+v", entries)
		}

		entries[0].Text = "changed"
		if l.Entries()[0].Text != "first" {
			t.Error("Entries should return a copy")
		}
	})

	t.Run("Subscribe", func(t *testing.T) {
		l := NewErrorLog()
		l.Append("before", errors.New("not delivered"))

		ch, cancel := l.Subscribe()
		l.Append("after", errors.New("delivered"))

		select {
		case e := <-ch:
			if e.Source != "after" {
				t.Errorf("expected entry from after, got %s", e.Source)
			}
		case <-time.After(time.Second):
			t.Fatal("expected an entry")
		}

		cancel()
		cancel()
		if _, ok := <-ch; ok {
			t.Error("channel should be closed after cancel")
		}

		l.Append("late", errors.New("no subscribers"))
		if l.Len() != 3 {
			t.Errorf("expected 3 entries, got %d", l.Len())
		}
	})
}

func TestJitter(t *testing.T) {
	for range 50 {
		d := Jitter(500*time.Millisecond, time.Second)
		if d < 500*time.Millisecond || d >= time.Second {
			t.Fatalf("jitter %v out of range", d)
		}
	}

	if d := Jitter(time.Second, time.Second); d != time.Second {
		t.Errorf("equal bounds should return min, got %v", d)
	}
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
