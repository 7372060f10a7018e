// package shared defines shared helpers
package shared

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// DiscardLogger returns a logger that writes nowhere, for tests and library defaults.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// LeveledLogger adapts a [log.Logger] to [retryablehttp.LeveledLogger].
type LeveledLogger struct {
	l *log.Logger
}

var _ retryablehttp.LeveledLogger = LeveledLogger{}

func NewLeveledLogger(l *log.Logger) LeveledLogger {
	return LeveledLogger{l: l.WithPrefix("http")}
}

func (a LeveledLogger) Error(msg string, kv ...any) { a.l.Error(msg, kv...) }
func (a LeveledLogger) Info(msg string, kv ...any)  { a.l.Debug(msg, kv...) }
func (a LeveledLogger) Debug(msg string, kv ...any) { a.l.Debug(msg, kv...) }
func (a LeveledLogger) Warn(msg string, kv ...any)  { a.l.Warn(msg, kv...) }

// Jitter returns a random duration in [min, max).
func Jitter(min, max time.Duration) time.Duration {
	return retryablehttp.LinearJitterBackoff(min, max, 0, nil)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
