package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/desertthunder/plsync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		runner.Close()

		var apiErr *shared.APIError
		switch {
		case errors.Is(err, shared.ErrRateLimited) && errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
			logger.Error("rate limited by Spotify", "retry_after", apiErr.RetryAfter)
		case errors.Is(err, shared.ErrRateLimited):
			logger.Error("rate limited by Spotify, try again later")
		case errors.Is(err, shared.ErrAuth), errors.Is(err, shared.ErrNotAuthenticated):
			logger.Error("not authenticated, run 'plsync auth login'")
		case errors.Is(err, shared.ErrMissingCredentials):
			logger.Error("set credentials.spotify.client_id in your config file")
		}
		logger.Fatalf("application error: %v", err)
	}
}
