package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const loginTimeout = 2 * time.Minute

// AuthLogin runs the PKCE authorization flow and stores the resulting tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	authURL, err := r.tokens.BeginLogin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}

	if err := r.doOAuth(ctx, authURL, !cmd.Bool("no-browser")); err != nil {
		return err
	}

	r.logger.Info("authentication successful")
	r.writePlain("%s\n", formatter.Success("Authenticated with Spotify"))

	if user, err := r.spotify.CurrentUser(ctx); err != nil {
		r.logger.Warn("failed to fetch profile", "error", err)
	} else {
		r.writePlain("  Logged in as %s (%s)\n", user.DisplayName, user.ID)
	}
	return nil
}

// AuthStatus reports the stored token and, when possible, the account it belongs to.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	rec, err := r.tokens.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if rec.AccessToken == "" {
		r.writePlain("%s\n", formatter.Warn("Not authenticated. Run 'plsync auth login'."))
		return nil
	}

	r.writePlainHeader("Spotify Authentication")
	if rec.Expired(time.Now()) {
		r.writePlain("Token:   expired at %s (refreshed on next request)\n", rec.ExpiresAt().Format(time.RFC1123))
	} else {
		r.writePlain("Token:   valid until %s\n", rec.ExpiresAt().Format(time.RFC1123))
	}
	if rec.RefreshToken == "" {
		r.writePlain("%s\n", formatter.Warn("No refresh token stored; log in again when the token expires."))
	}

	user, err := r.spotify.CurrentUser(ctx)
	if err != nil {
		r.writePlain("%s\n", formatter.Failure(fmt.Sprintf("Could not fetch profile: %v", err)))
		return nil
	}

	r.writePlain("User:    %s (%s)\n", user.DisplayName, user.ID)
	if user.Product != "" {
		r.writePlain("Product: %s\n", user.Product)
	}
	return nil
}

// AuthLogout removes the stored tokens.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.tokens.Logout(ctx); err != nil {
		return fmt.Errorf("failed to remove tokens: %w", err)
	}

	r.logger.Info("logged out")
	return r.writePlain("%s\n", formatter.Success("Logged out"))
}

// doOAuth serves the redirect URI locally, sends the user to authURL and waits for the callback.
func (r *Runner) doOAuth(ctx context.Context, authURL string, browser bool) error {
	handler := server.NewOAuthHandler(callbackPath(r.config.Credentials.Spotify.RedirectURI), r.tokens.CompleteLogin)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(handler)

	srv, err := server.Listen(r.config.Server.Addr(), router, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()
	r.logger.Infof("waiting for OAuth callback at %v", srv.Addr())

	opened := false
	if browser {
		r.writePlain("→ Opening browser for Spotify login...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
		} else {
			opened = true
		}
	}
	if !opened {
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", loginTimeout)

	timeout := time.NewTimer(loginTimeout)
	defer timeout.Stop()

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}
		return nil
	case err := <-srv.Errors():
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, loginTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// callbackPath returns the path component of the redirect URI, or /callback.
func callbackPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" {
		return "/callback"
	}
	return u.Path
}
