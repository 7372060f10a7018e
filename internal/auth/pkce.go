package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/desertthunder/plsync/internal/shared"
)

// GenerateVerifier returns a random PKCE code verifier (32 random bytes, base64url, 43 characters).
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateChallenge returns the S256 challenge for verifier.
func GenerateChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// BeginLogin stores a fresh state and verifier and returns the authorization URL to open.
func (m *TokenManager) BeginLogin(ctx context.Context) (string, error) {
	if m.config.ClientID == "" {
		return "", fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}

	state := shared.GenerateID()
	verifier := GenerateVerifier()

	if err := m.store.Set(ctx, stateKey, state); err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, verifierKey, verifier); err != nil {
		return "", err
	}

	return m.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteLogin checks state against the stored value, consumes the verifier and exchanges code.
//
// Both stored values are single use; a replayed callback fails.
func (m *TokenManager) CompleteLogin(ctx context.Context, state, code string) error {
	want, ok, err := m.store.Take(ctx, stateKey)
	if err != nil {
		return shared.AuthError(err)
	}
	if !ok || want != state {
		return shared.AuthError(shared.ErrStateMismatch)
	}

	verifier, ok, err := m.store.Take(ctx, verifierKey)
	if err != nil {
		return shared.AuthError(err)
	}
	if !ok {
		return shared.AuthError(fmt.Errorf("%w: no pending login", shared.ErrNotAuthenticated))
	}

	if _, err := m.Exchange(ctx, code, verifier); err != nil {
		return err
	}
	m.logger.Info("login complete")
	return nil
}
