package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuth             = fmt.Errorf("authentication error")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrStateMismatch    = fmt.Errorf("oauth state mismatch")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote errors
	ErrNetwork     = fmt.Errorf("network error")
	ErrRateLimited = fmt.Errorf("rate limited")

	// Local cache errors
	ErrStorage          = fmt.Errorf("storage error")
	ErrCacheUnavailable = fmt.Errorf("cache is not writable")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")

	// Data and sync errors
	ErrData           = fmt.Errorf("malformed remote data")
	ErrSyncInProgress = fmt.Errorf("sync already in progress")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// APIError is a classified failure from the remote API.
//
// Kind is one of [ErrNetwork], [ErrRateLimited] or [ErrAuth] and is what [errors.Is] matches against.
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// NetworkError returns an [APIError] of kind [ErrNetwork].
func NetworkError(status int, msg string) *APIError {
	return &APIError{Kind: ErrNetwork, StatusCode: status, Message: msg}
}

// RateLimitError returns an [APIError] of kind [ErrRateLimited].
func RateLimitError(msg string, retryAfter time.Duration) *APIError {
	return &APIError{Kind: ErrRateLimited, StatusCode: 429, Message: msg, RetryAfter: retryAfter}
}

// AuthError returns an [APIError] of kind [ErrAuth] wrapping cause.
func AuthError(cause error) *APIError {
	msg := "no valid token"
	if cause != nil {
		msg = cause.Error()
	}
	return &APIError{Kind: ErrAuth, Message: msg, Cause: cause}
}

// StorageError reports a failed durable storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// IsFatal reports whether err should stop a multi-playlist pass.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuth)
}
