package services

import (
	"context"
	"encoding/json"
	"net/http"
)

// TokenProvider supplies bearer tokens. It is implemented by [auth.TokenManager].
type TokenProvider interface {
	AcquireValidToken(ctx context.Context) (string, error)
}

// APIResponse represents a successful API response.
//
// IsJSON is false for a 2xx response without a JSON content type; Body is then empty.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
}

// Decode unmarshals a JSON body into v. A non-JSON response leaves v untouched.
func (r *APIResponse) Decode(v any) error {
	if !r.IsJSON || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}
