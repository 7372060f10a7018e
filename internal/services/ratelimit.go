package services

import (
	"net/http"

	"golang.org/x/time/rate"
)

// pacedTransport waits on a token bucket before every outgoing request, retries included.
type pacedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// newPacedTransport wraps next. A non-positive rps disables pacing.
func newPacedTransport(next http.RoundTripper, rps float64, burst int) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &pacedTransport{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
