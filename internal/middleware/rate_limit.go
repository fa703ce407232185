// internal/middleware/rate_limit.go
package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitTransport paces outbound requests. It blocks until the limiter admits the
// request or the request context is done.
type RateLimitTransport struct {
	Next    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitTransport returns next unchanged when perSecond is not positive.
func NewRateLimitTransport(next http.RoundTripper, perSecond float64, burst int) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitTransport{
		Next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.Next.RoundTrip(req)
}
