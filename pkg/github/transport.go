package github

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// lowRateLimitThreshold is the remaining primary quota below which responses are logged as warnings.
const lowRateLimitThreshold = 100

// Transport paces outgoing requests and logs every request and response.
type Transport struct {
	base    HTTPDoer
	limiter *rate.Limiter
}

// NewTransport returns a Transport sending at most rps requests per second
// through base. A nil base uses http.DefaultTransport.
func NewTransport(base HTTPDoer, rps float64) *Transport {
	if base == nil {
		base = roundTripDoer{http.DefaultTransport}
	}
	burst := max(int(rps), 1)
	return &Transport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}

	sanitizedURL := sanitizeURLForLogging(req.URL)
	slog.Debug("HTTP request", "component", "http", "method", req.Method, "url", sanitizedURL)

	start := time.Now()
	resp, err := t.base.Do(req)
	if err != nil {
		slog.Debug("HTTP request failed", "component", "http", "method", req.Method, "url", sanitizedURL, "error", err)
		return nil, err
	}

	slog.Debug("HTTP response", "component", "http", "method", req.Method, "url", sanitizedURL,
		"status", resp.StatusCode, "duration", time.Since(start))
	warnIfLowRateLimit(resp)
	return resp, nil
}

func warnIfLowRateLimit(resp *http.Response) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil || n >= lowRateLimitThreshold {
		return
	}
	attrs := []any{"component", "http", "remaining", n}
	if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		attrs = append(attrs, "reset", time.Unix(reset, 0).Format(time.RFC3339))
	}
	slog.Warn("GitHub rate limit running low", attrs...)
}

// sanitizeURLForLogging drops credentials and secret-looking query parameters.
// GitHub API uses header-based auth, so the rest is safe to log.
func sanitizeURLForLogging(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.User = nil
	q := clean.Query()
	for _, key := range []string{"access_token", "token", "client_secret"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	clean.RawQuery = q.Encode()
	return clean.String()
}

// roundTripDoer adapts an http.RoundTripper to HTTPDoer.
type roundTripDoer struct {
	rt http.RoundTripper
}

func (d roundTripDoer) Do(req *http.Request) (*http.Response, error) {
	return d.rt.RoundTrip(req)
}
