package store

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// retryTransport retries idempotent requests with exponential backoff.
// Connection errors and 5xx responses are retried; everything else passes
// through. Non-GET methods are never retried since the upload path must stay
// single-shot (the checkpoint layer promises exactly one object per save).
type retryTransport struct {
	next       http.RoundTripper
	maxElapsed time.Duration

	// initialInterval shortens the first backoff step in tests.
	initialInterval time.Duration
}

// RoundTrip implements http.RoundTripper. When retries are exhausted the last
// response is returned as-is, so a persistent 5xx still reaches the caller
// with its status and body intact.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = t.maxElapsed
	if t.initialInterval > 0 {
		expBackoff.InitialInterval = t.initialInterval
	}
	expBackoff.Reset()

	for {
		resp, err := t.next.RoundTrip(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		interval := expBackoff.NextBackOff()
		if interval == backoff.Stop {
			return resp, err
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(interval)
	}
}
