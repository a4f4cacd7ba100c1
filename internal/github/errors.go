// Package github provides rate-limit-aware access to the GitHub REST API:
// paginated starred-repository listing and README content retrieval.
package github

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying remote outcomes.
// Use errors.Is() to check for these in calling code.
var (
	// ErrNotFound indicates the requested content does not exist. For README
	// probing this is a normal outcome, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates a 401/403-class response. Further candidate
	// probes for the same repository are expected to fail identically, so
	// callers stop immediately.
	ErrForbidden = errors.New("access forbidden")

	// ErrRateLimited indicates the API rate budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a network failure, timeout, or 5xx response.
	// The next scheduled run retries naturally; nothing retries within a run.
	ErrTransient = errors.New("transient error")
)

// classifyStatus maps an HTTP response to a sentinel error, or nil for 2xx.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// GitHub reports primary rate limiting as 403 with a drained quota header.
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return fmt.Errorf("%w: quota exhausted", ErrRateLimited)
		}
		return fmt.Errorf("%w: status %d", ErrForbidden, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", ErrRateLimited)
	default:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
}
