package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jetgate/jetgate/pkg/fail"
)

const (
	minLimit     = 1
	maxLimit     = 100
	defaultLimit = 100

	minTimeoutSeconds     = 1
	maxTimeoutSeconds     = 30
	defaultTimeoutSeconds = 5
)

// parseLimit validates the limit query parameter: outside [1,100] is a 400.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minLimit || n > maxLimit {
		return 0, fail.BadRequest("limit must be an integer between %d and %d", minLimit, maxLimit)
	}
	return n, nil
}

// parseTimeout validates the timeout query parameter: outside [1,30] seconds
// is a 400.
func parseTimeout(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return defaultTimeoutSeconds * time.Second, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minTimeoutSeconds || n > maxTimeoutSeconds {
		return 0, fail.BadRequest("timeout must be an integer between %d and %d seconds", minTimeoutSeconds, maxTimeoutSeconds)
	}
	return time.Duration(n) * time.Second, nil
}
