package httpx

import (
	"fmt"
	"net/http"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// StatusError is a non-success HTTP response that was not retried away.
// It unwraps to the matching domain sentinel.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s (URL: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// HTTPStatusCode returns the response status.
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Unwrap maps the status onto the failure taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case IsRetryableStatus(e.StatusCode):
		return domain.ErrTransientNetwork
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return domain.ErrAuthentication
	default:
		return domain.ErrBadRequest
	}
}

// IsRetryableStatus reports whether a status is worth retrying with backoff.
// 429 is handled separately by the cooldown path.
func IsRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout {
		return true
	}
	return code >= 500 && code <= 599
}
