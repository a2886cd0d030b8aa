package httpx

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based):
// base doubled per attempt, capped at max, with ±20% jitter.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return Jitter(d)
}

// Jitter spreads d uniformly over ±20%.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := d.Seconds() * 0.2
	low := d.Seconds() - delta
	v := low + rand.Float64()*2*delta //nolint:gosec // jitter does not need crypto randomness
	return time.Duration(v * float64(time.Second))
}

// RetryAfter reads a Retry-After header in seconds, falling back to fallback
// and never exceeding max.
func RetryAfter(resp *http.Response, fallback, max time.Duration) time.Duration {
	wait := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}
