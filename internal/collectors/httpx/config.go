package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// Prefixed returns the config entries under prefix ("header." etc.) with the
// prefix removed.
func Prefixed(cfg map[string]string, prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range cfg {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// HeadersFromConfig builds request headers from header.<Name> entries.
func HeadersFromConfig(cfg map[string]string) http.Header {
	h := make(http.Header)
	for k, v := range Prefixed(cfg, "header.") {
		h.Set(k, v)
	}
	return h
}

// RequireString returns a required config value.
func RequireString(source domain.Source, key string) (string, error) {
	v := strings.TrimSpace(source.Config[key])
	if v == "" {
		return "", fmt.Errorf("%w: source %s: %s is required", domain.ErrConfigInvalid, source.ID, key)
	}
	return v, nil
}

// IntOr parses an optional integer config value.
func IntOr(source domain.Source, key string, def int) (int, error) {
	v := strings.TrimSpace(source.Config[key])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: source %s: %s %q is not an integer", domain.ErrConfigInvalid, source.ID, key, v)
	}
	return n, nil
}

// StringOr returns an optional config value.
func StringOr(source domain.Source, key, def string) string {
	if v := strings.TrimSpace(source.Config[key]); v != "" {
		return v
	}
	return def
}
