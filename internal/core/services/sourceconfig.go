package services

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// envPrefix marks a config value read from the environment.
const envPrefix = "env:"

// sourceFields are the sources.<id>.* keys that map onto Source fields.
// Everything else lands in Source.Config.
var sourceFields = []string{"strategy", "dataset", "name", "refresh_interval"}

// DeclaredSources reads every source declared under sources.<id>.* in the
// configuration. Values written as env:NAME are read from the environment;
// one that resolves empty is a configuration error.
func DeclaredSources(cfg driven.ConfigStore) ([]domain.Source, error) {
	return declaredSources(cfg, os.Getenv)
}

func declaredSources(cfg driven.ConfigStore, getenv func(string) string) ([]domain.Source, error) {
	byID := make(map[string]*domain.Source)
	var ids []string
	var errs []error

	for _, key := range cfg.Keys("sources.") {
		id, field, ok := strings.Cut(strings.TrimPrefix(key, "sources."), ".")
		if !ok || id == "" || field == "" {
			continue
		}
		src, seen := byID[id]
		if !seen {
			src = &domain.Source{ID: id, Config: make(map[string]string)}
			byID[id] = src
			ids = append(ids, id)
		}

		raw, _ := cfg.Get(key)
		value, err := configString(raw, getenv)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: source %s: %s: %w", domain.ErrConfigInvalid, id, field, err))
			continue
		}

		switch field {
		case "strategy":
			src.Strategy = domain.Strategy(value)
		case "dataset":
			src.Dataset = value
		case "name":
			src.Name = value
		case "refresh_interval":
			d, err := parseInterval(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: source %s: refresh_interval: %w", domain.ErrConfigInvalid, id, err))
				continue
			}
			src.RefreshInterval = d
		default:
			src.Config[field] = value
		}
	}

	slices.Sort(ids)
	sources := make([]domain.Source, 0, len(ids))
	for _, id := range ids {
		src := byID[id]
		if err := src.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		sources = append(sources, *src)
	}
	return sources, errors.Join(errs...)
}

// configString renders a TOML scalar or array as a config string.
// Arrays are joined with commas.
func configString(raw any, getenv func(string) string) (string, error) {
	switch v := raw.(type) {
	case string:
		return resolveEnv(v, getenv)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := configString(item, getenv)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case []string:
		return configString(toAny(v), getenv)
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// resolveEnv expands an env:NAME value.
func resolveEnv(v string, getenv func(string) string) (string, error) {
	name, ok := strings.CutPrefix(strings.TrimSpace(v), envPrefix)
	if !ok {
		return v, nil
	}
	value := getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is empty", name)
	}
	return value, nil
}

// parseInterval accepts a duration string or whole seconds.
func parseInterval(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}
		return d, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", raw)
	}
}
