package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	return lookup(key, fallback, strconv.Atoi)
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	return lookup(key, fallback, strconv.ParseBool)
}

// GetDuration reads a duration such as "90s". A bare integer is taken in unit.
func GetDuration(key string, unit, fallback time.Duration) time.Duration {
	return lookup(key, fallback, func(raw string) (time.Duration, error) {
		if n, err := strconv.Atoi(raw); err == nil {
			return time.Duration(n) * unit, nil
		}
		return time.ParseDuration(raw)
	})
}

func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := parse(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("invalid environment value, using default", "key", key, "value", raw, "error", err)
		return fallback
	}
	return parsed
}
