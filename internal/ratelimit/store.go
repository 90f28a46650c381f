// Package ratelimit implements sliding-window attempt limiting.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Store decides whether a key has exhausted its attempts within a sliding window.
type Store interface {
	// IsLimited reports whether key already has max or more attempts recorded
	// within the last window. When it returns false the current attempt is
	// recorded; when it returns true nothing is recorded.
	IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error)
	// Clear forgets every key.
	Clear(ctx context.Context) error
	// ClearKey forgets a single key.
	ClearKey(ctx context.Context, key string) error
}

// Key builds the limiter key for a scope and client address.
func Key(scope, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return scope + ":" + ip
}
