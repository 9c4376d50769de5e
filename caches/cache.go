package caches

import (
	"strings"
	"time"
)

var (
	// DefaultExpiredDuration the default expired duration
	DefaultExpiredDuration = 24 * time.Hour

	// DefaultExpiredTaskTimer is the default duration of the expired task timer
	DefaultExpiredTaskTimer = 10 * time.Minute

	// DefaultMaxEntries bounds in-process stores.
	DefaultMaxEntries = 10_000
)

// GroupPrefix is the prefix shared by every key in group.
func GroupPrefix(group string) string {
	return group + ":"
}

// GroupOf returns the group a key was written under, or "" when the key
// carries no group prefix.
func GroupOf(key string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return ""
	}
	return key[:i]
}
