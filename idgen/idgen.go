// Package idgen generates the identifiers used across viewnav: navigation
// IDs attached to log records, and row IDs of the dev backend's action log.
//
// The default strategy is UUIDv7 (time-sortable); prefixed variants tag the
// kind of entity ("nav_", "log_").
package idgen

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator yielding prefix1, prefix2, ...
// Tests use it to assert on IDs.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// NavigationID tags one Controller navigation.
var NavigationID = Prefixed("nav_", Default)

// LogID tags one stored action log entry.
var LogID = Prefixed("log_", Default)

// Parse validates a UUID string (optionally prefixed, e.g. "nav_<uuid>")
// and returns the bare UUID.
func Parse(s string) (string, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
