package env

import (
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	prefix string
)

// SetPrefix sets the deployment prefix applied to every NATS subject, e.g.
// "staging" turns "party.register" into "staging.party.register".
func SetPrefix(p string) {
	mu.Lock()
	defer mu.Unlock()
	prefix = strings.Trim(strings.TrimSpace(p), ".")
}

// Prefix returns the configured subject prefix.
func Prefix() string {
	mu.RLock()
	defer mu.RUnlock()
	return prefix
}

// EnsurePrefixed prepends the configured prefix to subject unless it is
// already there.
func EnsurePrefixed(subject string) string {
	p := Prefix()
	if p == "" || strings.HasPrefix(subject, p+".") {
		return subject
	}
	return p + "." + subject
}
