package model

import (
	"fmt"
	"time"
)

// CacheEntry is a captured response snapshot, keyed by request identity
// inside a versioned namespace. Entries have no TTL: namespaces are purged
// wholesale when a new gateway version activates.
type CacheEntry struct {
	Namespace  string
	Key        string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	StoredAt   time.Time
}

// Validate checks the cache entry is well formed.
func (e CacheEntry) Validate() error {
	if e.Namespace == "" {
		return fmt.Errorf("namespace is required: %w", ErrNotValid)
	}
	if e.Key == "" {
		return fmt.Errorf("key is required: %w", ErrNotValid)
	}
	if e.StatusCode < 100 || e.StatusCode > 599 {
		return fmt.Errorf("invalid status code %d: %w", e.StatusCode, ErrNotValid)
	}

	return nil
}
