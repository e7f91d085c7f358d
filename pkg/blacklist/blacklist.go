// Package blacklist tracks repositories quarantined during one update cycle.
//
// A repository lands on the blacklist after a connection-class failure.
// Once blacklisted it is skipped for every remaining fetch of the cycle, and
// the update engine marks it invalid when the cycle ends. A Blacklist is
// never reused across cycles.
package blacklist

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lamacheck/pkg/observability"
)

// Blacklist is an append-only, concurrency-safe set of repository ids.
type Blacklist struct {
	mu     sync.RWMutex
	ids    map[string]string // id -> url
	logger *log.Logger
}

// New returns an empty Blacklist. A nil logger discards output.
func New(logger *log.Logger) *Blacklist {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Blacklist{ids: make(map[string]string), logger: logger}
}

// Add blacklists the repository and reports whether it was newly added.
func (b *Blacklist) Add(ctx context.Context, id, url string) bool {
	b.mu.Lock()
	if _, ok := b.ids[id]; ok {
		b.mu.Unlock()
		return false
	}
	b.ids[id] = url
	b.mu.Unlock()

	b.logger.Warn("added repository to blacklist", "repo", id, "url", url)
	observability.Cycle().OnBlacklisted(ctx, id)
	return true
}

// Contains reports whether the repository is blacklisted. A nil Blacklist
// contains nothing.
func (b *Blacklist) Contains(id string) bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[id]
	return ok
}

// IDs returns the blacklisted ids in sorted order.
func (b *Blacklist) IDs() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of blacklisted repositories.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}
