// Package cache keeps copies of fetched repository documents.
//
// Keys are derived from document URLs with [DocumentKey], so a [FileCache]
// directory mirrors the layout of the repositories it was filled from and a
// single host can be dropped with [FileCache.Purge].
package cache

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"
)

// Cache stores opaque byte payloads under string keys.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A ttl of zero means the entry does not expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// DocumentKey returns the cache key for a document URL: the lower-cased host
// followed by the cleaned path, for example
// "repo1.maven.org/maven2/junit/junit/maven-metadata.xml". Query strings and
// fragments are not part of the key.
func DocumentKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "_/" + strings.TrimLeft(path.Clean("/"+rawURL), "/")
	}
	p := strings.TrimLeft(path.Clean("/"+u.Path), "/")
	if p == "" {
		p = "_index"
	}
	return strings.ToLower(u.Host) + "/" + p
}

// Noop is a Cache that never stores anything. It is used when caching is
// disabled.
type Noop struct{}

// NewNoop returns a disabled cache.
func NewNoop() Cache { return Noop{} }

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error { return nil }
func (Noop) Close() error { return nil }
