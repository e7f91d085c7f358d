// Package observability carries the instrumentation hooks of lamacheck.
//
// The engine, the fetch client and the registry report what they do through
// four hook interfaces. Every hook defaults to a no-op; main installs real
// implementations once at startup, so library packages never import a
// metrics backend:
//
//	observability.Install(observability.Hooks{
//	    Audit: observability.NewLogAudit(logger),
//	})
//	metrics.New(prometheus.DefaultRegisterer).Install()
//
// Library code reads the current hooks on every call:
//
//	observability.Cycle().OnCycleStart(ctx, runID)
//
// Hooks are fire-and-forget and never affect control flow.
package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// =============================================================================
// Audit Hooks
// =============================================================================

// AuditHooks receives durable state changes of the registry and cycle
// summaries. Fields are alternating key/value pairs.
type AuditHooks interface {
	Event(ctx context.Context, name string, fields ...any)
}

// =============================================================================
// Cycle Hooks
// =============================================================================

// CycleHooks receives events from the update engine.
type CycleHooks interface {
	OnCycleStart(ctx context.Context, runID string)
	OnCycleComplete(ctx context.Context, runID string, updated int, duration time.Duration, err error)

	// OnTaskComplete records one executed task (kind is search, refresh or discover).
	OnTaskComplete(ctx context.Context, kind string, duration time.Duration, err error)

	// OnBlacklisted records a repository quarantined for the rest of a cycle.
	OnBlacklisted(ctx context.Context, repoID string)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives lookups and writes of the document cache. keyType
// names the kind of cached payload.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives every request the fetch client sends to a repository.
// OnError is called instead of OnResponse when no response arrived.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopAuditHooks is a no-op implementation of AuditHooks.
type NoopAuditHooks struct{}

func (NoopAuditHooks) Event(context.Context, string, ...any) {}

// NoopCycleHooks is a no-op implementation of CycleHooks.
type NoopCycleHooks struct{}

func (NoopCycleHooks) OnCycleStart(context.Context, string)                              {}
func (NoopCycleHooks) OnCycleComplete(context.Context, string, int, time.Duration, error) {}
func (NoopCycleHooks) OnTaskComplete(context.Context, string, time.Duration, error)       {}
func (NoopCycleHooks) OnBlacklisted(context.Context, string)                             {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Installation
// =============================================================================

// Hooks is a set of hook implementations. Nil members keep the hook that
// is currently installed.
type Hooks struct {
	Audit AuditHooks
	Cycle CycleHooks
	Cache CacheHooks
	HTTP  HTTPHooks
}

var installed atomic.Pointer[Hooks]

func init() { Reset() }

// Install replaces the non-nil hooks of h. It is meant to be called at
// startup but is safe to call concurrently with running cycles.
func Install(h Hooks) {
	for {
		cur := installed.Load()
		next := *cur
		if h.Audit != nil {
			next.Audit = h.Audit
		}
		if h.Cycle != nil {
			next.Cycle = h.Cycle
		}
		if h.Cache != nil {
			next.Cache = h.Cache
		}
		if h.HTTP != nil {
			next.HTTP = h.HTTP
		}
		if installed.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Reset restores every hook to its no-op default.
func Reset() {
	installed.Store(&Hooks{
		Audit: NoopAuditHooks{},
		Cycle: NoopCycleHooks{},
		Cache: NoopCacheHooks{},
		HTTP:  NoopHTTPHooks{},
	})
}

// Audit returns the installed audit hooks.
func Audit() AuditHooks { return installed.Load().Audit }

// Cycle returns the installed cycle hooks.
func Cycle() CycleHooks { return installed.Load().Cycle }

// Cache returns the installed cache hooks.
func Cache() CacheHooks { return installed.Load().Cache }

// HTTP returns the installed HTTP hooks.
func HTTP() HTTPHooks { return installed.Load().HTTP }
