// Package pkg provides the core libraries of LaMaCheck, which keeps the
// latest versions of Maven artifacts up to date across remote repositories.
//
// # Overview
//
// The pkg directory is organized into four main areas:
//
//  1. Domain model: [version] (Maven version ordering), [model] (artifacts,
//     repositories, packaging) and [metadata] (version indexes and POMs)
//  2. State: [registry] (the in-memory registry) and [store] (JSON file and
//     MongoDB persistence)
//  3. Remote access: [fetch] (HTTP with retry, circuit breakers and caching),
//     [cache] and [source] (repository documents for one artifact)
//  4. Update cycles: [planner], [executor], [blacklist], [discovery] and
//     [updater]
//
// Supporting packages: [config], [errors], [observability], [metrics] and
// [buildinfo].
//
// # Architecture
//
// One update cycle flows through the packages like this:
//
//	registry (staleness timestamps)
//	         ↓
//	    planner (search, refresh and discover task lists)
//	         ↓
//	    executor (bounded worker pool)
//	         ↓
//	    source → fetch → remote repositories
//	         ↓
//	    registry (versions, error stamps) + discovery (new artifacts, repositories)
//	         ↓
//	    store (one save per wave)
//
// # Quick Start
//
// Run one cycle over a registry persisted in a JSON file:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/lamacheck/pkg/fetch"
//	    "github.com/matzehuels/lamacheck/pkg/registry"
//	    "github.com/matzehuels/lamacheck/pkg/source"
//	    "github.com/matzehuels/lamacheck/pkg/store"
//	    "github.com/matzehuels/lamacheck/pkg/updater"
//	)
//
//	backend, _ := store.NewFileStore("registry.json")
//	reg := registry.New(backend, registry.Options{})
//	_ = reg.Load(ctx)
//	_, _, _ = reg.AddArtifact("org.apache.commons", "commons-lang3")
//
//	client := fetch.New(fetch.Options{})
//	defer client.Close()
//	engine := updater.New(reg, source.NewHTTP(client, nil), updater.Options{})
//	updated, err := engine.RunUpdateCycle(ctx)
//
// # Observability
//
// Cycle, cache, HTTP and audit hooks default to no-ops. Install
// [metrics.Metrics] for Prometheus collectors and
// [observability.NewLogAudit] for an audit log.
package pkg
