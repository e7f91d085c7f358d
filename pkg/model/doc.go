// Package model defines the tracked entities: artifacts, repositories and the
// per-repository version state that links them.
//
// Values in this package are plain data. Concurrency safety and the rules for
// mutating them live in the registry package, which hands out deep copies
// made with [Artifact.Clone].
//
// An [Artifact] is identified by "groupId:artifactId" and records which
// repositories are known to host it ([RepoState], in registration order),
// the latest release and pre-release versions reconciled across those
// repositories and the timestamps that drive staleness planning.
//
// A [Repository] is a remote Maven repository. Invalid repositories and
// repositories with the legacy layout are never fetched from.
package model
