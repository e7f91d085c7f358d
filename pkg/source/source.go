// Package source reads Maven repository documents for the update engine.
//
// A [Source] answers three questions about an artifact in one repository:
// which versions exist (version index), which timestamped files back a
// snapshot (snapshot index) and what a version's project descriptor says
// (POM). A nil result with a nil error means "not available here"; that
// covers missing documents, malformed documents, blacklisted repositories
// and repositories that just failed. The only errors returned are context
// errors, so a broken remote never aborts an update cycle.
package source

import (
	"context"

	"github.com/matzehuels/lamacheck/pkg/blacklist"
	"github.com/matzehuels/lamacheck/pkg/metadata"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// Source fetches and parses repository documents.
//
// Implementations must skip repositories contained in bl without sending a
// request, and add a repository to bl when it fails at the connection level.
type Source interface {
	FetchVersionIndex(ctx context.Context, repo model.Repository, a *model.Artifact, bl *blacklist.Blacklist) (*metadata.VersionIndex, error)
	FetchSnapshotIndex(ctx context.Context, repo model.Repository, a *model.Artifact, v *version.Version, bl *blacklist.Blacklist) (*metadata.SnapshotIndex, error)
	FetchDescriptor(ctx context.Context, repo model.Repository, a *model.Artifact, v *version.Version, bl *blacklist.Blacklist) (*metadata.POM, error)
}
