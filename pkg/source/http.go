package source

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lamacheck/pkg/blacklist"
	"github.com/matzehuels/lamacheck/pkg/fetch"
	"github.com/matzehuels/lamacheck/pkg/metadata"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// Getter performs GET requests. [*fetch.Client] implements it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTP is the Source reading from remote repositories over HTTP.
type HTTP struct {
	client Getter
	logger *log.Logger
}

// NewHTTP returns an HTTP source using client. A nil logger discards output.
func NewHTTP(client Getter, logger *log.Logger) *HTTP {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &HTTP{client: client, logger: logger}
}

// FetchVersionIndex reads the artifact's maven-metadata.xml from repo.
// Versions excluded for the artifact never win.
func (h *HTTP) FetchVersionIndex(ctx context.Context, repo model.Repository, a *model.Artifact, bl *blacklist.Blacklist) (*metadata.VersionIndex, error) {
	data, err := h.get(ctx, repo, a.MetadataPath(), bl)
	if data == nil {
		return nil, err
	}
	idx, err := metadata.ParseVersionIndex(data, a.ExcludedVersions)
	if err != nil {
		h.logger.Debug("unusable version index", "artifact", a.ID(), "repo", repo.ID, "err", err)
		return nil, nil
	}
	return idx, nil
}

// FetchSnapshotIndex reads the per-version maven-metadata.xml of snapshot v.
func (h *HTTP) FetchSnapshotIndex(ctx context.Context, repo model.Repository, a *model.Artifact, v *version.Version, bl *blacklist.Blacklist) (*metadata.SnapshotIndex, error) {
	data, err := h.get(ctx, repo, a.VersionMetadataPath(v), bl)
	if data == nil {
		return nil, err
	}
	idx, err := metadata.ParseSnapshotIndex(data, a.ArtifactID)
	if err != nil {
		h.logger.Warn("unusable snapshot index", "artifact", a.ID(), "version", v.Original(), "repo", repo.ID, "err", err)
		return nil, nil
	}
	return idx, nil
}

// FetchDescriptor reads the POM of version v. Snapshot POMs are located
// through the snapshot index.
func (h *HTTP) FetchDescriptor(ctx context.Context, repo model.Repository, a *model.Artifact, v *version.Version, bl *blacklist.Blacklist) (*metadata.POM, error) {
	path := a.POMPath(v)
	if v.IsSnapshot() {
		snap, err := h.FetchSnapshotIndex(ctx, repo, a, v, bl)
		if snap == nil {
			return nil, err
		}
		path = a.VersionPath(v) + snap.Filename("", "pom")
	}

	data, err := h.get(ctx, repo, path, bl)
	if data == nil {
		return nil, err
	}
	pom, err := metadata.ParsePOM(data)
	if err != nil {
		h.logger.Error("failed to read descriptor", "artifact", a.ID(), "version", v.Original(), "repo", repo.ID, "err", err)
		return nil, nil
	}
	return pom, nil
}

// get fetches repo.URL+path. It returns nil data for every failure except
// context cancellation, blacklisting repo on connection-class errors.
func (h *HTTP) get(ctx context.Context, repo model.Repository, path string, bl *blacklist.Blacklist) ([]byte, error) {
	url := repo.URL + path
	if bl.Contains(repo.ID) {
		h.logger.Debug("skipping blacklisted repository", "repo", repo.ID, "url", url)
		return nil, nil
	}

	data, err := h.client.Get(ctx, url)
	switch {
	case err == nil:
		return data, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, fetch.ErrNotFound):
		h.logger.Debug("not found", "url", url)
	case fetch.IsConnectionError(err):
		h.logger.Error("failed to get content", "url", url, "err", err)
		if bl != nil {
			bl.Add(ctx, repo.ID, repo.URL)
		}
	default:
		h.logger.Warn("failed to get content", "url", url, "err", err)
	}
	return nil, nil
}

var _ Source = (*HTTP)(nil)
