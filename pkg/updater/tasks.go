package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/lamacheck/pkg/metadata"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// refresh re-reads the version indexes of one artifact from its desired
// repositories and reconciles the reported versions with the stored ones.
func (c *cycle) refresh(ctx context.Context, id string) error {
	a := c.reg.Artifact(id)
	if a == nil {
		return nil
	}
	repos := c.reg.UsableDesiredRepositories(id)
	if len(repos) == 0 {
		return nil
	}

	indexes := make([]*metadata.VersionIndex, len(repos))
	for i, repo := range repos {
		idx, err := c.src.FetchVersionIndex(ctx, repo, a, c.bl)
		if err != nil {
			return err
		}
		indexes[i] = idx
	}
	return c.apply(ctx, a, repos, indexes)
}

// apply records the version indexes read from repos (indexes[i] belongs to
// repos[i], nil when the repository had none) and moves the artifact's
// latest versions forward.
func (c *cycle) apply(ctx context.Context, a *model.Artifact, repos []model.Repository, indexes []*metadata.VersionIndex) error {
	id := a.ID()
	now := c.opts.Clock()
	var release, beta *version.Version
	for i, repo := range repos {
		var r, b *version.Version
		if idx := indexes[i]; idx != nil {
			r, b = idx.LatestRelease, idx.Latest
		}
		c.reg.SetRepoVersions(id, repo.ID, r, b, now)
		release = version.Max(release, r)
		beta = version.Max(beta, b)
	}

	if release == nil && beta == nil {
		c.logger.Warn("no repository reported a version", "artifact", id, "repos", len(repos))
		c.reg.SetLastMetadataError(id, now)
		return nil
	}
	c.reg.SetLastMetadataCheck(id, now)

	packaging := a.Packaging
	changed := false

	if release != nil {
		winner, ok := c.reconcile(a, a.LatestRelease, release, indexes, true)
		if ok {
			c.reg.SetLatestRelease(id, winner)
			changed = true
			pom, err := c.descriptor(ctx, a, repos, indexes, winner, true)
			if err != nil {
				return err
			}
			if pom != nil {
				c.disc.Add(pom)
				packaging = packagingOf(a, pom)
				c.reg.SetPackaging(id, packaging)
			}
		}
	}

	if beta != nil && !beta.Equal(release) {
		winner, ok := c.reconcile(a, a.LatestBeta, beta, indexes, false)
		if ok {
			c.reg.SetLatestBeta(id, winner)
			changed = true
		}
		if ok || winner.IsSnapshot() {
			pom, err := c.descriptor(ctx, a, repos, indexes, winner, false)
			if err != nil {
				return err
			}
			if pom != nil {
				c.disc.Add(pom)
				if !packaging.Known() {
					c.reg.SetPackaging(id, packagingOf(a, pom))
				}
			}
		}
	}

	if changed {
		c.updated.Add(1)
	}
	c.logger.Debug("finished checking", "artifact", id, "changed", changed)
	return nil
}

// reconcile picks the new latest version from the stored one and the
// candidate reported by the repositories. It reports false when the stored
// version stays. Unless downgrades are allowed a candidate lower than the
// stored version loses; an excluded stored version never wins.
func (c *cycle) reconcile(a *model.Artifact, stored, candidate *version.Version, indexes []*metadata.VersionIndex, release bool) (*version.Version, bool) {
	current := stored
	if a.IsExcluded(current) {
		current = nil
	}
	winner := candidate
	if !c.opts.AllowDowngrade {
		winner = version.Max(current, candidate)
	}
	if winner.Equal(stored) {
		return winner, false
	}

	kind := "beta"
	if release {
		kind = "release"
	}
	if stored != nil && stored.GreaterThan(winner) {
		c.logger.Warn("downgrading latest version", "artifact", a.ID(), "kind", kind, "from", stored.Original(), "to", winner.Original())
		return winner, true
	}
	newer := make(map[string]bool)
	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		for _, v := range idx.NewerThan(current, release) {
			newer[v.Original()] = true
		}
	}
	c.logger.Info("latest version changed", "artifact", a.ID(), "kind", kind, "from", stored.Original(), "to", winner.Original(), "newer", len(newer))
	return winner, true
}

// descriptor fetches the POM of v from the first repository reporting v as
// its latest release (or latest version for betas), central first.
func (c *cycle) descriptor(ctx context.Context, a *model.Artifact, repos []model.Repository, indexes []*metadata.VersionIndex, v *version.Version, release bool) (*metadata.POM, error) {
	for i, repo := range repos {
		idx := indexes[i]
		if idx == nil {
			continue
		}
		reported := idx.Latest
		if release {
			reported = idx.LatestRelease
		}
		if !reported.Equal(v) {
			continue
		}
		pom, err := c.src.FetchDescriptor(ctx, repo, a, v, c.bl)
		if err != nil {
			return nil, err
		}
		if pom != nil {
			return pom, nil
		}
	}
	c.logger.Warn("failed to resolve descriptor", "artifact", a.ID(), "version", v.Original())
	return nil, nil
}

// search looks for an artifact without usable repositories in every usable
// repository.
func (c *cycle) search(ctx context.Context, id string) error {
	a := c.reg.Artifact(id)
	if a == nil {
		return nil
	}
	repos := c.reg.UsableRepositories()
	c.logger.Debug("searching repositories", "artifact", id, "repos", len(repos), "blacklisted", c.bl.Len())

	now := c.opts.Clock()
	found := make(map[string]*metadata.VersionIndex)
	for _, repo := range repos {
		if c.bl.Contains(repo.ID) {
			continue
		}
		idx, err := c.src.FetchVersionIndex(ctx, repo, a, c.bl)
		if err != nil {
			return err
		}
		if idx == nil {
			continue
		}
		found[repo.ID] = idx
		if c.reg.AddDesiredRepository(id, repo.ID) {
			c.logger.Info("found repository for artifact", "artifact", id, "repo", repo.ID)
		}
	}
	if len(found) == 0 {
		c.reg.SetLastRepoSearchError(id, now)
		return nil
	}

	// Reconcile right away so the next cycle has nothing left to catch up on.
	desired := c.reg.UsableDesiredRepositories(id)
	indexes := make([]*metadata.VersionIndex, len(desired))
	for i, repo := range desired {
		indexes[i] = found[repo.ID]
	}
	return c.apply(ctx, a, desired, indexes)
}

// discover looks for every known artifact in a repository no artifact uses
// yet. A repository containing none of them is set invalid.
func (c *cycle) discover(ctx context.Context, repoID string) error {
	repo := c.reg.Repository(repoID)
	if repo == nil || !repo.Usable() {
		return nil
	}
	artifacts := c.reg.Artifacts()
	c.logger.Info("searching artifacts in repository", "repo", repoID, "url", repo.URL, "artifacts", len(artifacts))

	now := c.opts.Clock()
	count := 0
	for _, a := range artifacts {
		idx, err := c.src.FetchVersionIndex(ctx, *repo, a, c.bl)
		if err != nil {
			return err
		}
		if idx == nil {
			continue
		}
		count++
		if c.reg.AddDesiredRepository(a.ID(), repoID) {
			c.logger.Debug("found artifact in repository", "artifact", a.ID(), "repo", repoID)
		}
		c.reg.SetRepoVersions(a.ID(), repoID, idx.LatestRelease, idx.Latest, now)
	}

	c.logger.Info("finished repository search", "repo", repoID, "found", count)
	if count == 0 && len(artifacts) > 0 && !c.bl.Contains(repoID) {
		c.reg.SetInvalid(repoID, true, fmt.Sprintf("Found no artifacts. Last update %s", now.Format(time.RFC3339)))
	}
	return nil
}

func packagingOf(a *model.Artifact, pom *metadata.POM) model.Packaging {
	if a.IsStandardPlugin() {
		return model.PackagingMavenPlugin
	}
	return model.ParsePackaging(pom.PackagingOrDefault())
}
