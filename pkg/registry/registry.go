// Package registry holds the tracked Maven artifacts and the known
// repositories.
//
// A [Registry] is safe for concurrent use by the update workers. Artifacts
// and repositories live in two independently locked stores; a lock is held
// for a single map mutation and never across a network call. Every reader
// receives a deep copy, so callers may keep or modify returned values freely.
//
// Mutators that are handed an id the registry does not know panic with an
// [errors.Error] of code UNKNOWN_ARTIFACT or UNKNOWN_REPOSITORY. Those are
// programming errors, not runtime conditions.
//
// # Persistence
//
// Mutations mark the registry dirty. [Registry.Flush] saves a dirty registry
// through its [Store]; between [Registry.Begin] and [Registry.End] saves are
// deferred so an update cycle is written once.
package registry

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/observability"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// Options configures a Registry.
type Options struct {
	Logger *log.Logger
	Clock  func() time.Time
}

// WithDefaults returns a copy of o with nil fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Registry is the in-memory artifact and repository registry.
type Registry struct {
	store  Store
	logger *log.Logger
	now    func() time.Time

	amu       sync.RWMutex
	artifacts map[string]*model.Artifact

	rmu   sync.RWMutex
	repos map[string]*model.Repository
	byURL map[string]string
	order []string

	bmu   sync.Mutex
	depth int
	dirty bool
}

// New returns an empty registry persisting to store. A nil store disables
// persistence.
func New(store Store, opts Options) *Registry {
	opts = opts.WithDefaults()
	return &Registry{
		store:     store,
		logger:    opts.Logger,
		now:       opts.Clock,
		artifacts: make(map[string]*model.Artifact),
		repos:     make(map[string]*model.Repository),
		byURL:     make(map[string]string),
	}
}

// =============================================================================
// Persistence
// =============================================================================

// Load replaces the registry contents with the store's snapshot. Central
// repositories are seeded when the snapshot has no repositories at all.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		r.seed()
		return nil
	}
	snap, err := r.store.Load(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "load registry")
	}
	if snap == nil {
		snap = &Snapshot{}
	}

	r.rmu.Lock()
	r.repos = make(map[string]*model.Repository, len(snap.Repositories))
	r.byURL = make(map[string]string, len(snap.Repositories))
	r.order = r.order[:0]
	for i := range snap.Repositories {
		repo := snap.Repositories[i]
		repo.URL = model.NormalizeURL(repo.URL)
		if repo.Layout == "" {
			repo.Layout = model.LayoutDefault
		}
		if _, ok := r.repos[repo.ID]; ok {
			r.logger.Warn("duplicate repository id in store", "repo", repo.ID)
			continue
		}
		if _, ok := r.byURL[repo.URL]; ok {
			r.logger.Warn("duplicate repository url in store", "repo", repo.ID, "url", repo.URL)
			continue
		}
		r.repos[repo.ID] = &repo
		r.byURL[repo.URL] = repo.ID
		r.order = append(r.order, repo.ID)
	}
	r.rmu.Unlock()

	r.amu.Lock()
	r.artifacts = make(map[string]*model.Artifact, len(snap.Artifacts))
	for i := range snap.Artifacts {
		a := snap.Artifacts[i].Clone()
		if a.LatestRelease != nil && !a.LatestRelease.IsRelease() {
			a.LatestRelease = nil
		}
		r.artifacts[a.ID()] = a
	}
	r.amu.Unlock()

	r.bmu.Lock()
	r.dirty = false
	r.bmu.Unlock()

	r.seed()
	r.logger.Debug("registry loaded", "artifacts", len(snap.Artifacts), "repositories", len(snap.Repositories))
	return nil
}

func (r *Registry) seed() {
	if r.RepositoryCount() > 0 {
		return
	}
	for _, repo := range model.SeedRepositories(r.now()) {
		_, _, _ = r.AddRepository(repo)
	}
}

// Save writes the registry to its store unconditionally.
func (r *Registry) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.bmu.Lock()
	r.dirty = false
	r.bmu.Unlock()

	if err := r.store.Save(ctx, r.Snapshot()); err != nil {
		r.markDirty()
		return errors.Wrap(errors.ErrCodeStorage, err, "save registry")
	}
	return nil
}

// Snapshot returns a copy of the registry contents. Artifacts are sorted by
// id, repositories are in registration order.
func (r *Registry) Snapshot() *Snapshot {
	snap := &Snapshot{Repositories: r.Repositories()}
	for _, a := range r.Artifacts() {
		snap.Artifacts = append(snap.Artifacts, *a)
	}
	return snap
}

// Begin starts a batch. Batches nest; saves are deferred until the
// outermost End.
func (r *Registry) Begin() {
	r.bmu.Lock()
	r.depth++
	r.bmu.Unlock()
}

// End closes a batch and saves the registry if it is the outermost batch
// and something changed.
func (r *Registry) End(ctx context.Context) error {
	r.bmu.Lock()
	if r.depth > 0 {
		r.depth--
	}
	r.bmu.Unlock()
	return r.Flush(ctx)
}

// Flush saves a dirty registry unless a batch is open.
func (r *Registry) Flush(ctx context.Context) error {
	r.bmu.Lock()
	pending := r.dirty && r.depth == 0
	r.bmu.Unlock()
	if !pending {
		return nil
	}
	return r.Save(ctx)
}

// Dirty reports whether the registry has unsaved changes.
func (r *Registry) Dirty() bool {
	r.bmu.Lock()
	defer r.bmu.Unlock()
	return r.dirty
}

func (r *Registry) markDirty() {
	r.bmu.Lock()
	r.dirty = true
	r.bmu.Unlock()
}

func audit(name string, fields ...any) {
	observability.Audit().Event(context.Background(), name, fields...)
}

// =============================================================================
// Artifacts
// =============================================================================

// AddArtifact registers groupID:artifactID. It returns the stored artifact
// and false when it is already present.
func (r *Registry) AddArtifact(groupID, artifactID string) (*model.Artifact, bool, error) {
	groupID, artifactID = strings.TrimSpace(groupID), strings.TrimSpace(artifactID)
	if err := errors.ValidateGroupID(groupID); err != nil {
		return nil, false, err
	}
	if err := errors.ValidateArtifactID(artifactID); err != nil {
		return nil, false, err
	}

	id := model.ArtifactID(groupID, artifactID)
	r.amu.Lock()
	if a, ok := r.artifacts[id]; ok {
		c := a.Clone()
		r.amu.Unlock()
		return c, false, nil
	}
	a := &model.Artifact{GroupID: groupID, ArtifactID: artifactID, Created: r.now()}
	r.artifacts[id] = a
	c := a.Clone()
	r.amu.Unlock()

	r.markDirty()
	audit("add-artifact", "artifact", id)
	return c, true, nil
}

// RemoveArtifact removes the artifact and reports whether it existed.
func (r *Registry) RemoveArtifact(id string) bool {
	r.amu.Lock()
	_, ok := r.artifacts[id]
	delete(r.artifacts, id)
	r.amu.Unlock()
	if !ok {
		return false
	}
	r.markDirty()
	audit("remove-artifact", "artifact", id)
	return true
}

// Artifact returns a copy of the artifact, or nil.
func (r *Registry) Artifact(id string) *model.Artifact {
	r.amu.RLock()
	defer r.amu.RUnlock()
	if a, ok := r.artifacts[id]; ok {
		return a.Clone()
	}
	return nil
}

// HasArtifact reports whether the artifact is registered.
func (r *Registry) HasArtifact(id string) bool {
	r.amu.RLock()
	defer r.amu.RUnlock()
	_, ok := r.artifacts[id]
	return ok
}

// ArtifactCount returns the number of registered artifacts.
func (r *Registry) ArtifactCount() int {
	r.amu.RLock()
	defer r.amu.RUnlock()
	return len(r.artifacts)
}

// Artifacts returns copies of all artifacts sorted by id.
func (r *Registry) Artifacts() []*model.Artifact {
	r.amu.RLock()
	out := make([]*model.Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a.Clone())
	}
	r.amu.RUnlock()
	slices.SortFunc(out, func(a, b *model.Artifact) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// AddDesiredRepository marks repoID as a repository the artifact is served
// from. It returns false when the repository is already desired.
func (r *Registry) AddDesiredRepository(artifactID, repoID string) bool {
	r.mustRepository(repoID)
	changed := r.updateArtifact(artifactID, func(a *model.Artifact) bool {
		if a.HasRepo(repoID) {
			return false
		}
		a.Repos = append(a.Repos, model.RepoState{RepoID: repoID})
		return true
	})
	if changed {
		audit("add-desired-repository", "artifact", artifactID, "repo", repoID)
	}
	return changed
}

// SetRepoVersions records the release and beta versions repoID reported for
// the artifact. A nil release stamps the repository's error time, a non-nil
// one its success time. The repository becomes desired if it was not.
func (r *Registry) SetRepoVersions(artifactID, repoID string, release, beta *version.Version, now time.Time) bool {
	r.mustRepository(repoID)
	var releaseChanged, betaChanged bool
	r.updateArtifact(artifactID, func(a *model.Artifact) bool {
		st := a.Repo(repoID)
		if st == nil {
			a.Repos = append(a.Repos, model.RepoState{RepoID: repoID})
			st = &a.Repos[len(a.Repos)-1]
		}
		releaseChanged = !st.Release.Equal(release)
		betaChanged = !st.Beta.Equal(beta)
		st.Release = release
		st.Beta = beta
		if release == nil {
			st.LastError = model.TimePtr(now)
		} else {
			st.LastSuccess = model.TimePtr(now)
		}
		return true
	})
	if releaseChanged {
		audit("update-latest-release-version", "artifact", artifactID, "repo", repoID, "version", release.Original())
	}
	if betaChanged {
		audit("update-latest-beta-version", "artifact", artifactID, "repo", repoID, "version", beta.Original())
	}
	return releaseChanged || betaChanged
}

// SetLatestRelease stores the artifact's winning release version. Clearing
// an existing value with nil is a contract violation.
func (r *Registry) SetLatestRelease(artifactID string, v *version.Version) bool {
	return r.setLatest(artifactID, v, "latest-release", func(a *model.Artifact) **version.Version { return &a.LatestRelease })
}

// SetLatestBeta stores the artifact's winning beta version. Clearing an
// existing value with nil is a contract violation.
func (r *Registry) SetLatestBeta(artifactID string, v *version.Version) bool {
	return r.setLatest(artifactID, v, "latest-beta", func(a *model.Artifact) **version.Version { return &a.LatestBeta })
}

func (r *Registry) setLatest(artifactID string, v *version.Version, event string, field func(*model.Artifact) **version.Version) bool {
	var old *version.Version
	changed := r.updateArtifact(artifactID, func(a *model.Artifact) bool {
		p := field(a)
		old = *p
		if v == nil && old != nil {
			errors.Violation(errors.ErrCodeInvalidInput, "%s of %s cannot be reset to nil", event, artifactID)
		}
		if old.Equal(v) {
			return false
		}
		*p = v
		return true
	})
	if changed {
		from := "null"
		if old != nil {
			from = old.Original()
		}
		audit(event, "artifact", artifactID, "from", from, "to", v.Original())
	}
	return changed
}

// SetPackaging stores the artifact's packaging. An unknown packaging never
// replaces a known one.
func (r *Registry) SetPackaging(artifactID string, p model.Packaging) bool {
	return r.updateArtifact(artifactID, func(a *model.Artifact) bool {
		if a.Packaging == p || (p == model.PackagingUnknown && a.Packaging != model.PackagingUnknown) {
			return false
		}
		a.Packaging = p
		return true
	})
}

// SetLastMetadataCheck stamps a successful version-index refresh.
func (r *Registry) SetLastMetadataCheck(artifactID string, t time.Time) bool {
	return r.updateArtifact(artifactID, func(a *model.Artifact) bool { return setTime(&a.LastMetadataCheck, t) })
}

// SetLastMetadataError stamps a refresh in which no repository answered.
func (r *Registry) SetLastMetadataError(artifactID string, t time.Time) bool {
	return r.updateArtifact(artifactID, func(a *model.Artifact) bool { return setTime(&a.LastMetadataError, t) })
}

// SetLastRepoSearchError stamps a repository search that found nothing.
func (r *Registry) SetLastRepoSearchError(artifactID string, t time.Time) bool {
	return r.updateArtifact(artifactID, func(a *model.Artifact) bool { return setTime(&a.LastRepoSearchError, t) })
}

// ExcludeVersion adds v to the artifact's exclusion list. Excluded versions
// are ignored in every version index read afterwards.
func (r *Registry) ExcludeVersion(artifactID, v string) bool {
	v = strings.TrimSpace(v)
	changed := r.updateArtifact(artifactID, func(a *model.Artifact) bool {
		if v == "" || slices.Contains(a.ExcludedVersions, v) {
			return false
		}
		a.ExcludedVersions = append(a.ExcludedVersions, v)
		slices.Sort(a.ExcludedVersions)
		return true
	})
	if changed {
		audit("exclude-version", "artifact", artifactID, "version", v)
	}
	return changed
}

// IncludeVersion removes v from the artifact's exclusion list.
func (r *Registry) IncludeVersion(artifactID, v string) bool {
	v = strings.TrimSpace(v)
	changed := r.updateArtifact(artifactID, func(a *model.Artifact) bool {
		i := slices.Index(a.ExcludedVersions, v)
		if i < 0 {
			return false
		}
		a.ExcludedVersions = slices.Delete(a.ExcludedVersions, i, i+1)
		return true
	})
	if changed {
		audit("include-version", "artifact", artifactID, "version", v)
	}
	return changed
}

// updateArtifact applies fn under the artifact write lock and marks the
// registry dirty when fn reports a change.
func (r *Registry) updateArtifact(id string, fn func(*model.Artifact) bool) bool {
	r.amu.Lock()
	a, ok := r.artifacts[id]
	if !ok {
		r.amu.Unlock()
		errors.Violation(errors.ErrCodeUnknownArtifact, "no such artifact: %s", id)
	}
	changed := func() bool {
		defer r.amu.Unlock()
		return fn(a)
	}()
	if changed {
		r.markDirty()
	}
	return changed
}

func setTime(dst **time.Time, t time.Time) bool {
	if *dst != nil && (*dst).Equal(t) {
		return false
	}
	*dst = model.TimePtr(t)
	return true
}

// =============================================================================
// Repositories
// =============================================================================

// AddRepository registers repo. Its URL is normalized and its creation time
// defaulted. Repositories with the legacy layout or a URL that is not
// http(s) are registered invalid. It returns false when the id or the URL
// is already known.
func (r *Registry) AddRepository(repo model.Repository) (*model.Repository, bool, error) {
	repo.ID = strings.TrimSpace(repo.ID)
	repo.URL = model.NormalizeURL(repo.URL)
	if err := errors.ValidateRepositoryID(repo.ID); err != nil {
		return nil, false, err
	}
	if repo.Layout == "" {
		repo.Layout = model.LayoutDefault
	}
	if repo.Created.IsZero() {
		repo.Created = r.now()
	}
	switch {
	case repo.IsLegacy():
		repo.Invalid, repo.Note = true, "Legacy repository layout is not supported"
	case errors.ValidateURL(repo.URL) != nil:
		repo.Invalid, repo.Note = true, "Invalid repository URL"
	}

	r.rmu.Lock()
	if existing, ok := r.repos[repo.ID]; ok {
		c := *existing
		r.rmu.Unlock()
		r.logger.Warn("repository id already registered", "repo", repo.ID, "url", repo.URL)
		return &c, false, nil
	}
	if id, ok := r.byURL[repo.URL]; ok {
		c := *r.repos[id]
		r.rmu.Unlock()
		r.logger.Warn("repository url already registered", "repo", id, "url", repo.URL)
		return &c, false, nil
	}
	stored := repo
	r.repos[repo.ID] = &stored
	r.byURL[repo.URL] = repo.ID
	r.order = append(r.order, repo.ID)
	r.rmu.Unlock()

	r.markDirty()
	audit("add-repository", "repo", repo.ID, "url", repo.URL, "layout", string(repo.Layout), "invalid", repo.Invalid)
	return &repo, true, nil
}

// SetInvalid changes the repository's invalid flag and note.
func (r *Registry) SetInvalid(repoID string, invalid bool, note string) bool {
	r.rmu.Lock()
	repo, ok := r.repos[repoID]
	if !ok {
		r.rmu.Unlock()
		errors.Violation(errors.ErrCodeUnknownRepository, "no such repository: %s", repoID)
	}
	if repo.Invalid == invalid && repo.Note == note {
		r.rmu.Unlock()
		return false
	}
	repo.Invalid, repo.Note = invalid, note
	r.rmu.Unlock()

	r.markDirty()
	audit("repository-invalid", "repo", repoID, "invalid", invalid, "note", note)
	return true
}

// Repository returns a copy of the repository, or nil.
func (r *Registry) Repository(id string) *model.Repository {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	if repo, ok := r.repos[id]; ok {
		c := *repo
		return &c
	}
	return nil
}

// RepositoryByURL returns a copy of the repository serving the normalized
// url, or nil.
func (r *Registry) RepositoryByURL(url string) *model.Repository {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	if id, ok := r.byURL[model.NormalizeURL(url)]; ok {
		c := *r.repos[id]
		return &c
	}
	return nil
}

// HasRepository reports whether the id is registered.
func (r *Registry) HasRepository(id string) bool {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	_, ok := r.repos[id]
	return ok
}

// HasRepositoryURL reports whether a repository with the normalized url is
// registered.
func (r *Registry) HasRepositoryURL(url string) bool {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	_, ok := r.byURL[model.NormalizeURL(url)]
	return ok
}

// RepositoryCount returns the number of registered repositories.
func (r *Registry) RepositoryCount() int {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	return len(r.repos)
}

// Repositories returns all repositories in registration order.
func (r *Registry) Repositories() []model.Repository {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	out := make([]model.Repository, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.repos[id])
	}
	return out
}

// UsableRepositories returns the valid, non-legacy repositories in
// registration order.
func (r *Registry) UsableRepositories() []model.Repository {
	var out []model.Repository
	for _, repo := range r.Repositories() {
		if repo.Usable() {
			out = append(out, repo)
		}
	}
	return out
}

// UsableDesiredRepositories returns the usable repositories the artifact is
// served from: central repositories first, then the order in which they
// were desired.
func (r *Registry) UsableDesiredRepositories(artifactID string) []model.Repository {
	a := r.Artifact(artifactID)
	if a == nil {
		errors.Violation(errors.ErrCodeUnknownArtifact, "no such artifact: %s", artifactID)
	}

	r.rmu.RLock()
	out := make([]model.Repository, 0, len(a.Repos))
	for _, st := range a.Repos {
		if repo, ok := r.repos[st.RepoID]; ok && repo.Usable() {
			out = append(out, *repo)
		}
	}
	r.rmu.RUnlock()

	slices.SortStableFunc(out, func(x, y model.Repository) int {
		switch {
		case x.IsCentral() == y.IsCentral():
			return 0
		case x.IsCentral():
			return -1
		default:
			return 1
		}
	})
	return out
}

// ArtifactCountPerRepository returns, for every registered repository, the
// number of artifacts desiring it.
func (r *Registry) ArtifactCountPerRepository() map[string]int {
	r.rmu.RLock()
	counts := make(map[string]int, len(r.repos))
	for id := range r.repos {
		counts[id] = 0
	}
	r.rmu.RUnlock()

	r.amu.RLock()
	defer r.amu.RUnlock()
	for _, a := range r.artifacts {
		for _, st := range a.Repos {
			if _, ok := counts[st.RepoID]; ok {
				counts[st.RepoID]++
			}
		}
	}
	return counts
}

func (r *Registry) mustRepository(id string) {
	if !r.HasRepository(id) {
		errors.Violation(errors.ErrCodeUnknownRepository, "no such repository: %s", id)
	}
}
