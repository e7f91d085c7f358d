package model

import (
	"slices"
	"strings"
	"time"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// MetadataFile is the name of Maven's version-index document.
const MetadataFile = "maven-metadata.xml"

// Artifact is a tracked groupId:artifactId pair.
type Artifact struct {
	GroupID    string    `json:"group_id"`
	ArtifactID string    `json:"artifact_id"`
	Packaging  Packaging `json:"packaging,omitempty"`

	// Repos holds one entry per desired repository, in registration order.
	Repos []RepoState `json:"repos,omitempty"`

	LatestRelease    *version.Version `json:"latest_release,omitempty"`
	LatestBeta       *version.Version `json:"latest_beta,omitempty"`
	ExcludedVersions []string         `json:"excluded_versions,omitempty"`

	LastMetadataCheck   *time.Time `json:"last_metadata_check,omitempty"`
	LastMetadataError   *time.Time `json:"last_metadata_error,omitempty"`
	LastRepoSearchError *time.Time `json:"last_repo_search_error,omitempty"`

	Created time.Time `json:"created"`
}

// RepoState is the version state of one artifact in one repository.
type RepoState struct {
	RepoID      string           `json:"repo_id"`
	Release     *version.Version `json:"release,omitempty"`
	Beta        *version.Version `json:"beta,omitempty"`
	LastSuccess *time.Time       `json:"last_success,omitempty"`
	LastError   *time.Time       `json:"last_error,omitempty"`
}

// ArtifactID builds the "groupId:artifactId" id of an artifact.
func ArtifactID(groupID, artifactID string) string {
	return groupID + ":" + artifactID
}

// ID returns "groupId:artifactId".
func (a *Artifact) ID() string { return ArtifactID(a.GroupID, a.ArtifactID) }

// ArtifactPath returns the repository-relative directory of the artifact,
// e.g. "org/apache/commons/commons-lang3/".
func (a *Artifact) ArtifactPath() string {
	return strings.ReplaceAll(a.GroupID, ".", "/") + "/" + a.ArtifactID + "/"
}

// MetadataPath returns the path of the artifact's version index.
func (a *Artifact) MetadataPath() string { return a.ArtifactPath() + MetadataFile }

// VersionPath returns the directory of one version.
func (a *Artifact) VersionPath(v *version.Version) string {
	return a.ArtifactPath() + v.Original() + "/"
}

// VersionMetadataPath returns the path of a version's own index, which
// lists the timestamped files of a snapshot.
func (a *Artifact) VersionMetadataPath(v *version.Version) string {
	return a.VersionPath(v) + MetadataFile
}

// POMFilename returns "artifactId-version.pom".
func (a *Artifact) POMFilename(v *version.Version) string {
	return a.ArtifactID + "-" + v.Original() + ".pom"
}

// POMPath returns the path of a version's POM.
func (a *Artifact) POMPath(v *version.Version) string {
	return a.VersionPath(v) + a.POMFilename(v)
}

// IsStandardPlugin reports whether the artifact id follows the Maven plugin
// naming convention.
func (a *Artifact) IsStandardPlugin() bool {
	id := a.ArtifactID
	return strings.HasSuffix(id, "-maven-plugin") ||
		(strings.HasPrefix(id, "maven-") && strings.HasSuffix(id, "-plugin"))
}

// IsPlugin reports whether the artifact is a Maven plugin by name or packaging.
func (a *Artifact) IsPlugin() bool {
	return a.IsStandardPlugin() || a.Packaging == PackagingMavenPlugin
}

// IsExcluded reports whether v is on the artifact's exclusion list.
// Membership is by original string.
func (a *Artifact) IsExcluded(v *version.Version) bool {
	return v != nil && slices.Contains(a.ExcludedVersions, v.Original())
}

// Repo returns the state for repoID, or nil when the repository is not desired.
func (a *Artifact) Repo(repoID string) *RepoState {
	for i := range a.Repos {
		if a.Repos[i].RepoID == repoID {
			return &a.Repos[i]
		}
	}
	return nil
}

// HasRepo reports whether repoID is a desired repository of the artifact.
func (a *Artifact) HasRepo(repoID string) bool { return a.Repo(repoID) != nil }

// PURL returns the package URL of the artifact, pinned to the latest release
// when one is known.
func (a *Artifact) PURL() string {
	var v string
	if a.LatestRelease != nil {
		v = a.LatestRelease.Original()
	}
	return packageurl.NewPackageURL(packageurl.TypeMaven, a.GroupID, a.ArtifactID, v, nil, "").ToString()
}

// Clone returns a deep copy of a. Versions are immutable and shared.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Repos = make([]RepoState, len(a.Repos))
	for i, r := range a.Repos {
		r.LastSuccess = cloneTime(r.LastSuccess)
		r.LastError = cloneTime(r.LastError)
		c.Repos[i] = r
	}
	c.ExcludedVersions = slices.Clone(a.ExcludedVersions)
	c.LastMetadataCheck = cloneTime(a.LastMetadataCheck)
	c.LastMetadataError = cloneTime(a.LastMetadataError)
	c.LastRepoSearchError = cloneTime(a.LastRepoSearchError)
	return &c
}

// ParseCoordinate accepts "groupId:artifactId" or a Maven package URL
// ("pkg:maven/groupId/artifactId[@version]") and returns its two parts.
// Plain coordinates are validated, package URL parts are left to the registry.
func ParseCoordinate(s string) (groupID, artifactID string, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "pkg:") {
		p, err := packageurl.FromString(s)
		if err != nil {
			return "", "", errors.Wrap(errors.ErrCodeInvalidCoordinate, err, "parse package url %q", s)
		}
		if p.Type != packageurl.TypeMaven {
			return "", "", errors.New(errors.ErrCodeInvalidCoordinate, "package url %q is not of type maven", s)
		}
		return p.Namespace, p.Name, nil
	}
	return errors.ValidateCoordinate(s)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
