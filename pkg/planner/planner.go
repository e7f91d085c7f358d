// Package planner decides which artifacts and repositories an update cycle
// has to visit.
//
// Planning is a pure function of the registry contents and the current
// time. An artifact without any usable repository is searched for in every
// repository; an artifact with repositories is refreshed when its last
// successful check is old enough; a valid repository that no artifact uses
// yet is searched for known artifacts.
package planner

import (
	"time"

	"github.com/matzehuels/lamacheck/pkg/model"
)

// Default staleness thresholds.
const (
	DefaultNewArtifact = 72 * time.Hour
	DefaultRefresh     = 48 * time.Hour
)

// Thresholds configures how old a timestamp must be before work is
// scheduled again. Ages are compared strictly: an artifact checked exactly
// Refresh ago is not refreshed yet.
type Thresholds struct {
	NewArtifact time.Duration `toml:"new_artifact" yaml:"new_artifact"`
	Refresh     time.Duration `toml:"refresh" yaml:"refresh"`
}

// WithDefaults returns a copy of t with zero fields replaced by defaults.
func (t Thresholds) WithDefaults() Thresholds {
	if t.NewArtifact <= 0 {
		t.NewArtifact = DefaultNewArtifact
	}
	if t.Refresh <= 0 {
		t.Refresh = DefaultRefresh
	}
	return t
}

// Plan is the work list of one cycle.
type Plan struct {
	Search   []string // artifact ids to look up in every repository
	Refresh  []string // artifact ids whose version indexes are re-read
	Discover []string // repository ids to probe for known artifacts
}

// Empty reports whether the plan contains no work.
func (p Plan) Empty() bool {
	return len(p.Search) == 0 && len(p.Refresh) == 0 && len(p.Discover) == 0
}

// Len returns the total number of planned tasks.
func (p Plan) Len() int {
	return len(p.Search) + len(p.Refresh) + len(p.Discover)
}

// Build computes the plan for artifacts and repos at now. Output order
// follows input order.
func Build(artifacts []*model.Artifact, repos []model.Repository, now time.Time, th Thresholds) Plan {
	th = th.WithDefaults()

	byID := make(map[string]model.Repository, len(repos))
	counts := make(map[string]int, len(repos))
	for _, r := range repos {
		byID[r.ID] = r
		counts[r.ID] = 0
	}

	var p Plan
	for _, a := range artifacts {
		usable := 0
		for _, st := range a.Repos {
			if r, ok := byID[st.RepoID]; ok {
				counts[r.ID]++
				if r.Usable() {
					usable++
				}
			}
		}

		if usable == 0 {
			if olderThan(a.LastRepoSearchError, now, th.NewArtifact) {
				p.Search = append(p.Search, a.ID())
			}
			continue
		}
		if olderThan(a.LastMetadataCheck, now, th.Refresh) {
			p.Refresh = append(p.Refresh, a.ID())
		}
	}

	for _, r := range repos {
		if r.Valid() && counts[r.ID] == 0 {
			p.Discover = append(p.Discover, r.ID)
		}
	}
	return p
}

// olderThan reports whether t is unset or lies strictly more than d before now.
func olderThan(t *time.Time, now time.Time, d time.Duration) bool {
	return t == nil || now.Sub(*t) > d
}
