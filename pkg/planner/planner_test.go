package planner

import (
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/lamacheck/pkg/model"
)

func TestBuild(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time { return model.TimePtr(now.Add(-d)) }

	repos := []model.Repository{
		{ID: model.CentralID1, Layout: model.LayoutDefault},
		{ID: "dead", Layout: model.LayoutDefault, Invalid: true},
		{ID: "unused", Layout: model.LayoutDefault},
		{ID: "unused-invalid", Layout: model.LayoutDefault, Invalid: true},
	}
	central := []model.RepoState{{RepoID: model.CentralID1}}

	tests := []struct {
		name     string
		artifact model.Artifact
		search   bool
		refresh  bool
	}{
		{"new, never searched", model.Artifact{ArtifactID: "a1"}, true, false},
		{"search failed recently", model.Artifact{ArtifactID: "a2", LastRepoSearchError: ago(24 * time.Hour)}, false, false},
		{"search failed exactly at threshold", model.Artifact{ArtifactID: "a3", LastRepoSearchError: ago(72 * time.Hour)}, false, false},
		{"search failed long ago", model.Artifact{ArtifactID: "a4", LastRepoSearchError: ago(73 * time.Hour)}, true, false},
		{"only invalid repos", model.Artifact{ArtifactID: "a5", Repos: []model.RepoState{{RepoID: "dead"}}}, true, false},
		{"never checked", model.Artifact{ArtifactID: "a6", Repos: central}, false, true},
		{"checked recently", model.Artifact{ArtifactID: "a7", Repos: central, LastMetadataCheck: ago(time.Hour)}, false, false},
		{"checked exactly at threshold", model.Artifact{ArtifactID: "a8", Repos: central, LastMetadataCheck: ago(48 * time.Hour)}, false, false},
		{"checked long ago", model.Artifact{ArtifactID: "a9", Repos: central, LastMetadataCheck: ago(49 * time.Hour)}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.artifact
			a.GroupID = "g"
			p := Build([]*model.Artifact{&a}, repos, now, Thresholds{})

			if got := slices.Contains(p.Search, a.ID()); got != tt.search {
				t.Errorf("search = %v, want %v", got, tt.search)
			}
			if got := slices.Contains(p.Refresh, a.ID()); got != tt.refresh {
				t.Errorf("refresh = %v, want %v", got, tt.refresh)
			}
		})
	}
}

func TestBuildDiscover(t *testing.T) {
	now := time.Now()
	repos := []model.Repository{
		{ID: model.CentralID1, Layout: model.LayoutDefault},
		{ID: "dead", Layout: model.LayoutDefault, Invalid: true},
		{ID: "unused", Layout: model.LayoutDefault},
		{ID: "secondary", Layout: model.LayoutDefault},
	}
	artifacts := []*model.Artifact{
		{GroupID: "g", ArtifactID: "a", Repos: []model.RepoState{{RepoID: model.CentralID1}}},
		{GroupID: "g", ArtifactID: "b", Repos: []model.RepoState{{RepoID: "secondary"}}},
	}

	p := Build(artifacts, repos, now, Thresholds{})
	if want := []string{"unused"}; !slices.Equal(p.Discover, want) {
		t.Errorf("Discover = %v, want %v", p.Discover, want)
	}
	if p.Len() != 3 || p.Empty() {
		t.Errorf("Len() = %d, Empty() = %v", p.Len(), p.Empty())
	}
}

func TestCustomThresholds(t *testing.T) {
	now := time.Now()
	repos := []model.Repository{{ID: model.CentralID1, Layout: model.LayoutDefault}}
	a := &model.Artifact{
		GroupID:           "g",
		ArtifactID:        "a",
		Repos:             []model.RepoState{{RepoID: model.CentralID1}},
		LastMetadataCheck: model.TimePtr(now.Add(-2 * time.Hour)),
	}

	if p := Build([]*model.Artifact{a}, repos, now, Thresholds{Refresh: time.Hour}); len(p.Refresh) != 1 {
		t.Errorf("Refresh = %v, want the artifact", p.Refresh)
	}
	if p := Build([]*model.Artifact{a}, repos, now, Thresholds{}); len(p.Refresh) != 0 {
		t.Errorf("Refresh = %v, want none with default thresholds", p.Refresh)
	}
}

func TestThresholdsWithDefaults(t *testing.T) {
	got := Thresholds{}.WithDefaults()
	if got.NewArtifact != DefaultNewArtifact || got.Refresh != DefaultRefresh {
		t.Errorf("WithDefaults() = %+v", got)
	}
}
