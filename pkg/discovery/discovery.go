// Package discovery folds the references of fetched POMs back into the
// registry.
//
// During the first wave of an update cycle every successfully fetched
// descriptor is handed to a [Handler]. Once the wave is done, [Handler.Register]
// adds the artifacts and repositories those descriptors mention and returns
// what was new, so the engine can resolve it in a second wave.
package discovery

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lamacheck/pkg/metadata"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/registry"
)

// Handler collects descriptors. It is safe for concurrent use.
type Handler struct {
	mu     sync.Mutex
	poms   []*metadata.POM
	logger *log.Logger
}

// New returns an empty Handler. A nil logger discards output.
func New(logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Handler{logger: logger}
}

// Add queues a descriptor for registration. Nil descriptors are ignored.
func (h *Handler) Add(pom *metadata.POM) {
	if pom == nil {
		return
	}
	h.mu.Lock()
	h.poms = append(h.poms, pom)
	h.mu.Unlock()
}

// Len returns the number of queued descriptors.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.poms)
}

// Register adds every new artifact and repository referenced by the queued
// descriptors to reg and returns their ids in discovery order. The queue is
// drained.
func (h *Handler) Register(reg *registry.Registry) (newArtifacts, newRepos []string) {
	h.mu.Lock()
	poms := h.poms
	h.poms = nil
	h.mu.Unlock()

	for _, pom := range poms {
		artifacts, repos := pom.References()
		for _, c := range artifacts {
			if id, ok := h.addArtifact(reg, c); ok {
				newArtifacts = append(newArtifacts, id)
			}
		}
		for _, r := range repos {
			if id, ok := h.addRepository(reg, r); ok {
				newRepos = append(newRepos, id)
			}
		}
	}
	if len(newArtifacts) > 0 || len(newRepos) > 0 {
		h.logger.Info("discovered new entities", "descriptors", len(poms), "artifacts", len(newArtifacts), "repos", len(newRepos))
	}
	return newArtifacts, newRepos
}

func (h *Handler) addArtifact(reg *registry.Registry, c metadata.Coordinate) (string, bool) {
	if c.Unresolved() || c.GroupID == "" || c.ArtifactID == "" {
		return "", false
	}
	a, added, err := reg.AddArtifact(c.GroupID, c.ArtifactID)
	if err != nil {
		h.logger.Debug("skipping artifact reference", "ref", c.ID(), "err", err)
		return "", false
	}
	if !added {
		return "", false
	}
	h.logger.Debug("found new artifact", "artifact", a.ID())
	return a.ID(), true
}

func (h *Handler) addRepository(reg *registry.Registry, r metadata.Repository) (string, bool) {
	url := model.NormalizeURL(r.URL)
	if url == "" || strings.Contains(url, "${") || reg.HasRepositoryURL(url) {
		return "", false
	}

	base := model.SanitizeID(r.ID)
	if base == "" {
		base = model.RepositoryIDFromURL(url)
	}
	if base == "" {
		h.logger.Debug("skipping repository reference without usable id", "url", url)
		return "", false
	}
	id := base
	for i := 0; reg.HasRepository(id); i++ {
		id = base + strconv.Itoa(i)
	}

	repo, added, err := reg.AddRepository(model.Repository{ID: id, URL: url, Layout: model.ParseLayout(r.Layout)})
	if err != nil {
		h.logger.Debug("skipping repository reference", "id", id, "url", url, "err", err)
		return "", false
	}
	if !added {
		return "", false
	}
	h.logger.Debug("found new repository", "repo", repo.ID, "url", repo.URL, "declared", r.ID)
	return repo.ID, true
}
