package registry

import (
	"context"
	"sync"

	"github.com/matzehuels/lamacheck/pkg/model"
)

// Snapshot is the persisted form of a registry.
type Snapshot struct {
	Artifacts    []model.Artifact   `json:"artifacts"`
	Repositories []model.Repository `json:"repositories"`
}

// Store persists registry snapshots.
//
// Load returns an empty snapshot (not an error) when nothing has been saved
// yet. Implementations must be safe for concurrent use.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// MemoryStore keeps the last saved snapshot in memory. It is used for dry
// runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

// NewMemoryStore returns a MemoryStore holding snap, which may be nil.
func NewMemoryStore(snap *Snapshot) *MemoryStore {
	return &MemoryStore{snap: cloneSnapshot(snap)}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return &Snapshot{}, nil
	}
	return cloneSnapshot(s.snap), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = cloneSnapshot(snap)
	s.saves++
	return nil
}

// Saves returns how often Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	if snap == nil {
		return nil
	}
	c := &Snapshot{
		Artifacts:    make([]model.Artifact, len(snap.Artifacts)),
		Repositories: append([]model.Repository(nil), snap.Repositories...),
	}
	for i := range snap.Artifacts {
		c.Artifacts[i] = *snap.Artifacts[i].Clone()
	}
	return c
}

var _ Store = (*MemoryStore)(nil)
