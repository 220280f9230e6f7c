package game

import (
	"context"
	"sync"
)

// SnapshotStore keeps the snapshot of the current game so a restarted
// process can resume it.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, bool, error)
}

// Archive stores games that are finished for good.
type Archive interface {
	ArchiveGame(ctx context.Context, snap Snapshot) error
	FinishedGame(ctx context.Context, number uint64) (Snapshot, bool, error)
}

type MemorySnapshotStore struct {
	mu    sync.Mutex
	snap  Snapshot
	found bool
	saves int
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (s *MemorySnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.clone()
	s.found = true
	s.saves++
	return nil
}

func (s *MemorySnapshotStore) Load(ctx context.Context) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.found {
		return Snapshot{}, false, nil
	}
	return s.snap.clone(), true, nil
}

// Saves reports how many snapshots were written.
func (s *MemorySnapshotStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
