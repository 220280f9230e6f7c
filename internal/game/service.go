package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service owns the coordinator and connects it to storage and live clients:
//   - restores the current game from the snapshot store on start
//   - saves a snapshot after every mutation
//   - hands finished games to the archive
//   - pushes state to websocket clients
type Service struct {
	coord   *Coordinator
	persist SnapshotStore
	archive Archive
	hub     *Hub
	log     *slog.Logger

	ioTimeout time.Duration
}

type ServiceDeps struct {
	Persist SnapshotStore
	Archive Archive // optional
	Logger  *slog.Logger
}

func NewService(ctx context.Context, cfg Config, deps ServiceDeps, opts ...Option) (*Service, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	persist := deps.Persist
	if persist == nil {
		persist = NewMemorySnapshotStore()
	}
	s := &Service{
		persist:   persist,
		archive:   deps.Archive,
		hub:       NewHub(),
		log:       log,
		ioTimeout: 5 * time.Second,
	}

	opts = append([]Option{WithLogger(log)}, opts...)
	opts = append(opts, WithOnPersist(s.onPersist), WithOnArchive(s.onArchive))
	coord, err := NewCoordinator(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.coord = coord

	snap, found, err := persist.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if found {
		if err := coord.Restore(snap); err != nil {
			return nil, err
		}
		log.Info("game restored", "game", snap.GameNumber, "phase", snap.Phase.String(), "round", snap.CurrentRound)
		return s, nil
	}

	if err := persist.Save(ctx, coord.Snapshot()); err != nil {
		return nil, fmt.Errorf("save initial snapshot: %w", err)
	}
	return s, nil
}

func (s *Service) Coordinator() *Coordinator { return s.coord }

func (s *Service) Hub() *Hub { return s.hub }

// FinishedGame looks in the in-memory history first and falls back to the
// archive.
func (s *Service) FinishedGame(ctx context.Context, number uint64) (Snapshot, error) {
	snap, err := s.coord.FinishedGame(number)
	if err == nil || s.archive == nil {
		return snap, err
	}
	snap, found, aerr := s.archive.FinishedGame(ctx, number)
	if aerr != nil {
		return Snapshot{}, fmt.Errorf("archive: %w", aerr)
	}
	if !found {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) onPersist(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ioTimeout)
	defer cancel()
	if err := s.persist.Save(ctx, snap); err != nil {
		s.log.Error("snapshot save failed", "game", snap.GameNumber, "err", err)
	}
	s.hub.Broadcast(Envelope{Type: "state", Payload: mustJSON(snap)})
}

func (s *Service) onArchive(snap Snapshot) {
	s.hub.Broadcast(Envelope{Type: "game_finished", Payload: mustJSON(snap)})
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.ioTimeout)
	defer cancel()
	if err := s.archive.ArchiveGame(ctx, snap); err != nil {
		s.log.Error("archive game failed", "game", snap.GameNumber, "err", err)
		return
	}
	s.log.Info("game archived", "game", snap.GameNumber, "phase", snap.Phase.String())
}
