package game

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Closer advances games whose deadline passed without anyone calling in. It
// acts with the relayer capability.
type Closer struct {
	coord      *Coordinator
	capability Capability
	interval   time.Duration
	log        *slog.Logger
}

func NewCloser(coord *Coordinator, relayer common.Address, interval time.Duration, log *slog.Logger) *Closer {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Closer{
		coord:      coord,
		capability: Capability{Caller: relayer, Role: RoleRelayer},
		interval:   interval,
		log:        log,
	}
}

// Run ticks until ctx is done.
func (c *Closer) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	c.log.Info("round closer started", "interval", c.interval, "relayer", c.capability.Caller.Hex())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := c.Tick(ctx); err != nil {
				c.log.Error("round close failed", "err", err)
			}
		}
	}
}

// Tick applies the transition that is due, if any. Losing a race against a
// player call that already advanced the game is not an error.
func (c *Closer) Tick(ctx context.Context) error {
	snap := c.coord.Snapshot()
	deadline := snap.Deadline()
	if deadline.IsZero() || c.coord.Now().Before(deadline) {
		return nil
	}

	var err error
	switch snap.Phase {
	case PhaseCommit, PhaseReveal:
		err = c.coord.CloseRound(ctx, c.capability, snap.CurrentRound)
	case PhaseLobby:
		_, err = c.coord.Sync(ctx)
	}
	if errors.Is(err, ErrWrongPhase) || errors.Is(err, ErrRoundMismatch) || errors.Is(err, ErrDeadlineNotReached) {
		c.log.Debug("round already advanced", "game", snap.GameNumber, "round", snap.CurrentRound)
		return nil
	}
	return err
}
