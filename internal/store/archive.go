package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/degenpizza/internal/game"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrBadTotal = errors.New("stored total score is not a decimal integer")

// Archive keeps finished games and the per-player totals derived from them.
type Archive interface {
	game.Archive
	PlayerStats(ctx context.Context, player common.Address) (PlayerStats, error)
	Close() error
}

type PlayerStats struct {
	Player         common.Address `json:"player"`
	GamesPlayed    int64          `json:"gamesPlayed"`
	RoundsRevealed int64          `json:"roundsRevealed"`
	TotalScore     *uint256.Int   `json:"totalScore"`
	TotalPayout    *uint256.Int   `json:"totalPayout"` // wei won in ended games
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// statsDelta is what one finished game adds to a player's totals.
type statsDelta struct {
	player   common.Address
	revealed int64
	score    *uint256.Int
	payout   *uint256.Int
}

// deltasOf lists the contribution of every player still in the game when it
// ended. Cancelled games never played a round and contribute nothing.
func deltasOf(snap game.Snapshot) []statsDelta {
	if snap.Phase != game.PhaseEnded {
		return nil
	}
	out := make([]statsDelta, 0, len(snap.Players))
	for _, addr := range snap.Players {
		ps, ok := snap.Player(addr)
		if !ok || !ps.Alive {
			continue
		}
		d := statsDelta{player: addr, score: new(uint256.Int), payout: new(uint256.Int)}
		if ps.Score != nil {
			d.score.Set(ps.Score)
		}
		if ps.Payout != nil {
			d.payout.Set(ps.Payout)
		}
		for _, e := range ps.History {
			if e.Revealed {
				d.revealed++
			}
		}
		out = append(out, d)
	}
	return out
}

// addTotal adds delta to a total stored as a decimal string.
func addTotal(stored string, delta *uint256.Int) (string, error) {
	total, err := uint256.FromDecimal(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadTotal, stored)
	}
	if _, overflow := total.AddOverflow(total, delta); overflow {
		return "", fmt.Errorf("%w: overflow", ErrBadTotal)
	}
	return total.Dec(), nil
}

func parseTotal(stored string) (*uint256.Int, error) {
	total, err := uint256.FromDecimal(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTotal, stored)
	}
	return total, nil
}
