package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrInsufficientEscrow = errors.New("insufficient escrow")

// MemoryLedger keeps stakes in process memory. It stands in for the wallet
// provider in tests and single-node deployments.
type MemoryLedger struct {
	mu      sync.Mutex
	escrow  map[common.Address]*uint256.Int
	paid    map[common.Address]*uint256.Int
	settled map[uint64]bool
	total   *uint256.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		escrow:  make(map[common.Address]*uint256.Int),
		paid:    make(map[common.Address]*uint256.Int),
		settled: make(map[uint64]bool),
		total:   new(uint256.Int),
	}
}

func (l *MemoryLedger) Accept(ctx context.Context, player common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.escrow[player]
	if !ok {
		held = new(uint256.Int)
		l.escrow[player] = held
	}
	if _, overflow := held.AddOverflow(held, amount); overflow {
		return fmt.Errorf("escrow of %s overflows", player.Hex())
	}
	l.total.Add(l.total, amount)
	return nil
}

func (l *MemoryLedger) Refund(ctx context.Context, player common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.escrow[player]
	if !ok || held.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, refund of %s", ErrInsufficientEscrow, player.Hex(), decOrZero(held), amount.Dec())
	}
	held.Sub(held, amount)
	l.total.Sub(l.total, amount)
	return nil
}

// Payout releases the stakes of a finished game and credits the amounts. The
// amounts must add up to the released stakes. A game is settled at most once;
// repeating the call is a no-op.
func (l *MemoryLedger) Payout(ctx context.Context, game uint64, payments []Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settled[game] {
		return nil
	}

	need := make(map[common.Address]*uint256.Int, len(payments))
	staked, paid := new(uint256.Int), new(uint256.Int)
	for _, p := range payments {
		n, ok := need[p.Player]
		if !ok {
			n = new(uint256.Int)
			need[p.Player] = n
		}
		n.Add(n, p.Stake)
		if held := l.escrow[p.Player]; held == nil || held.Lt(n) {
			return fmt.Errorf("%w: %s holds %s, game %d releases %s", ErrInsufficientEscrow, p.Player.Hex(), decOrZero(held), game, n.Dec())
		}
		staked.Add(staked, p.Stake)
		if _, overflow := paid.AddOverflow(paid, p.Amount); overflow {
			return fmt.Errorf("payout of game %d overflows", game)
		}
	}
	if !paid.Eq(staked) {
		return fmt.Errorf("game %d pays %s wei against %s wei staked", game, paid.Dec(), staked.Dec())
	}

	for _, p := range payments {
		held := l.escrow[p.Player]
		held.Sub(held, p.Stake)
		l.total.Sub(l.total, p.Stake)
		got, ok := l.paid[p.Player]
		if !ok {
			got = new(uint256.Int)
			l.paid[p.Player] = got
		}
		got.Add(got, p.Amount)
	}
	l.settled[game] = true
	return nil
}

// Paid returns everything paid out to player so far.
func (l *MemoryLedger) Paid(player common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if got, ok := l.paid[player]; ok {
		return new(uint256.Int).Set(got)
	}
	return new(uint256.Int)
}

// Escrowed returns the stake currently held for player.
func (l *MemoryLedger) Escrowed(player common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.escrow[player]; ok {
		return new(uint256.Int).Set(held)
	}
	return new(uint256.Int)
}

func (l *MemoryLedger) Total() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.total)
}
