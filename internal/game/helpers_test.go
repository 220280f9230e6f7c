package game

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/scoring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	dave  = common.HexToAddress("0x0000000000000000000000000000000000000da5")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig is a three-seat, two-round game with hour-long phases and a fee
// of one wei.
func testConfig() Config {
	return Config{
		MinPlayers:    2,
		MaxPlayers:    3,
		MaxRounds:     2,
		LobbyDuration: time.Hour,
		RoundDuration: time.Hour,
		FeeWei:        uint256.NewInt(1),
		Scoring:       scoring.DefaultParams(),
		HistoryLimit:  8,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	c        *Coordinator
	clock    *fakeClock
	ledger   *MemoryLedger
	archived []Snapshot
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), ledger: NewMemoryLedger()}
	base := []Option{
		WithClock(h.clock),
		WithLedger(h.ledger),
		WithLogger(discardLogger()),
		WithOnArchive(func(s Snapshot) { h.archived = append(h.archived, s) }),
	}
	c, err := NewCoordinator(cfg, append(base, opts...)...)
	require.NoError(t, err)
	h.c = c
	return h
}

var fee = uint256.NewInt(1)

func (h *harness) join(t *testing.T, players ...common.Address) {
	t.Helper()
	for _, p := range players {
		require.NoError(t, h.c.Join(context.Background(), p, fee), "join %s", p.Hex())
	}
}

// pizza is the selection D,D,S,C,x.
func pizza(x recipe.Ingredient) recipe.Selection {
	return recipe.Selection{recipe.Dough, recipe.Dough, recipe.Sauce, recipe.Cheese, x}
}

func saltFor(p common.Address, round uint64) common.Hash {
	var s common.Hash
	copy(s[:20], p[:])
	s[31] = byte(round)
	return s
}

func (h *harness) commit(t *testing.T, p common.Address, sel recipe.Selection) {
	t.Helper()
	snap := h.c.Snapshot()
	hash := h.c.CommitmentHash(p, snap.GameNumber, snap.CurrentRound, saltFor(p, snap.CurrentRound), sel)
	require.NoError(t, h.c.Commit(context.Background(), p, hash), "commit %s", p.Hex())
}

func (h *harness) reveal(t *testing.T, p common.Address, sel recipe.Selection) {
	t.Helper()
	round := h.c.Snapshot().CurrentRound
	require.NoError(t, h.c.Reveal(context.Background(), p, saltFor(p, round), sel), "reveal %s", p.Hex())
}

type pick struct {
	player common.Address
	sel    recipe.Selection
}

// playRound commits and then reveals every pick in order.
func (h *harness) playRound(t *testing.T, picks ...pick) {
	t.Helper()
	for _, p := range picks {
		h.commit(t, p.player, p.sel)
	}
	for _, p := range picks {
		h.reveal(t, p.player, p.sel)
	}
}

func wad(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}
