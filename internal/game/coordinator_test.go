package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/scoring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var relayer = Capability{Caller: common.HexToAddress("0x00000000000000000000000000000000000000ee"), Role: RoleRelayer}

func TestCoordinator_EndToEnd(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	h.join(t, alice, bob)
	snap := h.c.Snapshot()
	require.Equal(t, PhaseLobby, snap.Phase)
	require.Equal(t, 2, snap.PlayerCount)
	require.Equal(t, h.clock.Now().Add(time.Hour).UnixMilli(), snap.DeadlineMs)

	h.join(t, carol)
	snap = h.c.Snapshot()
	require.Equal(t, PhaseCommit, snap.Phase, "full roster starts the game")
	require.Equal(t, uint64(1), snap.CurrentRound)

	round := []pick{
		{alice, pizza(recipe.Pepperoni)},
		{bob, pizza(recipe.Basil)},
		{carol, pizza(recipe.Anchovy)},
	}

	h.playRound(t, round...)
	snap = h.c.Snapshot()
	require.Equal(t, PhaseCommit, snap.Phase)
	require.Equal(t, uint64(2), snap.CurrentRound)

	res := snap.Rounds[0].Result
	require.NotNil(t, res)
	assert.Equal(t, wad("519716505812159047"), res.Quality)
	assert.Equal(t, recipe.Counts{6, 3, 3, 1, 1, 1}, res.Pool)
	require.Len(t, res.Players, 3)
	assert.Equal(t, wad("1300000000000000000"), res.Players[0].Score)
	assert.Equal(t, wad("641513640234690185"), res.Players[1].Score)
	assert.Equal(t, wad("300000000000000000"), res.Players[2].Score)

	p, ok := snap.Player(bob)
	require.True(t, ok)
	assert.Equal(t, wad("641513640234690185"), p.Score)
	require.Len(t, p.History, 1)
	assert.True(t, p.History[0].Revealed)
	assert.True(t, p.History[0].ScoreBefore.IsZero())

	h.playRound(t, round...)
	snap = h.c.Snapshot()
	require.Equal(t, PhaseEnded, snap.Phase)
	require.Equal(t, uint64(1), snap.GameNumber)
	require.Equal(t, uint64(2), snap.GameCounter)
	require.Zero(t, snap.DeadlineMs)

	totals := map[common.Address]string{
		alice: "2600000000000000000",
		bob:   "1283027280469380370",
		carol: "600000000000000000",
	}
	for addr, want := range totals {
		p, ok := snap.Player(addr)
		require.True(t, ok)
		assert.Equal(t, want, p.Score.Dec(), addr.Hex())
		assert.Len(t, p.History, 2)
	}

	// a pot of three wei split 2.6 : 1.28 : 0.6 rounds down to 1, 0, 0 and
	// the remainder goes to alice as the top scorer
	payouts := map[common.Address]string{alice: "3", bob: "0", carol: "0"}
	for addr, want := range payouts {
		p, _ := snap.Player(addr)
		assert.Equal(t, want, p.Payout.Dec(), addr.Hex())
		assert.Equal(t, want, h.ledger.Paid(addr).Dec(), addr.Hex())
		assert.True(t, h.ledger.Escrowed(addr).IsZero())
	}
	assert.True(t, h.ledger.Total().IsZero())

	require.Len(t, h.archived, 1)
	assert.Equal(t, uint64(1), h.archived[0].GameNumber)
	assert.Equal(t, PhaseEnded, h.archived[0].Phase)
	archivedAlice, _ := h.archived[0].Player(alice)
	assert.Equal(t, "3", archivedAlice.Payout.Dec())

	finished, err := h.c.FinishedGame(1)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, finished.Phase)

	_, err = h.c.Leave(ctx, alice)
	require.ErrorIs(t, err, ErrWrongPhase, "stakes stay in an ended game")

	h.join(t, dave)
	snap = h.c.Snapshot()
	assert.Equal(t, uint64(2), snap.GameNumber)
	assert.Equal(t, uint64(2), snap.GameCounter)
	assert.Equal(t, PhaseLobby, snap.Phase)
	assert.Equal(t, 1, snap.PlayerCount)
	assert.Equal(t, "1", h.ledger.Total().Dec())
}

func TestCoordinator_Scenarios(t *testing.T) {
	type scenario struct {
		name string
		run  func(t *testing.T)
	}
	ctx := context.Background()

	cases := []scenario{
		{
			name: "join rejects a wrong stake and a second join",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())

				err := h.c.Join(ctx, alice, uint256.NewInt(2))
				require.ErrorIs(t, err, ErrStakeMismatch)
				assert.Equal(t, KindResource, KindOf(err))

				require.ErrorIs(t, h.c.Join(ctx, alice, nil), ErrStakeMismatch)

				h.join(t, alice)
				require.ErrorIs(t, h.c.Join(ctx, alice, fee), ErrAlreadyJoined)
				assert.Equal(t, "1", h.ledger.Total().Dec())
			},
		},
		{
			name: "join after the game started is the wrong phase",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob, carol)

				err := h.c.Join(ctx, dave, fee)
				require.ErrorIs(t, err, ErrWrongPhase)
				assert.Equal(t, KindPhase, KindOf(err))
			},
		},
		{
			name: "leave refunds exactly the fee and allows a rejoin",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob)

				refund, err := h.c.Leave(ctx, alice)
				require.NoError(t, err)
				assert.Equal(t, fee, refund)
				assert.True(t, h.ledger.Escrowed(alice).IsZero())
				assert.Equal(t, "1", h.ledger.Total().Dec())
				assert.Equal(t, 1, h.c.Snapshot().PlayerCount)

				_, err = h.c.Leave(ctx, alice)
				require.ErrorIs(t, err, ErrNotJoined)

				h.join(t, alice)
				snap := h.c.Snapshot()
				assert.Equal(t, 2, snap.PlayerCount)
				assert.Equal(t, []common.Address{alice, bob}, snap.Players)
			},
		},
		{
			name: "leave is refused once the game started",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob, carol)

				_, err := h.c.Leave(ctx, alice)
				require.ErrorIs(t, err, ErrWrongPhase)
			},
		},
		{
			name: "commit validation",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob)

				hash := common.HexToHash("0x01")
				require.ErrorIs(t, h.c.Commit(ctx, alice, hash), ErrWrongPhase)

				h.join(t, carol)
				err := h.c.Commit(ctx, alice, common.Hash{})
				require.ErrorIs(t, err, ErrZeroCommitment)
				assert.Equal(t, KindValidation, KindOf(err))

				require.ErrorIs(t, h.c.Commit(ctx, dave, hash), ErrNotJoined)

				require.NoError(t, h.c.Commit(ctx, alice, hash))
				require.ErrorIs(t, h.c.Commit(ctx, alice, hash), ErrAlreadyCommitted)

				p, _ := h.c.Snapshot().Player(alice)
				assert.Equal(t, hash, p.LatestCommitment)
			},
		},
		{
			name: "reveal validation",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob, carol)

				sel := pizza(recipe.Basil)
				h.commit(t, alice, sel)
				h.commit(t, bob, pizza(recipe.Anchovy))
				require.ErrorIs(t, h.c.Reveal(ctx, alice, saltFor(alice, 1), sel), ErrWrongPhase)

				h.clock.Advance(time.Hour)

				unsorted := recipe.Selection{recipe.Basil, recipe.Dough, recipe.Dough, recipe.Sauce, recipe.Cheese}
				err := h.c.Reveal(ctx, alice, saltFor(alice, 1), unsorted)
				require.ErrorIs(t, err, ErrUnsortedSelection)
				require.ErrorIs(t, err, recipe.ErrUnsorted)

				empty := recipe.Selection{recipe.Dough, recipe.Dough, recipe.Sauce, recipe.Cheese, recipe.Empty}
				require.ErrorIs(t, h.c.Reveal(ctx, alice, saltFor(alice, 1), empty), ErrInvalidSelection)

				require.ErrorIs(t, h.c.Reveal(ctx, alice, saltFor(alice, 2), sel), ErrCommitmentMismatch)
				require.ErrorIs(t, h.c.Reveal(ctx, alice, saltFor(alice, 1), pizza(recipe.Pepperoni)), ErrCommitmentMismatch)

				require.ErrorIs(t, h.c.Reveal(ctx, carol, saltFor(carol, 1), sel), ErrNoCommitment)

				h.reveal(t, alice, sel)
				require.ErrorIs(t, h.c.Reveal(ctx, alice, saltFor(alice, 1), sel), ErrAlreadyRevealed)
				assert.Equal(t, PhaseReveal, h.c.Snapshot().Phase)
			},
		},
		{
			name: "round closes when every committer revealed",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob, carol)

				h.commit(t, alice, pizza(recipe.Basil))
				h.commit(t, bob, pizza(recipe.Anchovy))
				assert.Equal(t, PhaseCommit, h.c.Snapshot().Phase, "carol has not committed")

				h.clock.Advance(time.Hour)
				changed, err := h.c.Sync(ctx)
				require.NoError(t, err)
				require.True(t, changed)
				assert.Equal(t, PhaseReveal, h.c.Snapshot().Phase)

				h.reveal(t, alice, pizza(recipe.Basil))
				h.reveal(t, bob, pizza(recipe.Anchovy))

				snap := h.c.Snapshot()
				require.Equal(t, PhaseCommit, snap.Phase)
				require.Equal(t, uint64(2), snap.CurrentRound)
				require.Len(t, snap.Rounds[0].Result.Players, 2)

				p, _ := snap.Player(carol)
				require.Len(t, p.History, 1)
				assert.False(t, p.History[0].Revealed)
				assert.True(t, p.Score.IsZero())
			},
		},
		{
			name: "reveal deadline scores only the revealers",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob, carol)
				for _, p := range []common.Address{alice, bob, carol} {
					h.commit(t, p, pizza(recipe.Basil))
				}
				h.reveal(t, alice, pizza(recipe.Basil))

				h.clock.Advance(30 * time.Minute)
				changed, err := h.c.Sync(ctx)
				require.NoError(t, err)
				require.False(t, changed)

				h.clock.Advance(30 * time.Minute)
				changed, err = h.c.Sync(ctx)
				require.NoError(t, err)
				require.True(t, changed)

				snap := h.c.Snapshot()
				require.Equal(t, PhaseCommit, snap.Phase)
				res := snap.Rounds[0].Result
				require.Len(t, res.Players, 1)
				assert.Equal(t, alice, res.Players[0].Player)
				assert.Equal(t, wad("400000000000000000"), res.Players[0].Score, "a lone revealer gets half uniqueness and half contribution")
			},
		},
		{
			name: "a round nobody revealed still ends the game",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.MaxRounds = 1
				h := newHarness(t, cfg)
				h.join(t, alice, bob)

				h.clock.Advance(time.Hour)
				_, err := h.c.Sync(ctx)
				require.NoError(t, err)
				require.Equal(t, PhaseCommit, h.c.Snapshot().Phase)

				h.clock.Advance(time.Hour)
				_, err = h.c.Sync(ctx)
				require.NoError(t, err)
				require.Equal(t, PhaseReveal, h.c.Snapshot().Phase)

				h.clock.Advance(time.Hour)
				_, err = h.c.Sync(ctx)
				require.NoError(t, err)

				snap := h.c.Snapshot()
				require.Equal(t, PhaseEnded, snap.Phase)
				assert.True(t, snap.Rounds[0].Result.Quality.IsZero())
				assert.Empty(t, snap.Rounds[0].Result.Players)
			},
		},
		{
			name: "lobby deadline with too few players cancels and refunds stay open",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice)

				h.clock.Advance(time.Hour)
				changed, err := h.c.Sync(ctx)
				require.NoError(t, err)
				require.True(t, changed)

				snap := h.c.Snapshot()
				require.Equal(t, PhaseCancelled, snap.Phase)
				require.Equal(t, uint64(1), snap.GameCounter)

				refund, err := h.c.Leave(ctx, alice)
				require.NoError(t, err)
				assert.Equal(t, fee, refund)
				assert.True(t, h.ledger.Total().IsZero())
			},
		},
		{
			name: "join on a cancelled game archives it and opens the next",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice)
				h.clock.Advance(time.Hour)

				h.join(t, bob)
				snap := h.c.Snapshot()
				assert.Equal(t, uint64(2), snap.GameNumber)
				assert.Equal(t, PhaseLobby, snap.Phase)
				assert.Equal(t, []common.Address{bob}, snap.Players)

				require.Len(t, h.archived, 1)
				assert.Equal(t, PhaseCancelled, h.archived[0].Phase)
				assert.Equal(t, uint64(1), h.archived[0].GameNumber)

				// alice never left game 1, so opening game 2 refunds her
				assert.True(t, h.ledger.Escrowed(alice).IsZero())
				assert.Equal(t, fee, h.ledger.Paid(alice))
				p, _ := h.archived[0].Player(alice)
				assert.Equal(t, fee, p.Payout)
				assert.Equal(t, fee, h.ledger.Total())

				_, err := h.c.Leave(ctx, alice)
				require.ErrorIs(t, err, ErrNotJoined)
				assert.True(t, h.ledger.Escrowed(alice).IsZero())
			},
		},
		{
			name: "opening after a cancel refunds only players still in",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.MinPlayers = 3
				cfg.MaxPlayers = 4
				h := newHarness(t, cfg)
				h.join(t, alice, bob)
				h.clock.Advance(time.Hour)
				_, err := h.c.Sync(ctx)
				require.NoError(t, err)
				require.Equal(t, PhaseCancelled, h.c.Snapshot().Phase)

				_, err = h.c.Leave(ctx, alice)
				require.NoError(t, err)

				h.join(t, dave)
				assert.True(t, h.ledger.Escrowed(bob).IsZero())
				assert.Equal(t, fee, h.ledger.Paid(bob))
				assert.True(t, h.ledger.Paid(alice).IsZero(), "alice was refunded on leave")
				assert.Equal(t, fee, h.ledger.Escrowed(dave))
				assert.Equal(t, fee, h.ledger.Total())

				require.Len(t, h.archived, 1)
				pa, _ := h.archived[0].Player(alice)
				assert.True(t, pa.Payout.IsZero())
				pb, _ := h.archived[0].Player(bob)
				assert.Equal(t, fee, pb.Payout)
			},
		},
		{
			name: "lobby deadline with enough players starts the game",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob)

				h.clock.Advance(time.Hour)
				_, err := h.c.Sync(ctx)
				require.NoError(t, err)

				snap := h.c.Snapshot()
				require.Equal(t, PhaseCommit, snap.Phase)
				require.Equal(t, uint64(1), snap.CurrentRound)
				assert.Equal(t, h.clock.Now().Add(time.Hour).UnixMilli(), snap.DeadlineMs)
			},
		},
		{
			name: "a rejected call discards the transition it triggered",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob)
				h.clock.Advance(time.Hour)

				require.ErrorIs(t, h.c.Commit(ctx, alice, common.Hash{}), ErrZeroCommitment)
				assert.Equal(t, PhaseLobby, h.c.Snapshot().Phase)

				h.commit(t, alice, pizza(recipe.Basil))
				assert.Equal(t, PhaseCommit, h.c.Snapshot().Phase)
			},
		},
		{
			name: "close round needs the relayer role",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())
				h.join(t, alice, bob, carol)
				h.clock.Advance(time.Hour)

				err := h.c.CloseRound(ctx, Capability{Caller: alice, Role: "player"}, 1)
				require.ErrorIs(t, err, ErrUnauthorized)
				assert.Equal(t, KindAuth, KindOf(err))
				assert.Equal(t, PhaseCommit, h.c.Snapshot().Phase)

				require.NoError(t, h.c.CloseRound(ctx, relayer, 1))
				assert.Equal(t, PhaseReveal, h.c.Snapshot().Phase)
			},
		},
		{
			name: "close round with pinned relayers",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig(), WithRelayers(relayer.Caller))
				h.join(t, alice, bob, carol)
				h.clock.Advance(time.Hour)

				other := Capability{Caller: dave, Role: RoleRelayer}
				require.ErrorIs(t, h.c.CloseRound(ctx, other, 1), ErrUnauthorized)
				require.NoError(t, h.c.CloseRound(ctx, relayer, 1))
			},
		},
		{
			name: "close round checks phase, round and deadline",
			run: func(t *testing.T) {
				h := newHarness(t, testConfig())

				require.ErrorIs(t, h.c.CloseRound(ctx, relayer, 0), ErrWrongPhase)

				h.join(t, alice, bob, carol)
				require.ErrorIs(t, h.c.CloseRound(ctx, relayer, 2), ErrRoundMismatch)

				h.clock.Advance(59 * time.Minute)
				err := h.c.CloseRound(ctx, relayer, 1)
				require.ErrorIs(t, err, ErrDeadlineNotReached)
				assert.Equal(t, KindConflict, KindOf(err))

				h.clock.Advance(time.Minute)
				require.NoError(t, h.c.CloseRound(ctx, relayer, 1))
				require.Equal(t, PhaseReveal, h.c.Snapshot().Phase)

				h.clock.Advance(time.Hour)
				require.NoError(t, h.c.CloseRound(ctx, relayer, 1))
				snap := h.c.Snapshot()
				require.Equal(t, PhaseCommit, snap.Phase)
				require.Equal(t, uint64(2), snap.CurrentRound)
			},
		},
		{
			name: "the last round uses the final recipe",
			run: func(t *testing.T) {
				spy := &recipeSpy{}
				h := newHarness(t, testConfig(), WithRecipes(spy))
				require.Equal(t, recipe.MustFromBps(recipe.DefaultBps), h.c.Snapshot().Recipe)

				h.join(t, alice, bob, carol)
				h.playRound(t,
					pick{alice, pizza(recipe.Basil)},
					pick{bob, pizza(recipe.Basil)},
					pick{carol, pizza(recipe.Basil)},
				)

				snap := h.c.Snapshot()
				require.Equal(t, uint64(2), snap.CurrentRound)
				assert.Equal(t, finalRecipe, snap.Recipe)
				assert.Equal(t, recipe.MustFromBps(recipe.DefaultBps), snap.Rounds[0].Result.Recipe)
				assert.Equal(t, []bool{false, true}, spy.calls)
			},
		},
		{
			name: "a single-round game plays the final recipe from the start",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.MaxRounds = 1
				spy := &recipeSpy{}
				h := newHarness(t, cfg, WithRecipes(spy))
				assert.Equal(t, finalRecipe, h.c.Snapshot().Recipe)
				assert.Equal(t, []bool{true}, spy.calls)
			},
		},
		{
			name: "finished games fall out of a short history",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.HistoryLimit = 1
				h := newHarness(t, cfg)

				h.join(t, alice)
				h.clock.Advance(time.Hour)
				h.join(t, bob)
				h.clock.Advance(time.Hour)
				h.join(t, carol)

				require.Equal(t, uint64(3), h.c.GameCounter())
				_, err := h.c.FinishedGame(1)
				require.ErrorIs(t, err, ErrGameNotFound)
				assert.Equal(t, KindNotFound, KindOf(err))

				g2, err := h.c.FinishedGame(2)
				require.NoError(t, err)
				assert.Equal(t, PhaseCancelled, g2.Phase)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestCoordinator_PhasesNeverGoBack(t *testing.T) {
	type step struct {
		game, round uint64
		phase       Phase
	}
	var seen []step
	h := newHarness(t, testConfig(), WithOnPersist(func(s Snapshot) {
		seen = append(seen, step{s.GameNumber, s.CurrentRound, s.Phase})
	}))

	h.join(t, alice, bob, carol)
	round := []pick{{alice, pizza(recipe.Basil)}, {bob, pizza(recipe.Basil)}, {carol, pizza(recipe.Anchovy)}}
	h.playRound(t, round...)
	h.playRound(t, round...)
	h.join(t, dave)

	rank := func(p Phase) int {
		switch p {
		case PhaseLobby:
			return 0
		case PhaseCommit:
			return 1
		case PhaseReveal:
			return 2
		}
		return 3
	}
	less := func(a, b step) bool {
		if a.game != b.game {
			return a.game < b.game
		}
		if a.round != b.round {
			return a.round < b.round
		}
		return rank(a.phase) < rank(b.phase)
	}

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		require.False(t, less(seen[i], seen[i-1]), "step %d went from %+v to %+v", i, seen[i-1], seen[i])
	}
	assert.Equal(t, step{2, 0, PhaseLobby}, seen[len(seen)-1])
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Accept(ctx context.Context, player common.Address, amount *uint256.Int) error {
	return m.Called(ctx, player, amount).Error(0)
}

func (m *mockLedger) Refund(ctx context.Context, player common.Address, amount *uint256.Int) error {
	return m.Called(ctx, player, amount).Error(0)
}

func (m *mockLedger) Payout(ctx context.Context, game uint64, payments []Payment) error {
	return m.Called(ctx, game, payments).Error(0)
}

func TestCoordinator_StakeTransferFailure(t *testing.T) {
	ctx := context.Background()
	offline := errors.New("wallet offline")

	ledger := &mockLedger{}
	ledger.On("Accept", mock.Anything, alice, fee).Return(nil)
	ledger.On("Accept", mock.Anything, bob, fee).Return(offline)
	ledger.On("Refund", mock.Anything, alice, fee).Return(offline)

	h := newHarness(t, testConfig(), WithLedger(ledger))
	h.join(t, alice)
	before := h.c.Snapshot()

	err := h.c.Join(ctx, bob, fee)
	require.ErrorIs(t, err, ErrStakeTransfer)
	require.ErrorIs(t, err, offline)
	assert.Equal(t, before, h.c.Snapshot())

	refund, err := h.c.Leave(ctx, alice)
	require.ErrorIs(t, err, ErrStakeTransfer)
	assert.Equal(t, KindResource, KindOf(err))
	assert.Nil(t, refund)

	after := h.c.Snapshot()
	assert.Equal(t, before, after)
	p, _ := after.Player(alice)
	assert.True(t, p.Alive)

	ledger.AssertExpectations(t)
}

func TestCoordinator_Payouts(t *testing.T) {
	type scenario struct {
		name string
		run  func(t *testing.T)
	}
	ctx := context.Background()

	cases := []scenario{
		{
			name: "the pot is split by cumulative score",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.FeeWei = wad("1000000000000000000")
				h := newHarness(t, cfg)
				for _, p := range []common.Address{alice, bob, carol} {
					require.NoError(t, h.c.Join(ctx, p, cfg.FeeWei))
				}
				round := []pick{
					{alice, pizza(recipe.Pepperoni)},
					{bob, pizza(recipe.Basil)},
					{carol, pizza(recipe.Anchovy)},
				}
				h.playRound(t, round...)
				h.playRound(t, round...)

				snap := h.c.Snapshot()
				require.Equal(t, PhaseEnded, snap.Phase)
				want := map[common.Address]string{
					alice: "1739895724922585594", // floor share plus the 2 wei remainder
					bob:   "858589877018356193",
					carol: "401514398059058213",
				}
				sum := new(uint256.Int)
				for addr, amount := range want {
					p, _ := snap.Player(addr)
					assert.Equal(t, amount, p.Payout.Dec(), addr.Hex())
					assert.Equal(t, amount, h.ledger.Paid(addr).Dec(), addr.Hex())
					sum.Add(sum, p.Payout)
				}
				assert.Equal(t, "3000000000000000000", sum.Dec())
				assert.True(t, h.ledger.Total().IsZero())
			},
		},
		{
			name: "nobody scored splits the pot evenly",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.MaxRounds = 1
				cfg.FeeWei = uint256.NewInt(5)
				h := newHarness(t, cfg)
				for _, p := range []common.Address{alice, bob, carol} {
					require.NoError(t, h.c.Join(ctx, p, cfg.FeeWei))
				}
				for i := 0; i < 2; i++ {
					h.clock.Advance(time.Hour)
					_, err := h.c.Sync(ctx)
					require.NoError(t, err)
				}

				snap := h.c.Snapshot()
				require.Equal(t, PhaseEnded, snap.Phase)
				for _, addr := range []common.Address{alice, bob, carol} {
					p, _ := snap.Player(addr)
					assert.Equal(t, "5", p.Payout.Dec(), addr.Hex())
					assert.Equal(t, "5", h.ledger.Paid(addr).Dec(), addr.Hex())
				}
				assert.True(t, h.ledger.Total().IsZero())
			},
		},
		{
			name: "a player who left the lobby takes no share",
			run: func(t *testing.T) {
				cfg := testConfig()
				cfg.MaxPlayers = 4
				cfg.MaxRounds = 1
				h := newHarness(t, cfg)
				h.join(t, alice, bob, carol)
				_, err := h.c.Leave(ctx, carol)
				require.NoError(t, err)
				h.clock.Advance(time.Hour)
				_, err = h.c.Sync(ctx)
				require.NoError(t, err)
				require.Equal(t, PhaseCommit, h.c.Snapshot().Phase)

				h.commit(t, alice, pizza(recipe.Basil))
				h.commit(t, bob, pizza(recipe.Basil))
				h.reveal(t, alice, pizza(recipe.Basil))
				h.clock.Advance(time.Hour)
				_, err = h.c.Sync(ctx)
				require.NoError(t, err)

				snap := h.c.Snapshot()
				require.Equal(t, PhaseEnded, snap.Phase)
				pa, _ := snap.Player(alice)
				assert.Equal(t, "2", pa.Payout.Dec())
				pb, _ := snap.Player(bob)
				assert.True(t, pb.Payout.IsZero())
				pc, _ := snap.Player(carol)
				assert.True(t, pc.Payout.IsZero())
				assert.True(t, h.ledger.Paid(carol).IsZero())
				assert.True(t, h.ledger.Total().IsZero())
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestCoordinator_PayoutFailure(t *testing.T) {
	ctx := context.Background()
	offline := errors.New("wallet offline")

	balanced := mock.MatchedBy(func(ps []Payment) bool {
		sum := new(uint256.Int)
		for _, p := range ps {
			sum.Add(sum, p.Amount)
		}
		return len(ps) == 3 && sum.Eq(uint256.NewInt(3))
	})
	ledger := &mockLedger{}
	ledger.On("Accept", mock.Anything, mock.Anything, fee).Return(nil)
	ledger.On("Payout", mock.Anything, uint64(1), balanced).Return(offline).Once()
	ledger.On("Payout", mock.Anything, uint64(1), balanced).Return(nil).Once()

	cfg := testConfig()
	cfg.MaxRounds = 1
	h := newHarness(t, cfg, WithLedger(ledger))
	h.join(t, alice, bob, carol)
	for _, p := range []common.Address{alice, bob, carol} {
		h.commit(t, p, pizza(recipe.Basil))
	}
	h.reveal(t, alice, pizza(recipe.Basil))
	h.reveal(t, bob, pizza(recipe.Basil))
	before := h.c.Snapshot()

	err := h.c.Reveal(ctx, carol, saltFor(carol, 1), pizza(recipe.Basil))
	require.ErrorIs(t, err, ErrStakeTransfer)
	require.ErrorIs(t, err, offline)
	assert.Equal(t, before, h.c.Snapshot())
	assert.Empty(t, h.archived)

	h.reveal(t, carol, pizza(recipe.Basil))
	snap := h.c.Snapshot()
	assert.Equal(t, PhaseEnded, snap.Phase)
	require.Len(t, h.archived, 1)

	ledger.AssertExpectations(t)
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"min players zero":     func(c *Config) { c.MinPlayers = 0 },
		"max not above min":    func(c *Config) { c.MaxPlayers = c.MinPlayers },
		"no rounds":            func(c *Config) { c.MaxRounds = 0 },
		"no lobby duration":    func(c *Config) { c.LobbyDuration = 0 },
		"negative round":       func(c *Config) { c.RoundDuration = -time.Second },
		"zero fee":             func(c *Config) { c.FeeWei = new(uint256.Int) },
		"missing fee":          func(c *Config) { c.FeeWei = nil },
		"negative history":     func(c *Config) { c.HistoryLimit = -1 },
		"zero alpha":           func(c *Config) { c.Scoring.Alpha = new(uint256.Int) },
		"missing scoring beta": func(c *Config) { c.Scoring = scoring.Params{Alpha: scoring.DefaultParams().Alpha} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, err := NewCoordinator(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, KindConfig, KindOf(err))
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}

func TestErrors(t *testing.T) {
	err := reject(ErrWrongPhase, "join needs %s", PhaseLobby)
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.NotErrorIs(t, err, ErrRoundMismatch)
	assert.Equal(t, "wrong_phase: join needs lobby", err.Error())

	wrapped := fmt.Errorf("http: %w", err)
	assert.Equal(t, KindPhase, KindOf(wrapped))
	assert.Equal(t, "wrong_phase", CodeOf(wrapped))

	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal", CodeOf(errors.New("boom")))
}

var finalRecipe = recipe.MustFromBps([recipe.Categories]uint64{4000, 2000, 1500, 1200, 700, 600})

type recipeSpy struct {
	calls []bool
}

func (s *recipeSpy) Recipe(game uint64, final bool) recipe.Recipe {
	s.calls = append(s.calls, final)
	if final {
		return finalRecipe.Clone()
	}
	return recipe.MustFromBps(recipe.DefaultBps)
}
