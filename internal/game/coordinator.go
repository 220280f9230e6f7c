package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"example.com/degenpizza/internal/commitment"
	"example.com/degenpizza/internal/fixedpoint"
	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/scoring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config is fixed for the lifetime of a coordinator.
type Config struct {
	MinPlayers    int
	MaxPlayers    int
	MaxRounds     uint64
	LobbyDuration time.Duration
	RoundDuration time.Duration // shared by the commit and reveal halves of a round
	FeeWei        *uint256.Int
	Scoring       scoring.Params

	// HistoryLimit is how many finished games are kept in memory for
	// FinishedGame. Older ones are only available from the archive.
	HistoryLimit int
}

func DefaultConfig() Config {
	return Config{
		MinPlayers:    2,
		MaxPlayers:    8,
		MaxRounds:     10,
		LobbyDuration: 10 * time.Minute,
		RoundDuration: 2 * time.Minute,
		FeeWei:        uint256.NewInt(10_000_000_000_000_000),
		Scoring:       scoring.DefaultParams(),
		HistoryLimit:  32,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MinPlayers < 1:
		return reject(ErrInvalidConfig, "min players must be at least 1, got %d", c.MinPlayers)
	case c.MaxPlayers <= c.MinPlayers:
		return reject(ErrInvalidConfig, "max players (%d) must exceed min players (%d)", c.MaxPlayers, c.MinPlayers)
	case c.MaxRounds < 1:
		return reject(ErrInvalidConfig, "max rounds must be at least 1")
	case c.LobbyDuration <= 0:
		return reject(ErrInvalidConfig, "lobby duration must be positive, got %s", c.LobbyDuration)
	case c.RoundDuration <= 0:
		return reject(ErrInvalidConfig, "round duration must be positive, got %s", c.RoundDuration)
	case c.FeeWei == nil || c.FeeWei.IsZero():
		return reject(ErrInvalidConfig, "fee must be positive")
	case c.HistoryLimit < 0:
		return reject(ErrInvalidConfig, "history limit must not be negative, got %d", c.HistoryLimit)
	}
	if err := c.Scoring.Validate(); err != nil {
		return wrap(ErrInvalidConfig, err, "scoring")
	}
	return nil
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StakeLedger moves the entry stake. Accept runs on join, Refund on leave and
// Payout once a game is over; a failure of any aborts the operation with no
// state change. Payout must be idempotent per game number since a call that
// fails after it is retried.
type StakeLedger interface {
	Accept(ctx context.Context, player common.Address, amount *uint256.Int) error
	Refund(ctx context.Context, player common.Address, amount *uint256.Int) error
	Payout(ctx context.Context, game uint64, payments []Payment) error
}

// Payment settles one player's stake in a finished game.
type Payment struct {
	Player common.Address
	Stake  *uint256.Int
	Amount *uint256.Int
}

type Option func(*Coordinator)

func WithClock(clock Clock) Option { return func(c *Coordinator) { c.clock = clock } }

func WithLedger(l StakeLedger) Option { return func(c *Coordinator) { c.ledger = l } }

func WithRecipes(src recipe.Source) Option { return func(c *Coordinator) { c.recipes = src } }

func WithLogger(log *slog.Logger) Option { return func(c *Coordinator) { c.log = log } }

// WithRelayers pins the close-round capability to the given addresses. With
// no relayers configured any caller holding the relayer role may close.
func WithRelayers(addrs ...common.Address) Option {
	return func(c *Coordinator) {
		for _, a := range addrs {
			c.relayers[a] = struct{}{}
		}
	}
}

// WithOnPersist registers a hook that receives the state after every
// successful mutation. It runs under the coordinator lock.
func WithOnPersist(fn func(Snapshot)) Option { return func(c *Coordinator) { c.onPersist = fn } }

// WithOnArchive registers a hook that receives every game that is finished
// for good: ended games when they end, cancelled games when the next game
// opens.
func WithOnArchive(fn func(Snapshot)) Option { return func(c *Coordinator) { c.onArchive = fn } }

// Coordinator runs the commit-reveal game. All mutations are serialized by mu
// and applied to a copy of the current game that replaces it only when the
// whole call succeeds.
type Coordinator struct {
	mu sync.Mutex

	cfg      Config
	clock    Clock
	ledger   StakeLedger
	recipes  recipe.Source
	log      *slog.Logger
	relayers map[common.Address]struct{}

	onPersist func(Snapshot)
	onArchive func(Snapshot)

	game    *gameRecord
	counter uint64

	finished      map[uint64]Snapshot
	finishedOrder []uint64
}

type gameRecord struct {
	number   uint64
	phase    Phase
	round    uint64
	deadline time.Time
	recipe   recipe.Recipe

	roster  []common.Address // join order, departed players included
	players map[common.Address]*playerState
	count   int // alive players

	rounds []*roundState // rounds[i] is round i+1
}

type playerState struct {
	alive        bool
	score        *uint256.Int
	latestCommit common.Hash
	history      []RoundEntry
	payout       *uint256.Int // nil until the game is settled
}

type roundState struct {
	commits map[common.Address]common.Hash
	reveals map[common.Address]recipe.Selection
	result  *RoundResult
}

func newRoundState() *roundState {
	return &roundState{
		commits: make(map[common.Address]common.Hash),
		reveals: make(map[common.Address]recipe.Selection),
	}
}

func (g *gameRecord) currentRound() *roundState {
	if g.round == 0 || int(g.round) > len(g.rounds) {
		return nil
	}
	return g.rounds[g.round-1]
}

func (g *gameRecord) clone() *gameRecord {
	c := *g
	c.recipe = g.recipe.Clone()
	c.roster = append([]common.Address(nil), g.roster...)
	c.players = make(map[common.Address]*playerState, len(g.players))
	for a, p := range g.players {
		cp := *p
		cp.score = new(uint256.Int).Set(p.score)
		cp.history = append([]RoundEntry(nil), p.history...)
		if p.payout != nil {
			cp.payout = new(uint256.Int).Set(p.payout)
		}
		c.players[a] = &cp
	}
	c.rounds = make([]*roundState, len(g.rounds))
	for i, r := range g.rounds {
		cr := newRoundState()
		for a, h := range r.commits {
			cr.commits[a] = h
		}
		for a, s := range r.reveals {
			cr.reveals[a] = s
		}
		cr.result = r.result
		c.rounds[i] = cr
	}
	return &c
}

// txn is one call's view of the game. Nothing in it is visible until
// commitLocked.
type txn struct {
	now         time.Time
	g           *gameRecord
	counter     uint64
	transitions []transition
	scored      []*RoundResult
	settlements []settlement
	archived    []Snapshot
}

type settlement struct {
	game     uint64
	payments []Payment
}

type transition struct {
	game   uint64
	round  uint64
	from   Phase
	to     Phase
	reason string
}

func NewCoordinator(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:      cfg,
		clock:    systemClock{},
		recipes:  recipe.Fixed(recipe.MustFromBps(recipe.DefaultBps)),
		log:      slog.Default(),
		relayers: make(map[common.Address]struct{}),
		finished: make(map[uint64]Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ledger == nil {
		c.ledger = NewMemoryLedger()
	}
	c.counter = 1
	c.game = c.newGameRecord(1)
	return c, nil
}

func (c *Coordinator) Config() Config { return c.cfg }

func (c *Coordinator) newGameRecord(number uint64) *gameRecord {
	return &gameRecord{
		number:  number,
		phase:   PhaseLobby,
		recipe:  c.recipes.Recipe(number, c.cfg.MaxRounds == 1),
		players: make(map[common.Address]*playerState),
	}
}

// Join adds player to the lobby against exactly FeeWei. On an ended or
// cancelled game it first opens the next one.
func (c *Coordinator) Join(ctx context.Context, player common.Address, stake *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.beginLocked()
	if err := c.syncLocked(tx); err != nil {
		return err
	}
	if tx.g.phase.Terminal() {
		c.openLocked(tx)
	}
	g := tx.g

	if g.phase != PhaseLobby {
		return reject(ErrWrongPhase, "join needs %s, game %d is in %s", PhaseLobby, g.number, g.phase)
	}
	if stake == nil || !stake.Eq(c.cfg.FeeWei) {
		return reject(ErrStakeMismatch, "expected %s wei, got %s", c.cfg.FeeWei.Dec(), decOrZero(stake))
	}
	if p, ok := g.players[player]; ok && p.alive {
		return reject(ErrAlreadyJoined, "%s already joined game %d", player.Hex(), g.number)
	}
	if g.count >= c.cfg.MaxPlayers {
		return reject(ErrRosterFull, "game %d has %d of %d players", g.number, g.count, c.cfg.MaxPlayers)
	}

	if err := c.settleLocked(ctx, tx); err != nil {
		return err
	}
	if err := c.ledger.Accept(ctx, player, c.cfg.FeeWei); err != nil {
		return wrap(ErrStakeTransfer, err, "accept stake from %s", player.Hex())
	}

	p, ok := g.players[player]
	if !ok {
		p = &playerState{score: new(uint256.Int)}
		g.players[player] = p
		g.roster = append(g.roster, player)
	}
	p.alive = true
	g.count++
	if g.deadline.IsZero() {
		g.deadline = tx.now.Add(c.cfg.LobbyDuration)
	}
	if g.count == c.cfg.MaxPlayers {
		c.startLocked(tx, "roster full")
	}

	c.commitLocked(tx)
	return nil
}

// Leave refunds the stake of a player in the lobby or in a cancelled game and
// returns the refunded amount.
func (c *Coordinator) Leave(ctx context.Context, player common.Address) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.beginLocked()
	if err := c.syncLocked(tx); err != nil {
		return nil, err
	}
	g := tx.g

	if g.phase != PhaseLobby && g.phase != PhaseCancelled {
		return nil, reject(ErrWrongPhase, "leave needs %s or %s, game %d is in %s", PhaseLobby, PhaseCancelled, g.number, g.phase)
	}
	p, ok := g.players[player]
	if !ok || !p.alive {
		return nil, reject(ErrNotJoined, "%s is not in game %d", player.Hex(), g.number)
	}

	if err := c.settleLocked(ctx, tx); err != nil {
		return nil, err
	}
	refund := new(uint256.Int).Set(c.cfg.FeeWei)
	if err := c.ledger.Refund(ctx, player, refund); err != nil {
		return nil, wrap(ErrStakeTransfer, err, "refund %s wei to %s", refund.Dec(), player.Hex())
	}

	p.alive = false
	g.count--

	c.commitLocked(tx)
	return refund, nil
}

// Commit stores the player's commitment for the current round.
func (c *Coordinator) Commit(ctx context.Context, player common.Address, hash common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.beginLocked()
	if err := c.syncLocked(tx); err != nil {
		return err
	}
	g := tx.g

	if g.phase != PhaseCommit {
		return reject(ErrWrongPhase, "commit needs %s, game %d is in %s", PhaseCommit, g.number, g.phase)
	}
	p, ok := g.players[player]
	if !ok || !p.alive {
		return reject(ErrNotJoined, "%s is not in game %d", player.Hex(), g.number)
	}
	if hash == (common.Hash{}) {
		return reject(ErrZeroCommitment, "commitment must not be zero")
	}
	rs := g.currentRound()
	if _, ok := rs.commits[player]; ok {
		return reject(ErrAlreadyCommitted, "%s already committed in round %d", player.Hex(), g.round)
	}

	rs.commits[player] = hash
	p.latestCommit = hash
	if len(rs.commits) == g.count {
		c.revealLocked(tx, "all committed")
	}

	return c.finishLocked(ctx, tx)
}

// Reveal opens the player's commitment. The last outstanding reveal closes
// the round.
func (c *Coordinator) Reveal(ctx context.Context, player common.Address, salt common.Hash, sel recipe.Selection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.beginLocked()
	if err := c.syncLocked(tx); err != nil {
		return err
	}
	g := tx.g

	if g.phase != PhaseReveal {
		return reject(ErrWrongPhase, "reveal needs %s, game %d is in %s", PhaseReveal, g.number, g.phase)
	}
	p, ok := g.players[player]
	if !ok || !p.alive {
		return reject(ErrNotJoined, "%s is not in game %d", player.Hex(), g.number)
	}
	rs := g.currentRound()
	want, ok := rs.commits[player]
	if !ok {
		return reject(ErrNoCommitment, "%s has no commitment in round %d", player.Hex(), g.round)
	}
	if _, ok := rs.reveals[player]; ok {
		return reject(ErrAlreadyRevealed, "%s already revealed in round %d", player.Hex(), g.round)
	}
	if err := sel.Validate(); err != nil {
		if errors.Is(err, recipe.ErrUnsorted) {
			return wrap(ErrUnsortedSelection, err, "round %d", g.round)
		}
		return wrap(ErrInvalidSelection, err, "round %d", g.round)
	}
	if !commitment.Verify(want, player, g.number, g.round, salt, sel) {
		return reject(ErrCommitmentMismatch, "reveal does not open %s for game %d round %d", want.Hex(), g.number, g.round)
	}

	rs.reveals[player] = sel
	if len(rs.reveals) == len(rs.commits) {
		if err := c.closeRoundLocked(tx, "all revealed"); err != nil {
			return err
		}
	}

	return c.finishLocked(ctx, tx)
}

// CloseRound forces the deadline transition of the current round. Only a
// relayer may call it, and only once the phase deadline has passed.
func (c *Coordinator) CloseRound(ctx context.Context, caller Capability, round uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authorized(caller) {
		return reject(ErrUnauthorized, "%s (role %q) may not close rounds", caller.Caller.Hex(), caller.Role)
	}

	tx := c.beginLocked()
	g := tx.g
	if g.phase != PhaseCommit && g.phase != PhaseReveal {
		return reject(ErrWrongPhase, "close needs %s or %s, game %d is in %s", PhaseCommit, PhaseReveal, g.number, g.phase)
	}
	if round != g.round {
		return reject(ErrRoundMismatch, "asked to close round %d, game %d is in round %d", round, g.number, g.round)
	}
	if tx.now.Before(g.deadline) {
		return reject(ErrDeadlineNotReached, "round %d %s ends at %s", g.round, g.phase, g.deadline.UTC().Format(time.RFC3339))
	}
	if err := c.syncLocked(tx); err != nil {
		return err
	}

	return c.finishLocked(ctx, tx)
}

// Sync applies a due deadline transition, if any, and reports whether the
// state changed.
func (c *Coordinator) Sync(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.beginLocked()
	if err := c.syncLocked(tx); err != nil {
		return false, err
	}
	if len(tx.transitions) == 0 {
		return false, nil
	}
	if err := c.finishLocked(ctx, tx); err != nil {
		return false, err
	}
	return true, nil
}

// CommitmentHash is the hash a player has to submit to commit sel under salt
// in the given game and round.
func (c *Coordinator) CommitmentHash(player common.Address, game, round uint64, salt common.Hash, sel recipe.Selection) common.Hash {
	return commitment.Hash(player, game, round, salt, sel)
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// GameCounter is the number of the current game, or of the next one once the
// current game has ended.
func (c *Coordinator) GameCounter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// FinishedGame returns a game kept in the in-memory history.
func (c *Coordinator) FinishedGame(number uint64) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.finished[number]
	if !ok {
		return Snapshot{}, reject(ErrGameNotFound, "game %d is not in the recent history", number)
	}
	return s.clone(), nil
}

// Now is the coordinator's clock reading.
func (c *Coordinator) Now() time.Time { return c.clock.Now() }

func (c *Coordinator) authorized(caller Capability) bool {
	if caller.Role != RoleRelayer {
		return false
	}
	if len(c.relayers) == 0 {
		return true
	}
	_, ok := c.relayers[caller.Caller]
	return ok
}

func (c *Coordinator) beginLocked() *txn {
	return &txn{now: c.clock.Now(), g: c.game.clone(), counter: c.counter}
}

// settleLocked pays out every game finished within tx. It runs once the call
// has passed validation, right before the state is committed.
func (c *Coordinator) settleLocked(ctx context.Context, tx *txn) error {
	for _, s := range tx.settlements {
		if err := c.ledger.Payout(ctx, s.game, s.payments); err != nil {
			return wrap(ErrStakeTransfer, err, "pay out game %d", s.game)
		}
	}
	return nil
}

func (c *Coordinator) finishLocked(ctx context.Context, tx *txn) error {
	if err := c.settleLocked(ctx, tx); err != nil {
		return err
	}
	c.commitLocked(tx)
	return nil
}

func (c *Coordinator) commitLocked(tx *txn) {
	c.game = tx.g
	c.counter = tx.counter

	for _, t := range tx.transitions {
		c.log.Info("phase transition",
			"game", t.game, "round", t.round, "from", t.from.String(), "to", t.to.String(), "reason", t.reason)
	}
	for _, r := range tx.scored {
		c.log.Debug("round scored",
			"round", r.Round, "revealed", len(r.Players), "quality", fixedpoint.Format(r.Quality))
	}
	for _, s := range tx.settlements {
		c.log.Info("game settled", "game", s.game, "payments", len(s.payments))
	}
	for _, s := range tx.archived {
		c.rememberLocked(s)
		if c.onArchive != nil {
			c.onArchive(s.clone())
		}
	}
	c.persistLocked()
}

func (c *Coordinator) persistLocked() {
	if c.onPersist == nil {
		return
	}
	c.onPersist(c.snapshotLocked())
}

func (c *Coordinator) rememberLocked(s Snapshot) {
	if c.cfg.HistoryLimit == 0 {
		return
	}
	if _, ok := c.finished[s.GameNumber]; !ok {
		c.finishedOrder = append(c.finishedOrder, s.GameNumber)
	}
	c.finished[s.GameNumber] = s
	for len(c.finishedOrder) > c.cfg.HistoryLimit {
		delete(c.finished, c.finishedOrder[0])
		c.finishedOrder = c.finishedOrder[1:]
	}
}

// syncLocked applies at most one deadline-driven transition.
func (c *Coordinator) syncLocked(tx *txn) error {
	g := tx.g
	if g.deadline.IsZero() || tx.now.Before(g.deadline) {
		return nil
	}
	switch g.phase {
	case PhaseLobby:
		if g.count >= c.cfg.MinPlayers {
			c.startLocked(tx, "lobby deadline")
		} else {
			c.cancelLocked(tx)
		}
	case PhaseCommit:
		c.revealLocked(tx, "commit deadline")
	case PhaseReveal:
		return c.closeRoundLocked(tx, "reveal deadline")
	}
	return nil
}

func (c *Coordinator) moveLocked(tx *txn, to Phase, reason string) {
	tx.transitions = append(tx.transitions, transition{
		game: tx.g.number, round: tx.g.round, from: tx.g.phase, to: to, reason: reason,
	})
	tx.g.phase = to
}

// openLocked replaces a finished game with the next one. Players still in a
// cancelled game get their stake back.
func (c *Coordinator) openLocked(tx *txn) {
	old := tx.g
	if old.phase == PhaseCancelled {
		var payments []Payment
		for _, addr := range old.roster {
			p := old.players[addr]
			if !p.alive {
				continue
			}
			p.payout = new(uint256.Int).Set(c.cfg.FeeWei)
			payments = append(payments, Payment{Player: addr, Stake: new(uint256.Int).Set(c.cfg.FeeWei), Amount: p.payout})
		}
		if len(payments) > 0 {
			tx.settlements = append(tx.settlements, settlement{game: old.number, payments: payments})
		}
		tx.archived = append(tx.archived, snapshotOf(old, tx.counter, c.cfg))
	}
	tx.g = c.newGameRecord(old.number + 1)
	tx.counter = tx.g.number
	tx.transitions = append(tx.transitions, transition{
		game: tx.g.number, from: old.phase, to: PhaseLobby, reason: "new game",
	})
}

func (c *Coordinator) startLocked(tx *txn, reason string) {
	g := tx.g
	g.round = 1
	g.rounds = []*roundState{newRoundState()}
	g.deadline = tx.now.Add(c.cfg.RoundDuration)
	c.moveLocked(tx, PhaseCommit, reason)
}

func (c *Coordinator) cancelLocked(tx *txn) {
	tx.g.deadline = time.Time{}
	c.moveLocked(tx, PhaseCancelled, "lobby deadline")
}

func (c *Coordinator) revealLocked(tx *txn, reason string) {
	tx.g.deadline = tx.now.Add(c.cfg.RoundDuration)
	c.moveLocked(tx, PhaseReveal, reason)
}

// closeRoundLocked scores the current round and advances to the next round or
// ends the game.
func (c *Coordinator) closeRoundLocked(tx *txn, reason string) error {
	g := tx.g
	rs := g.currentRound()

	entries := make([]scoring.Entry, 0, len(rs.reveals))
	for _, addr := range g.roster {
		if !g.players[addr].alive {
			continue
		}
		if sel, ok := rs.reveals[addr]; ok {
			entries = append(entries, scoring.Entry{Player: addr, Counts: sel.Counts()})
		}
	}
	res, err := scoring.Score(c.cfg.Scoring, g.recipe, entries)
	if err != nil {
		return wrap(ErrScoring, err, "game %d round %d", g.number, g.round)
	}
	earned := make(map[common.Address]*uint256.Int, len(res.Players))
	for _, ps := range res.Players {
		earned[ps.Player] = ps.Score
	}

	for _, addr := range g.roster {
		p := g.players[addr]
		if !p.alive {
			continue
		}
		sel, revealed := rs.reveals[addr]
		p.history = append(p.history, RoundEntry{
			Round:       g.round,
			ScoreBefore: new(uint256.Int).Set(p.score),
			Selection:   sel,
			Revealed:    revealed,
		})
		if s, ok := earned[addr]; ok {
			total, overflow := new(uint256.Int).AddOverflow(p.score, s)
			if overflow {
				return wrap(ErrScoring, fixedpoint.ErrOverflow, "cumulative score of %s", addr.Hex())
			}
			p.score = total
		}
	}
	rs.result = &RoundResult{
		Round:   g.round,
		Recipe:  g.recipe.Clone(),
		Quality: res.Quality,
		Pool:    res.Pool,
		Players: res.Players,
	}
	tx.scored = append(tx.scored, rs.result)

	if g.round >= c.cfg.MaxRounds {
		g.deadline = time.Time{}
		c.moveLocked(tx, PhaseEnded, reason)
		tx.counter = g.number + 1
		if err := c.payoutsLocked(tx); err != nil {
			return err
		}
		tx.archived = append(tx.archived, snapshotOf(g, tx.counter, c.cfg))
		return nil
	}

	g.round++
	g.rounds = append(g.rounds, newRoundState())
	if g.round == c.cfg.MaxRounds {
		g.recipe = c.recipes.Recipe(g.number, true)
	}
	g.deadline = tx.now.Add(c.cfg.RoundDuration)
	c.moveLocked(tx, PhaseCommit, reason)
	return nil
}

// payoutsLocked splits the pot of an ended game across the players still in
// it, pro rata by cumulative score and evenly when nobody scored. The rounding
// remainder goes to the first top scorer in join order.
func (c *Coordinator) payoutsLocked(tx *txn) error {
	g := tx.g
	var alive []common.Address
	total := new(uint256.Int)
	for _, addr := range g.roster {
		p := g.players[addr]
		if !p.alive {
			continue
		}
		alive = append(alive, addr)
		if _, overflow := total.AddOverflow(total, p.score); overflow {
			return wrap(ErrScoring, fixedpoint.ErrOverflow, "total score of game %d", g.number)
		}
	}
	if len(alive) == 0 {
		return nil
	}
	pot, overflow := new(uint256.Int).MulOverflow(c.cfg.FeeWei, uint256.NewInt(uint64(len(alive))))
	if overflow {
		return wrap(ErrScoring, fixedpoint.ErrOverflow, "pot of game %d", g.number)
	}

	payments := make([]Payment, len(alive))
	paid := new(uint256.Int)
	top := 0
	for i, addr := range alive {
		p := g.players[addr]
		var amount *uint256.Int
		if total.IsZero() {
			amount = new(uint256.Int).Div(pot, uint256.NewInt(uint64(len(alive))))
		} else {
			// score <= total, so the quotient fits
			amount, _ = new(uint256.Int).MulDivOverflow(pot, p.score, total)
		}
		paid.Add(paid, amount)
		payments[i] = Payment{Player: addr, Stake: new(uint256.Int).Set(c.cfg.FeeWei), Amount: amount}
		if p.score.Gt(g.players[alive[top]].score) {
			top = i
		}
	}
	rest := new(uint256.Int).Sub(pot, paid)
	payments[top].Amount.Add(payments[top].Amount, rest)

	for _, pm := range payments {
		g.players[pm.Player].payout = new(uint256.Int).Set(pm.Amount)
	}
	tx.settlements = append(tx.settlements, settlement{game: g.number, payments: payments})
	return nil
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
