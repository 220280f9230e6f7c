package game

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/scoring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Snapshot is the serializable state of one game. Big numbers travel as
// decimal strings, addresses and hashes as 0x-hex and times as unix millis.
type Snapshot struct {
	GameNumber   uint64 `json:"gameNumber,string"`
	GameCounter  uint64 `json:"gameCounter,string"`
	Phase        Phase  `json:"phase"`
	CurrentRound uint64 `json:"currentRound,string"`
	PlayerCount  int    `json:"playerCount"`
	DeadlineMs   int64  `json:"deadlineMs,string"` // 0 when there is no deadline

	Recipe  recipe.Recipe    `json:"recipe"`
	Players []common.Address `json:"players"`

	Rounds       []RoundSnapshot  `json:"rounds"`
	PlayerStates []PlayerSnapshot `json:"playerStates"`

	Rules Rules `json:"rules"`
}

type RoundSnapshot struct {
	Round       uint64       `json:"round,string"`
	CommitCount int          `json:"commitCount"`
	RevealCount int          `json:"revealCount"`
	Result      *RoundResult `json:"result,omitempty"`
}

// PlayerSnapshot holds per-round slices indexed by round-1.
type PlayerSnapshot struct {
	Address          common.Address     `json:"address"`
	Alive            bool               `json:"alive"`
	Score            *uint256.Int       `json:"score"`
	LatestCommitment common.Hash        `json:"latestCommitment"`
	History          []RoundEntry       `json:"history"`
	Commitments      []common.Hash      `json:"commitments"`
	Revealed         []bool             `json:"revealed"`
	Reveals          []recipe.Selection `json:"reveals"`
	Payout           *uint256.Int       `json:"payout"` // zero until the game is settled
}

// Rules echoes the coordinator configuration clients need to play.
type Rules struct {
	MinPlayers      int          `json:"minPlayers"`
	MaxPlayers      int          `json:"maxPlayers"`
	MaxRounds       uint64       `json:"maxRounds,string"`
	LobbyDurationMs int64        `json:"lobbyDurationMs,string"`
	RoundDurationMs int64        `json:"roundDurationMs,string"`
	FeeWei          *uint256.Int `json:"feeWei"`
	Alpha           *uint256.Int `json:"alpha"`
	Beta            *uint256.Int `json:"beta"`
}

func rulesOf(cfg Config) Rules {
	return Rules{
		MinPlayers:      cfg.MinPlayers,
		MaxPlayers:      cfg.MaxPlayers,
		MaxRounds:       cfg.MaxRounds,
		LobbyDurationMs: cfg.LobbyDuration.Milliseconds(),
		RoundDurationMs: cfg.RoundDuration.Milliseconds(),
		FeeWei:          cloneInt(cfg.FeeWei),
		Alpha:           cloneInt(cfg.Scoring.Alpha),
		Beta:            cloneInt(cfg.Scoring.Beta),
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return snapshotOf(c.game, c.counter, c.cfg)
}

func snapshotOf(g *gameRecord, counter uint64, cfg Config) Snapshot {
	s := Snapshot{
		GameNumber:   g.number,
		GameCounter:  counter,
		Phase:        g.phase,
		CurrentRound: g.round,
		PlayerCount:  g.count,
		DeadlineMs:   toMs(g.deadline),
		Recipe:       g.recipe.Clone(),
		Players:      append([]common.Address{}, g.roster...),
		Rounds:       make([]RoundSnapshot, len(g.rounds)),
		PlayerStates: make([]PlayerSnapshot, 0, len(g.roster)),
		Rules:        rulesOf(cfg),
	}
	for i, rs := range g.rounds {
		s.Rounds[i] = RoundSnapshot{
			Round:       uint64(i + 1),
			CommitCount: len(rs.commits),
			RevealCount: len(rs.reveals),
			Result:      rs.result.clone(),
		}
	}
	for _, addr := range g.roster {
		p := g.players[addr]
		ps := PlayerSnapshot{
			Address:          addr,
			Alive:            p.alive,
			Score:            cloneInt(p.score),
			LatestCommitment: p.latestCommit,
			History:          cloneHistory(p.history),
			Commitments:      make([]common.Hash, len(g.rounds)),
			Revealed:         make([]bool, len(g.rounds)),
			Reveals:          make([]recipe.Selection, len(g.rounds)),
			Payout:           cloneInt(p.payout),
		}
		for i, rs := range g.rounds {
			ps.Commitments[i] = rs.commits[addr]
			ps.Reveals[i], ps.Revealed[i] = rs.reveals[addr]
		}
		s.PlayerStates = append(s.PlayerStates, ps)
	}
	return s
}

// Restore replaces the current game with a previously taken snapshot. The
// in-memory finished-game history is not part of a snapshot and is left
// untouched.
func (c *Coordinator) Restore(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restoreLocked(s)
}

func (c *Coordinator) restoreLocked(s Snapshot) error {
	if s.GameNumber == 0 {
		return fmt.Errorf("restore: game number is zero")
	}
	if _, ok := phaseNames[s.Phase]; !ok {
		return fmt.Errorf("restore: unknown phase %d", uint8(s.Phase))
	}
	switch s.Phase {
	case PhaseCommit, PhaseReveal:
		if s.CurrentRound == 0 || s.CurrentRound > c.cfg.MaxRounds || uint64(len(s.Rounds)) != s.CurrentRound {
			return fmt.Errorf("restore: round %d with %d round records", s.CurrentRound, len(s.Rounds))
		}
	}

	g := &gameRecord{
		number:   s.GameNumber,
		phase:    s.Phase,
		round:    s.CurrentRound,
		deadline: fromMs(s.DeadlineMs),
		recipe:   s.Recipe.Clone(),
		roster:   append([]common.Address(nil), s.Players...),
		players:  make(map[common.Address]*playerState, len(s.PlayerStates)),
		rounds:   make([]*roundState, len(s.Rounds)),
	}
	for i, rs := range s.Rounds {
		r := newRoundState()
		r.result = rs.Result.clone()
		g.rounds[i] = r
	}

	for _, ps := range s.PlayerStates {
		if _, dup := g.players[ps.Address]; dup {
			return fmt.Errorf("restore: duplicate player %s", ps.Address.Hex())
		}
		p := &playerState{
			alive:        ps.Alive,
			score:        cloneInt(ps.Score),
			latestCommit: ps.LatestCommitment,
			history:      cloneHistory(ps.History),
		}
		if ps.Payout != nil && !ps.Payout.IsZero() {
			p.payout = cloneInt(ps.Payout)
		}
		g.players[ps.Address] = p
		if p.alive {
			g.count++
		}
		for i, h := range ps.Commitments {
			if i >= len(g.rounds) || h == (common.Hash{}) {
				continue
			}
			g.rounds[i].commits[ps.Address] = h
		}
		for i, revealed := range ps.Revealed {
			if !revealed || i >= len(g.rounds) || i >= len(ps.Reveals) {
				continue
			}
			g.rounds[i].reveals[ps.Address] = ps.Reveals[i]
		}
	}
	if len(g.players) != len(g.roster) {
		return fmt.Errorf("restore: %d players listed, %d player states", len(g.roster), len(g.players))
	}
	for _, a := range g.roster {
		if _, ok := g.players[a]; !ok {
			return fmt.Errorf("restore: no state for player %s", a.Hex())
		}
	}
	if g.count != s.PlayerCount {
		return fmt.Errorf("restore: player count %d, %d alive players", s.PlayerCount, g.count)
	}

	c.game = g
	c.counter = s.GameCounter
	if c.counter == 0 {
		c.counter = g.number
	}
	return nil
}

// Encode serializes a snapshot to JSON.
func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Recipe = s.Recipe.Clone()
	c.Players = slices.Clone(s.Players)
	c.Rounds = slices.Clone(s.Rounds)
	for i := range c.Rounds {
		c.Rounds[i].Result = c.Rounds[i].Result.clone()
	}
	c.PlayerStates = slices.Clone(s.PlayerStates)
	for i := range c.PlayerStates {
		p := &c.PlayerStates[i]
		p.Score = cloneInt(p.Score)
		p.Payout = cloneInt(p.Payout)
		p.History = cloneHistory(p.History)
		p.Commitments = slices.Clone(p.Commitments)
		p.Revealed = slices.Clone(p.Revealed)
		p.Reveals = slices.Clone(p.Reveals)
	}
	c.Rules.FeeWei = cloneInt(s.Rules.FeeWei)
	c.Rules.Alpha = cloneInt(s.Rules.Alpha)
	c.Rules.Beta = cloneInt(s.Rules.Beta)
	return c
}

// Player returns the state of addr, if it ever joined this game.
func (s Snapshot) Player(addr common.Address) (PlayerSnapshot, bool) {
	for _, p := range s.PlayerStates {
		if p.Address == addr {
			return p, true
		}
	}
	return PlayerSnapshot{}, false
}

// Deadline is DeadlineMs as a time; zero when there is no deadline.
func (s Snapshot) Deadline() time.Time { return fromMs(s.DeadlineMs) }

func (r *RoundResult) clone() *RoundResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Recipe = r.Recipe.Clone()
	c.Quality = cloneInt(r.Quality)
	c.Players = slices.Clone(r.Players)
	for i, p := range r.Players {
		c.Players[i] = scoring.PlayerScore{
			Player:       p.Player,
			Uniqueness:   cloneInt(p.Uniqueness),
			Contribution: cloneInt(p.Contribution),
			Score:        cloneInt(p.Score),
		}
	}
	return &c
}

func cloneHistory(h []RoundEntry) []RoundEntry {
	out := slices.Clone(h)
	for i := range out {
		out[i].ScoreBefore = cloneInt(out[i].ScoreBefore)
	}
	return out
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
