package game

import (
	"encoding/json"
	"fmt"
	"strings"

	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/scoring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Phase uint8

const (
	PhaseLobby Phase = iota
	PhaseCommit
	PhaseReveal
	PhaseEnded
	PhaseCancelled
)

var phaseNames = map[Phase]string{
	PhaseLobby:     "lobby",
	PhaseCommit:    "commit",
	PhaseReveal:    "reveal",
	PhaseEnded:     "ended",
	PhaseCancelled: "cancelled",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Terminal reports whether the phase accepts no further play. A join on a
// terminal game opens the next one.
func (p Phase) Terminal() bool { return p == PhaseEnded || p == PhaseCancelled }

func (p Phase) MarshalText() ([]byte, error) {
	if _, ok := phaseNames[p]; !ok {
		return nil, fmt.Errorf("unknown phase %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for k, n := range phaseNames {
		if n == s {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", s)
}

const RoleRelayer = "relayer"

// Capability identifies the caller of a privileged operation.
type Capability struct {
	Caller common.Address
	Role   string
}

// RoundEntry is one line of a player's per-game history. ScoreBefore is the
// cumulative score before the round was added; Selection is empty when the
// player did not reveal.
type RoundEntry struct {
	Round       uint64           `json:"round,string"`
	ScoreBefore *uint256.Int     `json:"scoreBefore"`
	Selection   recipe.Selection `json:"selection"`
	Revealed    bool             `json:"revealed"`
}

// RoundResult is the scoring breakdown of a closed round.
type RoundResult struct {
	Round   uint64                `json:"round,string"`
	Recipe  recipe.Recipe         `json:"recipe"`
	Quality *uint256.Int          `json:"quality"`
	Pool    recipe.Counts         `json:"pool"`
	Players []scoring.PlayerScore `json:"players"`
}

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AuthPayload struct {
	Token string `json:"token"`
}

type JoinPayload struct {
	Stake *uint256.Int `json:"stake"`
}

type CommitPayload struct {
	Hash common.Hash `json:"hash"`
}

type RevealPayload struct {
	Salt        common.Hash      `json:"salt"`
	Ingredients recipe.Selection `json:"ingredients"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
