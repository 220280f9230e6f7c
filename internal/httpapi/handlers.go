package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"example.com/degenpizza/internal/game"
	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
)

type StatsReader interface {
	PlayerStats(ctx context.Context, player common.Address) (store.PlayerStats, error)
}

type GameHandler struct {
	Games *game.Service
	Stats StatsReader // optional
}

type JoinRequest struct {
	Stake *uint256.Int `json:"stake"`
}

type LeaveResponse struct {
	Refunded *uint256.Int  `json:"refunded"`
	State    game.Snapshot `json:"state"`
}

type CommitRequest struct {
	Hash common.Hash `json:"hash"`
}

type RevealRequest struct {
	Salt        common.Hash      `json:"salt"`
	Ingredients recipe.Selection `json:"ingredients"`
}

// CommitmentRequest asks for the hash of a commitment. Game and round default
// to the current ones when zero.
type CommitmentRequest struct {
	Player      common.Address   `json:"player"`
	Game        uint64           `json:"game,string,omitempty"`
	Round       uint64           `json:"round,string,omitempty"`
	Salt        common.Hash      `json:"salt"`
	Ingredients recipe.Selection `json:"ingredients"`
}

type CommitmentResponse struct {
	Hash  common.Hash `json:"hash"`
	Game  uint64      `json:"game,string"`
	Round uint64      `json:"round,string"`
}

func (h *GameHandler) player(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	c, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context")
		return common.Address{}, false
	}
	return c.Address, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json: "+err.Error())
		return false
	}
	return true
}

func (h *GameHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Games.Coordinator().Snapshot())
}

func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(w, r)
	if !ok {
		return
	}
	var req JoinRequest
	if !decode(w, r, &req) {
		return
	}
	coord := h.Games.Coordinator()
	if err := coord.Join(r.Context(), player, req.Stake); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *GameHandler) Leave(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(w, r)
	if !ok {
		return
	}
	coord := h.Games.Coordinator()
	refund, err := coord.Leave(r.Context(), player)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveResponse{Refunded: refund, State: coord.Snapshot()})
}

func (h *GameHandler) Commit(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(w, r)
	if !ok {
		return
	}
	var req CommitRequest
	if !decode(w, r, &req) {
		return
	}
	coord := h.Games.Coordinator()
	if err := coord.Commit(r.Context(), player, req.Hash); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *GameHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(w, r)
	if !ok {
		return
	}
	var req RevealRequest
	if !decode(w, r, &req) {
		return
	}
	coord := h.Games.Coordinator()
	if err := coord.Reveal(r.Context(), player, req.Salt, req.Ingredients); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *GameHandler) CloseRound(w http.ResponseWriter, r *http.Request) {
	c, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context")
		return
	}
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "round must be a positive integer")
		return
	}
	coord := h.Games.Coordinator()
	caller := game.Capability{Caller: c.Address, Role: c.Role}
	if err := coord.CloseRound(r.Context(), caller, round); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *GameHandler) FinishedGame(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "game number must be a positive integer")
		return
	}
	snap, err := h.Games.FinishedGame(r.Context(), number)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *GameHandler) Commitment(w http.ResponseWriter, r *http.Request) {
	var req CommitmentRequest
	if !decode(w, r, &req) {
		return
	}
	coord := h.Games.Coordinator()
	if req.Game == 0 || req.Round == 0 {
		snap := coord.Snapshot()
		if req.Game == 0 {
			req.Game = snap.GameNumber
		}
		if req.Round == 0 {
			req.Round = snap.CurrentRound
		}
	}
	if err := req.Ingredients.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_selection", err.Error())
		return
	}
	hash := coord.CommitmentHash(req.Player, req.Game, req.Round, req.Salt, req.Ingredients)
	writeJSON(w, http.StatusOK, CommitmentResponse{Hash: hash, Game: req.Game, Round: req.Round})
}

func (h *GameHandler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		writeError(w, http.StatusNotFound, "not_found", "player stats are not enabled")
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid address")
		return
	}
	st, err := h.Stats.PlayerStats(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
