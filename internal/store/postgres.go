package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/degenpizza/internal/game"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresArchive struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresArchive(db *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{db: db, now: time.Now}
}

// ArchiveGame stores a finished game and folds it into player stats. A game
// that is already archived is left untouched.
func (a *PostgresArchive) ArchiveGame(ctx context.Context, snap game.Snapshot) error {
	raw, err := game.Encode(snap)
	if err != nil {
		return err
	}
	now := a.now().UTC()

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO finished_games (id, game_number, phase, rounds, player_count, snapshot, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_number) DO NOTHING
	`, uuid.NewString(), int64(snap.GameNumber), snap.Phase.String(), int64(snap.CurrentRound), snap.PlayerCount, string(raw), now)
	if err != nil {
		return fmt.Errorf("insert finished game %d: %w", snap.GameNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, d := range deltasOf(snap) {
		storedScore, storedPayout := "0", "0"
		err := tx.QueryRow(ctx, `
			SELECT total_score, total_payout FROM player_stats WHERE player=$1 FOR UPDATE
		`, d.player.Hex()).Scan(&storedScore, &storedPayout)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		total, err := addTotal(storedScore, d.score)
		if err != nil {
			return err
		}
		payout, err := addTotal(storedPayout, d.payout)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO player_stats (player, games_played, rounds_revealed, total_score, total_payout, updated_at)
			VALUES ($1, 1, $2, $3, $4, $5)
			ON CONFLICT (player) DO UPDATE SET
				games_played = player_stats.games_played + 1,
				rounds_revealed = player_stats.rounds_revealed + EXCLUDED.rounds_revealed,
				total_score = EXCLUDED.total_score,
				total_payout = EXCLUDED.total_payout,
				updated_at = EXCLUDED.updated_at
		`, d.player.Hex(), d.revealed, total, payout, now); err != nil {
			return fmt.Errorf("update stats for %s: %w", d.player.Hex(), err)
		}
	}
	return tx.Commit(ctx)
}

func (a *PostgresArchive) FinishedGame(ctx context.Context, number uint64) (game.Snapshot, bool, error) {
	var raw string
	err := a.db.QueryRow(ctx, `
		SELECT snapshot FROM finished_games WHERE game_number=$1
	`, int64(number)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Snapshot{}, false, nil
	}
	if err != nil {
		return game.Snapshot{}, false, err
	}
	snap, err := game.DecodeSnapshot([]byte(raw))
	if err != nil {
		return game.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (a *PostgresArchive) PlayerStats(ctx context.Context, player common.Address) (PlayerStats, error) {
	st := PlayerStats{Player: player}
	var storedScore, storedPayout string
	err := a.db.QueryRow(ctx, `
		SELECT games_played, rounds_revealed, total_score, total_payout, updated_at
		FROM player_stats
		WHERE player=$1
	`, player.Hex()).Scan(&st.GamesPlayed, &st.RoundsRevealed, &storedScore, &storedPayout, &st.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// a player who never finished a game simply has zero stats
		st.TotalScore = new(uint256.Int)
		st.TotalPayout = new(uint256.Int)
		return st, nil
	}
	if err != nil {
		return PlayerStats{}, err
	}
	if st.TotalScore, err = parseTotal(storedScore); err != nil {
		return PlayerStats{}, err
	}
	if st.TotalPayout, err = parseTotal(storedPayout); err != nil {
		return PlayerStats{}, err
	}
	return st, nil
}

func (a *PostgresArchive) Close() error {
	a.db.Close()
	return nil
}
