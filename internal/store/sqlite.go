package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"example.com/degenpizza/internal/game"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteArchive is the single-node archive. Schema comes from the migrate
// package, run against DB().
type SQLiteArchive struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteArchive, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteArchive{db: db, now: time.Now}, nil
}

func (a *SQLiteArchive) DB() *sql.DB { return a.db }

func (a *SQLiteArchive) Close() error { return a.db.Close() }

func (a *SQLiteArchive) ArchiveGame(ctx context.Context, snap game.Snapshot) error {
	raw, err := game.Encode(snap)
	if err != nil {
		return err
	}
	now := a.now().UTC()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO finished_games (id, game_number, phase, rounds, player_count, snapshot, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_number) DO NOTHING
	`, uuid.NewString(), int64(snap.GameNumber), snap.Phase.String(), int64(snap.CurrentRound), snap.PlayerCount, string(raw), now)
	if err != nil {
		return fmt.Errorf("insert finished game %d: %w", snap.GameNumber, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return nil
	}

	for _, d := range deltasOf(snap) {
		storedScore, storedPayout := "0", "0"
		err := tx.QueryRowContext(ctx, `
			SELECT total_score, total_payout FROM player_stats WHERE player = ?
		`, d.player.Hex()).Scan(&storedScore, &storedPayout)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
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
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO player_stats (player, games_played, rounds_revealed, total_score, total_payout, updated_at)
			VALUES (?, 1, ?, ?, ?, ?)
			ON CONFLICT (player) DO UPDATE SET
				games_played = player_stats.games_played + 1,
				rounds_revealed = player_stats.rounds_revealed + excluded.rounds_revealed,
				total_score = excluded.total_score,
				total_payout = excluded.total_payout,
				updated_at = excluded.updated_at
		`, d.player.Hex(), d.revealed, total, payout, now); err != nil {
			return fmt.Errorf("update stats for %s: %w", d.player.Hex(), err)
		}
	}
	return tx.Commit()
}

func (a *SQLiteArchive) FinishedGame(ctx context.Context, number uint64) (game.Snapshot, bool, error) {
	var raw string
	err := a.db.QueryRowContext(ctx, `SELECT snapshot FROM finished_games WHERE game_number = ?`, int64(number)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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

func (a *SQLiteArchive) PlayerStats(ctx context.Context, player common.Address) (PlayerStats, error) {
	st := PlayerStats{Player: player, TotalScore: new(uint256.Int), TotalPayout: new(uint256.Int)}
	var storedScore, storedPayout string
	err := a.db.QueryRowContext(ctx, `
		SELECT games_played, rounds_revealed, total_score, total_payout, updated_at
		FROM player_stats
		WHERE player = ?
	`, player.Hex()).Scan(&st.GamesPlayed, &st.RoundsRevealed, &storedScore, &storedPayout, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
