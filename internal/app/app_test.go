package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"example.com/degenpizza/internal/config"
	"example.com/degenpizza/internal/game"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("ARCHIVE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("GAME_MAX_ROUNDS", "3")
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	return cfg
}

func TestGameConfig(t *testing.T) {
	cfg := testConfig(t)
	gc := GameConfig(cfg)
	require.NoError(t, gc.Validate())
	require.Equal(t, uint64(3), gc.MaxRounds)
	require.Equal(t, cfg.Game.FeeWei, gc.FeeWei)
	require.Equal(t, cfg.Game.Beta, gc.Scoring.Beta)
}

func TestNewServesGame(t *testing.T) {
	cfg := testConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/game")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap game.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, uint64(1), snap.GameNumber)
	require.Equal(t, game.PhaseLobby, snap.Phase)
	require.Equal(t, uint64(3), snap.Rules.MaxRounds)

	resp2, err := http.Get(srv.URL + "/api/players/0x00000000000000000000000000000000000000aa/stats")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}
