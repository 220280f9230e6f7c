package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/degenpizza/internal/auth"
	"example.com/degenpizza/internal/config"
	"example.com/degenpizza/internal/game"
	"example.com/degenpizza/internal/httpapi"
	"example.com/degenpizza/internal/migrate"
	"example.com/degenpizza/internal/recipe"
	"example.com/degenpizza/internal/scoring"
	"example.com/degenpizza/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	rdb     *redis.Client // nil when snapshots stay in memory
	archive store.Archive // nil when ARCHIVE_DRIVER=none

	games  *game.Service
	closer *game.Closer
	srv    *http.Server
}

// GameConfig maps runtime settings onto the coordinator configuration.
func GameConfig(cfg config.Config) game.Config {
	gc := game.DefaultConfig()
	gc.MinPlayers = cfg.Game.MinPlayers
	gc.MaxPlayers = cfg.Game.MaxPlayers
	gc.MaxRounds = cfg.Game.MaxRounds
	gc.LobbyDuration = cfg.Game.LobbyDuration
	gc.RoundDuration = cfg.Game.RoundDuration
	gc.HistoryLimit = cfg.Game.HistoryLimit
	if cfg.Game.FeeWei != nil {
		gc.FeeWei = cfg.Game.FeeWei
	}
	if cfg.Game.Alpha != nil && cfg.Game.Beta != nil {
		gc.Scoring = scoring.Params{Alpha: cfg.Game.Alpha, Beta: cfg.Game.Beta}
	}
	return gc
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// --- Redis ---
	var persist game.SnapshotStore
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
		}
		persist = game.NewRedisSnapshotStore(a.rdb, cfg.Redis.SnapshotTTL)
	} else {
		log.Warn("REDIS_ADDR is empty, the current game will not survive a restart")
		persist = game.NewMemorySnapshotStore()
	}

	// --- Archive ---
	archive, err := openArchive(pingCtx, cfg, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.archive = archive

	// --- Game ---
	opts := []game.Option{
		game.WithLedger(game.NewMemoryLedger()),
		game.WithRelayers(cfg.Game.Relayers...),
	}
	if cfg.Game.RecipeSeed != (common.Hash{}) {
		opts = append(opts, game.WithRecipes(recipe.NewGenerator(cfg.Game.RecipeSeed)))
	}
	deps := game.ServiceDeps{Persist: persist, Logger: log}
	if archive != nil {
		deps.Archive = archive
	}
	games, err := game.NewService(ctx, GameConfig(cfg), deps, opts...)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("game service: %w", err)
	}
	a.games = games

	var relayer common.Address
	if len(cfg.Game.Relayers) > 0 {
		relayer = cfg.Game.Relayers[0]
	}
	a.closer = game.NewCloser(games.Coordinator(), relayer, cfg.Game.CloseInterval, log)

	// --- HTTP ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret))
	rd := httpapi.RouterDeps{
		Games:    games,
		Verifier: authSvc,
		WS:       game.NewServer(games, authSvc, log),
		Log:      log,
	}
	if archive != nil {
		rd.Stats = archive
	}

	a.srv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(rd),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	return a, nil
}

func openArchive(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Archive, error) {
	switch cfg.Archive.Driver {
	case "postgres":
		if cfg.Archive.RunMigrations {
			if err := migrate.UpURL(cfg.Archive.PostgresURL, log); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.Archive.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		return store.NewPostgresArchive(pool), nil
	case "sqlite":
		a, err := store.OpenSQLite(cfg.Archive.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.Archive.RunMigrations {
			if err := migrate.Up(a.DB(), migrate.DialectSQLite, log); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		return a, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported archive driver %q", cfg.Archive.Driver)
}

// Handler exposes the HTTP surface, mostly for tests.
func (a *App) Handler() http.Handler { return a.srv.Handler }

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return a.closer.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.archive != nil {
		_ = a.archive.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
