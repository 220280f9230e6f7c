package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"example.com/degenpizza/internal/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
)

// Config describes all runtime settings for the server.
//
// Load it once in main, validate, and pass it down; there are no globals.
type Config struct {
	Env string // dev|stage|prod

	Log struct {
		Format string // text|json
		Level  string // debug|info|warn|error
	}

	HTTP struct {
		Addr              string
		ReadHeaderTimeout time.Duration
		ReadTimeout       time.Duration
		WriteTimeout      time.Duration
		IdleTimeout       time.Duration
		ShutdownTimeout   time.Duration
	}

	Archive struct {
		Driver        string // postgres|sqlite|none
		PostgresURL   string
		SQLitePath    string
		RunMigrations bool
	}

	Redis struct {
		Addr        string // empty keeps the snapshot in memory
		DB          int
		SnapshotTTL time.Duration
	}

	Auth struct {
		Secret string
	}

	Game struct {
		MinPlayers    int
		MaxPlayers    int
		MaxRounds     uint64
		LobbyDuration time.Duration
		RoundDuration time.Duration
		FeeWei        *uint256.Int
		Alpha         *uint256.Int // WAD
		Beta          *uint256.Int // WAD
		RecipeSeed    common.Hash  // zero keeps the fixed default recipe
		HistoryLimit  int
		CloseInterval time.Duration
		Relayers      []common.Address // pins the close capability; empty trusts the role alone
	}
}

// LoadDotEnv loads path into the environment when it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func LoadFromEnv() (Config, error) {
	var c Config

	c.Env = envString("APP_ENV", "dev")
	c.Log.Format = envString("LOG_FORMAT", "text")
	c.Log.Level = envString("LOG_LEVEL", "info")

	port := envString("PORT", "8080")
	c.HTTP.Addr = envString("HTTP_ADDR", ":"+port)
	c.HTTP.ReadHeaderTimeout = envDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	c.HTTP.ReadTimeout = envDuration("HTTP_READ_TIMEOUT", 0)
	c.HTTP.WriteTimeout = envDuration("HTTP_WRITE_TIMEOUT", 0)
	c.HTTP.IdleTimeout = envDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)
	c.HTTP.ShutdownTimeout = envDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	c.Archive.Driver = envString("ARCHIVE_DRIVER", "sqlite")
	c.Archive.PostgresURL = envString("DATABASE_URL", "")
	c.Archive.SQLitePath = envString("SQLITE_PATH", "degenpizza.db")
	c.Archive.RunMigrations = envBool("RUN_MIGRATIONS", true)

	c.Redis.Addr = envString("REDIS_ADDR", "")
	c.Redis.DB = envInt("REDIS_DB", 0)
	c.Redis.SnapshotTTL = envDuration("SNAPSHOT_TTL", 7*24*time.Hour)

	c.Auth.Secret = envString("JWT_SECRET", "dev-secret-change-me")

	c.Game.MinPlayers = envInt("GAME_MIN_PLAYERS", 2)
	c.Game.MaxPlayers = envInt("GAME_MAX_PLAYERS", 8)
	c.Game.LobbyDuration = envDuration("GAME_LOBBY_DURATION", 10*time.Minute)
	c.Game.RoundDuration = envDuration("GAME_ROUND_DURATION", 2*time.Minute)
	c.Game.HistoryLimit = envInt("GAME_HISTORY_LIMIT", 32)
	c.Game.CloseInterval = envDuration("GAME_CLOSE_INTERVAL", time.Second)

	var err error
	if c.Game.MaxRounds, err = envUint64("GAME_MAX_ROUNDS", 10); err != nil {
		return Config{}, err
	}
	if c.Game.FeeWei, err = envUint256("GAME_FEE_WEI", "10000000000000000"); err != nil {
		return Config{}, err
	}
	if c.Game.Alpha, err = envWad("GAME_ALPHA", "1"); err != nil {
		return Config{}, err
	}
	if c.Game.Beta, err = envWad("GAME_BETA", "0.3"); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("GAME_RECIPE_SEED"); v != "" {
		b, err := hexBytes(v)
		if err != nil {
			return Config{}, fmt.Errorf("GAME_RECIPE_SEED: %w", err)
		}
		c.Game.RecipeSeed = common.BytesToHash(b)
	}
	for _, v := range strings.Split(os.Getenv("RELAYER_ADDRESS"), ",") {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return Config{}, fmt.Errorf("RELAYER_ADDRESS: %q is not an address", v)
		}
		c.Game.Relayers = append(c.Game.Relayers, common.HexToAddress(v))
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("HTTP addr is empty")
	}
	switch c.Archive.Driver {
	case "postgres":
		if c.Archive.PostgresURL == "" {
			return errors.New("DATABASE_URL is empty")
		}
	case "sqlite":
		if c.Archive.SQLitePath == "" {
			return errors.New("SQLITE_PATH is empty")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported ARCHIVE_DRIVER=%q (want postgres|sqlite|none)", c.Archive.Driver)
	}
	if c.Auth.Secret == "" {
		return errors.New("JWT_SECRET is empty")
	}
	if c.Env != "dev" && c.Auth.Secret == "dev-secret-change-me" {
		return fmt.Errorf("refuse to run with default JWT_SECRET in %s", c.Env)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported LOG_FORMAT=%q (want text|json)", c.Log.Format)
	}
	if c.Game.CloseInterval <= 0 {
		return errors.New("GAME_CLOSE_INTERVAL must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func envUint64(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return n, nil
}

// envUint256 reads a base-10 integer. Unlike the helpers above a bad value is
// an error.
func envUint256(key, def string) (*uint256.Int, error) {
	v := envString(key, def)
	n, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return n, nil
}

// envWad reads a decimal fraction such as "0.3" as a WAD.
func envWad(key, def string) (*uint256.Int, error) {
	v := envString(key, def)
	n, err := fixedpoint.ParseDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func hexBytes(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) > common.HashLength {
		return nil, fmt.Errorf("seed longer than %d bytes", common.HashLength)
	}
	return b, nil
}
