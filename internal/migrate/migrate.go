package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Up applies all pending migrations to db.
func Up(db *sql.DB, dialect string, log *slog.Logger) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}

	if log != nil {
		log.Info("running database migrations", "dialect", dialect)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrations: goose up: %w", err)
	}
	if log != nil {
		log.Info("database migrations applied")
	}
	return nil
}

// UpURL opens a Postgres database by URL and migrates it.
func UpURL(dbURL string, log *slog.Logger) error {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("migrations: open db: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil && log != nil {
			log.Error("database close error", "err", err)
		}
	}(db)

	return Up(db, DialectPostgres, log)
}
