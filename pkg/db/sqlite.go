package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// OpenLedger opens the SQLite ledger at path and migrates it. ":memory:" is
// accepted for tests; the pool is then pinned to one connection so every
// query sees the same database.
func OpenLedger(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := path
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if memory {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	migrations, err := fs.Sub(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to load ledger migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, migrations)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create ledger migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply ledger migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied",
			slog.String("store", "ledger"),
			slog.String("source", r.Source.Path),
		)
	}
	return sqlDB, nil
}
