// Package migrations embeds the SQL schema for the document stores and
// applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

func dirFor(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported migration dialect %q", dialect)
}

// Up runs all pending migrations for dialect.
func Up(db *sql.DB, dialect string) error {
	return Run(context.Background(), db, dialect, "up")
}

// Run executes a goose command (up, down, status, version, redo, reset)
// against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, dialect, command string, args ...string) error {
	dir, err := dirFor(dialect)
	if err != nil {
		return err
	}
	goose.SetBaseFS(files)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("run goose %s migrations: %w", command, err)
	}
	return nil
}
