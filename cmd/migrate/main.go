// Command migrate runs goose commands against the configured store.
//
//	migrate [up|down|status|version|redo|reset] [args...]
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/config"
	"github.com/treeshop/treeshop-ops-go/internal/infra/migrations"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/infra/postgres"
)

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	if err := run(context.Background(), cfg, command, args); err != nil {
		logger.Fatal("migration failed",
			zap.String("driver", cfg.StoreDriver),
			zap.String("command", command),
			zap.Error(err),
		)
	}
	logger.Info("migration complete", zap.String("driver", cfg.StoreDriver), zap.String("command", command))
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with STORE_DRIVER=%s", config.StorePostgres)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		return postgres.Migrate(ctx, pool, command, args...)
	case config.StoreSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite database: %w", err)
		}
		defer db.Close()
		return migrations.Run(ctx, db, migrations.DialectSQLite, command, args...)
	default:
		return fmt.Errorf("STORE_DRIVER %q has no schema to migrate", cfg.StoreDriver)
	}
}
