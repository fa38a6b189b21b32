package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/config"
	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/handler"
	"github.com/treeshop/treeshop-ops-go/internal/infra/cache"
	"github.com/treeshop/treeshop-ops-go/internal/infra/gcal"
	"github.com/treeshop/treeshop-ops-go/internal/infra/memstore"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/infra/postgres"
	"github.com/treeshop/treeshop-ops-go/internal/infra/resilience"
	"github.com/treeshop/treeshop-ops-go/internal/infra/sqlite"
	"github.com/treeshop/treeshop-ops-go/internal/port"
	"github.com/treeshop/treeshop-ops-go/internal/service"
	"github.com/treeshop/treeshop-ops-go/internal/store"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	table, _ := cfg.CompensationTable()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("report_cache_ttl", cfg.ReportCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Bool("auth_disabled", cfg.AuthDisabled),
		zap.Bool("calendar_sync", cfg.GCalCalendarID != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "treeshop-ops")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	ctx := context.Background()
	db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()
	repos := store.NewRepositories(db)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Calendar ---
	var calendar port.CalendarPublisher
	if cfg.GCalCredentialsFile != "" {
		cb := resilience.NewCircuitBreaker("google-calendar")
		client, err := gcal.NewFromCredentialsFile(ctx, cfg.GCalCredentialsFile, cfg.GCalCalendarID, cfg.HTTPTimeout, cb, resilienceCfg, logger)
		if err != nil {
			logger.Fatal("failed to init calendar client", zap.Error(err))
		}
		calendar = client
		logger.Info("calendar sync enabled", zap.String("calendar_id", cfg.GCalCalendarID))
	} else {
		logger.Info("calendar sync disabled")
	}

	// --- Cache ---
	dashboards := cache.New[*domain.Dashboard](cfg.ReportCacheTTL)
	defer dashboards.Stop()

	// --- Services ---
	svc := &handler.Services{
		Leads:       service.NewLeadService(repos, metrics, logger),
		Proposals:   service.NewProposalService(repos, metrics, logger),
		WorkOrders:  service.NewWorkOrderService(repos, metrics, logger),
		Invoices:    service.NewInvoiceService(repos, metrics, logger),
		Customers:   service.NewCustomerService(repos, metrics, logger),
		Properties:  service.NewPropertyService(repos, metrics, logger),
		Trees:       service.NewTreeService(repos, metrics, logger),
		Employees:   service.NewEmployeeService(repos, table, metrics, logger),
		Equipment:   service.NewEquipmentService(repos, metrics, logger),
		TimeEntries: service.NewTimeEntryService(repos, metrics, logger),
		Schedule:    service.NewScheduleService(repos, calendar, metrics, logger),
		Settings:    service.NewSettingsService(repos, metrics, logger),
		Reports:     service.NewReportService(repos, dashboards, resilience.NewBulkhead(cfg.MaxConcurrency), metrics, logger),
		Calculator:  service.NewCalculatorService(table, metrics, logger),
		Identity:    service.NewIdentityService(cfg.JWTSecret, cfg.JWTIssuer, logger),
	}

	if _, err := svc.Settings.Ensure(ctx, cfg.DefaultTaxRate, cfg.FuelPrice); err != nil {
		logger.Fatal("failed to seed company settings", zap.Error(err))
	}
	// The multiplier table may have changed since the last start.
	if n, err := svc.Employees.RepriceAll(ctx); err != nil {
		logger.Error("employee repricing failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("employees repriced", zap.Int("count", n))
	}
	if n, err := svc.Proposals.ExpireStale(ctx); err != nil {
		logger.Error("proposal expiry sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("stale proposals expired", zap.Int("count", n))
	}

	if cfg.AuthDisabled {
		logger.Warn("authentication disabled, all requests act as the system user")
	}

	// --- Router ---
	router := handler.NewRouter(svc, db, handler.RouterConfig{AuthDisabled: cfg.AuthDisabled}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore opens the configured document store. Durable stores apply
// pending migrations on open.
func openStore(ctx context.Context, cfg *config.Config) (port.DocumentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memstore.New(), func() {}, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
