package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/handlers"
	"github.com/sensorbridge/sensorbridge-engine/pkg/logging"
	"github.com/sensorbridge/sensorbridge-engine/pkg/metrics"
	"github.com/sensorbridge/sensorbridge-engine/pkg/middleware"
	"github.com/sensorbridge/sensorbridge-engine/pkg/repositories"
	"github.com/sensorbridge/sensorbridge-engine/pkg/services"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sensorbridge-engine",
		Short:         "Harvests sensor observation services into a relational catalog",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newHarvestCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the periodic harvest loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newHarvestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Run a single harvest pass over the configured sources and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest()
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := newLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return migrateDatabase(cfg, logger)
		},
	}
}

// engine holds the wired components shared by serve and harvest.
type engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *database.DB
	set       *connectors.Set
	registry  *prometheus.Registry
	harvester services.Harvester
}

func (e *engine) close() {
	e.db.Close()
	_ = e.logger.Sync()
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return nil, err
	}

	sources, err := config.LoadSources(cfg.Harvest.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load harvest sources: %w", err)
	}

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Int("sources", len(sources)))

	if err := migrateDatabase(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	client := sos.NewHTTPClient(cfg.Harvest.ConnectionTimeout())
	set := connectors.NewSet(connectors.Deps{Client: client, Logger: logger})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	harvestMetrics := metrics.NewHarvestMetrics(registry)

	repo := repositories.NewInsertRepository(db, logger)
	harvester := services.NewHarvester(sources, client, set, repo, harvestMetrics, logger)

	return &engine{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		set:       set,
		registry:  registry,
		harvester: harvester,
	}, nil
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	eng.harvester.Run(ctx, eng.cfg.Harvest.Interval())

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(eng.cfg, eng.logger)
	healthHandler.RegisterRoutes(mux)

	datasetsRepo := repositories.NewDatasetRepository()
	dataService := services.NewDataService(eng.db, datasetsRepo, eng.set, eng.logger)
	datasetsHandler := handlers.NewDatasetsHandler(eng.db, datasetsRepo, dataService, eng.logger)
	datasetsHandler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.HandlerFor(eng.registry, promhttp.HandlerOpts{}))

	addr := eng.cfg.BindAddr + ":" + eng.cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           middleware.RequestLogger(eng.logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		eng.logger.Info("Starting sensorbridge-engine",
			zap.String("addr", addr),
			zap.String("version", eng.cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	eng.logger.Info("Server stopped")
	return nil
}

func runHarvest() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.harvester.RunOnce(ctx); err != nil {
		return fmt.Errorf("harvest pass failed: %w", err)
	}
	return nil
}

func migrateDatabase(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
		return fmt.Errorf("failed to run migrations: %s", logging.SanitizeError(err))
	}
	return nil
}

func newLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
