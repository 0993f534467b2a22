package core

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/assets"
	"github.com/eHtmlu/peak-publisher/internal/config"
	"github.com/eHtmlu/peak-publisher/internal/db"
	"github.com/eHtmlu/peak-publisher/internal/logging"
	"github.com/eHtmlu/peak-publisher/internal/metrics"
	"github.com/eHtmlu/peak-publisher/internal/util"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Logger  *zap.Logger
	Metrics *metrics.Prometheus
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig is New for an already loaded configuration.
func NewWithConfig(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	for _, dir := range []string{cfg.Storage.Path, cfg.Uploads.Path} {
		if err := util.EnsureWritableDir(dir); err != nil {
			return nil, fmt.Errorf("failed to prepare directory %s: %w", dir, err)
		}
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS, logger); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	logger.Info("core application setup complete",
		zap.String("database", cfg.Database.Path),
		zap.String("storage", cfg.Storage.Path))
	return &App{
		Config:  cfg,
		DB:      database,
		Logger:  logger,
		Metrics: metrics.NewPrometheus(),
	}, nil
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
