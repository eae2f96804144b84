// Package bootstrap brings up the infrastructure a bot needs before it can
// build its handlers: logging, the database pool and the schema.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/walletbot/core/config"
	coredatabase "github.com/m3rciful/walletbot/core/database"
	"github.com/m3rciful/walletbot/core/logger"
)

// Options select the stages Run executes. Nil hooks fall back to the core
// implementations.
type Options struct {
	Config *coreconfig.Config
	// Database is nil for bots running without Postgres.
	Database *coredatabase.Config
	// Migrations is used when Database.MigrationsDir does not exist.
	Migrations fs.FS

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by Run.
type Result struct {
	// DB is nil when Options.Database was nil.
	DB *sqlx.DB
}

// Run initializes the logger, then connects and migrates when a database is
// configured. The pool is closed again if migrations fail.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	opts.withDefaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	if opts.Database == nil {
		logger.Info(context.Background(), "app", "bootstrap", slog.String("storage", "none"))
		return &Result{}, nil
	}

	start := time.Now()
	db, err := opts.Connect(*opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	if err := opts.Migrate(*opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	logger.Info(context.Background(), "app", "bootstrap",
		slog.String("storage", "postgres"),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Result{DB: db}, nil
}

func (o *Options) withDefaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		embedded := o.Migrations
		o.Migrate = func(cfg coredatabase.Config) error {
			return coredatabase.Migrate(context.Background(), cfg, embedded)
		}
	}
}
