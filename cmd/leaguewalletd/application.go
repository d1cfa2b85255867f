package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/internal/notify"
	"github.com/MarkoPoloResearchLab/leaguewallet/internal/oplog"
	"github.com/MarkoPoloResearchLab/leaguewallet/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	driverPostgres     = "postgres"
	driverSQLite       = "sqlite"
	slowQueryThreshold = 200 * time.Millisecond
)

type application struct {
	logger     *zap.Logger
	store      *gormstore.Store
	service    *ledger.Service
	settlement *ledger.SettlementEngine
	treasury   *ledger.TreasuryAggregator
}

// withApplication opens the database, wires the domain components and runs fn.
func withApplication(ctx context.Context, cfg *runtimeConfig, fn func(app *application) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	app, err := newApplication(cfg, gormstore.New(gormDB), logger)
	if err != nil {
		return err
	}
	return fn(app)
}

func newApplication(cfg *runtimeConfig, store *gormstore.Store, logger *zap.Logger) (*application, error) {
	feeRate, err := ledger.ParseFeeRate(defaultIfEmpty(cfg.InstantFeeRate, defaultFeeRate))
	if err != nil {
		return nil, fmt.Errorf("instant fee rate: %w", err)
	}
	clock := func() time.Time { return time.Now().UTC() }
	service, err := ledger.NewService(store, clock,
		ledger.WithInstantFeeRate(feeRate),
		ledger.WithOperationLogger(oplog.New(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	settlement, err := ledger.NewSettlementEngine(service, store, store, notifier)
	if err != nil {
		return nil, fmt.Errorf("settlement engine init: %w", err)
	}
	treasury, err := ledger.NewTreasuryAggregator(store, store, store)
	if err != nil {
		return nil, fmt.Errorf("treasury init: %w", err)
	}
	return &application{
		logger:     logger,
		store:      store,
		service:    service,
		settlement: settlement,
		treasury:   treasury,
	}, nil
}

func newNotifier(cfg *runtimeConfig, logger *zap.Logger) (ledger.Notifier, error) {
	if strings.TrimSpace(cfg.NotifyWebhookURL) == "" {
		logger.Info("no notification webhook configured, logging notifications")
		return notify.NewLogSender(logger), nil
	}
	sender, err := notify.NewWebhookSender(notify.WebhookConfig{
		URL:     cfg.NotifyWebhookURL,
		Token:   cfg.NotifyToken,
		Timeout: cfg.NotifyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("notifier init: %w", err)
	}
	return sender, nil
}

func openDatabase(ctx context.Context, dsn string, logger *zap.Logger) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{Logger: newGormLogger(logger)}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		// SQLite has a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

// newGormLogger sends gorm warnings through zap. Lookups that miss are
// reported as domain errors, so record-not-found is not logged.
func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "leaguewallet.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema migrates SQLite databases on start. Postgres schemas are
// managed with the migrate command.
func prepareSchema(db *gorm.DB, driver string) error {
	if driver != driverSQLite {
		return nil
	}
	return migrateSchema(db)
}

func migrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
