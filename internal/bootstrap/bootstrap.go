// Package bootstrap wires configuration into the repositories, clients and
// handlers shared by the worker service and the matchctl CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/drop-matcher/config"
	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/application/query"
	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/external/email"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/external/oracle"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/external/telegram"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/messaging"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/metrics"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

// LockResource names the distributed lock guarding matching runs.
const LockResource = "match_cycle"

// App holds the wired components. Optional parts are nil when disabled.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *postgres.Connection
	Redis    *redis.Client
	Oracle   *oracle.Client
	Notifier notification.Notifier

	Runs       *postgres.RunRepository
	MatchCycle *command.RunMatchCycleHandler
	GetRun     *query.GetRunHandler

	closers []func()
}

// ConnectDatabase opens the pool described by cfg.Database.
func ConnectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig(cfg.Database.URL)
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return conn, nil
}

// New connects to every configured backend and builds the handlers.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: log}

	conn, err := ConnectDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = conn
	app.closers = append(app.closers, conn.Close)
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database schema is up to date", slog.Int("applied", n))
	}

	var lock matching.RunLock
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, redisConfig(cfg.Redis))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.Redis = rc
		app.closers = append(app.closers, func() { _ = rc.Close() })
		lock = redis.NewRunLock(rc, LockResource)
		log.Info("redis run lock enabled", slog.String("addr", cfg.Redis.Host))
	} else {
		lock = command.NewLocalRunLock()
		log.Info("redis disabled, using in-process run lock")
	}

	var scorer command.Scorer
	if cfg.Oracle.BaseURL != "" {
		app.Oracle = oracle.NewClient(oracle.Config{
			BaseURL:            cfg.Oracle.BaseURL,
			APIKey:             cfg.Oracle.APIKey,
			Timeout:            cfg.Oracle.RequestTimeout,
			RatePerSecond:      cfg.Oracle.RatePerSecond,
			Burst:              cfg.Oracle.Burst,
			BreakerFailures:    cfg.Oracle.BreakerFailures,
			BreakerOpenTimeout: cfg.Oracle.BreakerOpenTimeout,
			Logger:             log,
		})
		scorer = app.Oracle
	} else {
		log.Warn("ORACLE_URL is empty, candidates without a score are excluded")
	}

	notifier, err := NewNotifier(cfg.Notify, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Notifier = notifier

	deliveries := postgres.NewDeliveryRepository(conn)
	dispatcher := messaging.NewNotificationDispatcher(messaging.DispatcherConfig{
		Notifier:   app.Notifier,
		Deliveries: deliveries,
		MaxRetries: cfg.Notify.MaxRetries,
		BaseDelay:  cfg.Notify.BaseDelay,
		Throttle:   cfg.Notify.Throttle,
		Logger:     log,
	})

	cycleCfg, err := MatchCycleConfig(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	roster := postgres.NewRosterRepository(conn, log)
	store := postgres.NewMatchStore(conn)
	app.Runs = postgres.NewRunRepository(conn)

	app.MatchCycle = command.NewRunMatchCycleHandler(command.RunMatchCycleDeps{
		Roster:     roster,
		History:    postgres.NewHistoryRepository(conn),
		Droughts:   postgres.NewDroughtRepository(conn),
		Runs:       app.Runs,
		UoW:        store,
		Lock:       lock,
		Scorer:     scorer,
		Dispatcher: dispatcher,
		Observer:   metrics.RunObserver{},
		Logger:     log,
	}, cycleCfg)
	app.GetRun = query.NewGetRunHandler(app.Runs, store, deliveries)

	return app, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// MatchCycleConfig maps configuration onto the run policy.
func MatchCycleConfig(cfg *config.Config) (command.RunMatchCycleConfig, error) {
	solver, err := matching.ParseStrategy(cfg.Matching.Strategy)
	if err != nil {
		return command.RunMatchCycleConfig{}, err
	}

	m := cfg.Matching
	return command.RunMatchCycleConfig{
		Solver:              solver,
		DroughtPrePass:      m.DroughtPrePass,
		DroughtWindowCycles: m.DroughtWindowCycles,
		CycleLength:         m.CycleLength,
		CohortFilter:        m.CohortFilter,
		OptimizerEnabled:    m.OptimizerEnabled,
		OptimizerMaxPasses:  m.OptimizerMaxPasses,
		MinPopulation:       m.MinPopulation,
		StaleRunAfter:       m.StaleRunAfter,
		LockTTL:             m.LockTTL,
		NotifyUnmatched:     m.NotifyUnmatched,
		ScoreConcurrency:    cfg.Oracle.Concurrency,
		Location:            cfg.App.Location,
		FinishTimeout:       command.DefaultRunMatchCycleConfig().FinishTimeout,
	}, nil
}

// NewNotifier builds the notifier for the configured channel.
func NewNotifier(cfg config.NotifyConfig, log *slog.Logger) (notification.Notifier, error) {
	switch cfg.Channel {
	case "email":
		return email.NewClient(email.Config{
			APIURL:  cfg.Email.APIURL,
			APIKey:  cfg.Email.APIKey,
			From:    cfg.Email.From,
			Timeout: cfg.Email.Timeout,
			Logger:  log,
		}), nil
	case "telegram":
		tg := telegram.DefaultClientConfig(cfg.Telegram.Token)
		if cfg.Telegram.ParseMode != "" {
			tg.ParseMode = cfg.Telegram.ParseMode
		}
		if cfg.Telegram.Timeout > 0 {
			tg.Timeout = cfg.Telegram.Timeout
		}
		tg.Logger = log
		return telegram.NewClient(tg), nil
	case "log", "":
		return messaging.NewLogNotifier(log), nil
	default:
		return nil, fmt.Errorf("unknown notification channel %q", cfg.Channel)
	}
}

// NewLogger builds the process logger from observability settings.
func NewLogger(cfg *config.Config) (*slog.Logger, func() error) {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	log, cleanup := logger.Setup(logger.Options{
		Level: level,
		JSON:  cfg.Observability.LogFormat == "json",
		File:  cfg.Observability.LogFile,
	})
	log = log.With(
		slog.String("app", cfg.App.Name),
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
	)
	slog.SetDefault(log)
	return log, cleanup
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	rc.MinIdleConns = c.MinIdleConns
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	return rc
}
