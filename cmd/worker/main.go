// Package main - точка входа для сервиса Drop Matcher.
//
// Worker отвечает за:
// - Еженедельный запуск подбора пар по расписанию (cron)
// - HTTP триггер /api/v1/cron/match для внешнего планировщика
// - Восстановление зависших запусков
// - Управление задачами планировщика через /api/v1/jobs
// - Health, readiness и Prometheus метрики
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/drop-matcher/config"
	"github.com/alem-hub/drop-matcher/internal/bootstrap"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/scheduler"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/alem-hub/drop-matcher/internal/interface/http"
	"github.com/alem-hub/drop-matcher/internal/interface/http/handlers"
)

// staleRunCheckInterval - как часто искать запуски, зависшие в processing.
const staleRunCheckInterval = 10 * time.Minute

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, closeLog := bootstrap.NewLogger(cfg)
	defer func() { _ = closeLog() }()

	log.Info("starting drop matcher worker",
		slog.Bool("debug", cfg.App.Debug),
		slog.String("timezone", cfg.App.Timezone),
		slog.String("strategy", cfg.Matching.Strategy),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЯ, РЕПОЗИТОРИИ, КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections")
		app.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var (
		sched    *scheduler.Scheduler
		matchJob *jobs.MatchCycleJob
	)
	if cfg.Scheduler.Enabled {
		sched, matchJob, err = newScheduler(cfg, app, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Info("scheduler disabled, waiting for HTTP triggers")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	var (
		server *httpserver.Server
		errCh  <-chan error
	)
	if cfg.HTTP.Enabled {
		server = newHTTPServer(cfg, app, sched, matchJob, log)
		errCh = server.StartAsync()
	}

	log.Info("drop matcher worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case serveErr = <-errCh:
		log.Error("http server stopped unexpectedly", slog.Any("error", serveErr))
	}

	log.Info("starting graceful shutdown", slog.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var errs []error
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if sched != nil {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}
	if serveErr != nil {
		errs = append(errs, serveErr)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newScheduler(cfg *config.Config, app *bootstrap.App, log *slog.Logger) (*scheduler.Scheduler, *jobs.MatchCycleJob, error) {
	cron, err := scheduler.ParseCronExpression(cfg.Scheduler.MatchCron)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MATCH_CRON: %w", err)
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	matchJob := jobs.NewMatchCycleJob(app.MatchCycle, log, jobs.MatchCycleConfig{
		Timeout: cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(matchJob, cron); err != nil {
		return nil, nil, err
	}

	staleJob := jobs.NewRecoverStaleRunsJob(app.Runs, cfg.Matching.StaleRunAfter, log)
	if err := sched.Register(staleJob, scheduler.NewIntervalSchedule(staleRunCheckInterval)); err != nil {
		return nil, nil, err
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if r.Error != nil {
			log.Warn("job failed", slog.String("job", r.JobName), slog.Any("error", r.Error))
		}
	})

	return sched, matchJob, nil
}

// newHTTPServer builds the API server. sched and matchJob are nil when the
// in-process scheduler is disabled.
func newHTTPServer(cfg *config.Config, app *bootstrap.App, sched *scheduler.Scheduler, matchJob *jobs.MatchCycleJob, log *slog.Logger) *httpserver.Server {
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(app.DB))
	if app.Redis != nil {
		health.AddCheck("redis", handlers.NewPingCheck(app.Redis))
	}
	if app.Oracle != nil {
		health.AddNonCriticalCheck("oracle", handlers.NewExternalAPICheck(app.Oracle))
	}
	if checker, ok := app.Notifier.(handlers.ExternalAPIChecker); ok {
		health.AddNonCriticalCheck("notifier", handlers.NewExternalAPICheck(checker))
	}

	var jobsHandler *handlers.JobsHandler
	if sched != nil {
		health.AddNonCriticalCheck("scheduler", handlers.NewSchedulerCheck(sched))
		jobsHandler = handlers.NewJobsHandler(sched, matchJob)
	}

	srvCfg := httpserver.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	srvCfg.CronSecret = cfg.HTTP.CronSecret
	srvCfg.CronSecretBcrypt = cfg.HTTP.CronSecretBcrypt
	srvCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	srvCfg.EnableMetrics = cfg.HTTP.EnableMetrics && cfg.Observability.MetricsEnabled

	return httpserver.NewServer(srvCfg, httpserver.Dependencies{
		Runs:   handlers.NewRunsHandler(app.MatchCycle, app.GetRun, app.Runs, cfg.HTTP.RunTimeout),
		Jobs:   jobsHandler,
		Health: health,
		Logger: log,
	})
}
