// Package main - точка входа воркера жизненного цикла академии Darb.
//
// Воркер выполняет четыре задачи по расписанию или по HTTP-триггеру:
//   - auto-absent: отметка отсутствия за прошедший учебный день
//   - check-absence: месячные нарушения и предупреждения о понижении
//   - check-promotion: перевод резервных студентов в основную группу
//   - agent-report: ежедневный отчёт о пропусках администраторам
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

	"golang.org/x/sync/errgroup"

	"github.com/darb-academy/lifecycle-worker/config"
	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/rules"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/external/telegram"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/messaging"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/persistence/postgres"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/persistence/redis"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler/jobs"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/telemetry"
	httpapi "github.com/darb-academy/lifecycle-worker/internal/interface/http"
	"github.com/darb-academy/lifecycle-worker/internal/interface/http/handlers"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
	"github.com/darb-academy/lifecycle-worker/pkg/retry"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

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
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.ForEnvironment(string(cfg.App.Environment), cfg.Observability.LogLevel)
	slog.SetDefault(log)

	if err := timeutil.SetTimezone(cfg.App.Timezone); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}

	log.Info("starting lifecycle worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ТЕЛЕМЕТРИЯ
	// ─────────────────────────────────────────────────────────────────────────
	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = cfg.App.Name
	telCfg.ServiceVersion = cfg.App.Version
	telCfg.Environment = string(cfg.App.Environment)
	telCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	telCfg.MetricsInterval = cfg.Observability.MetricsInterval
	telCfg.SampleRatio = cfg.Observability.TraceSampleRate

	provider, err := telemetry.InitProvider(ctx, telCfg, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		// метрики необязательны
		log.Warn("metrics disabled", logger.Err(err))
		metrics = nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRES
	// ─────────────────────────────────────────────────────────────────────────
	pool := postgres.DefaultPoolSettings()
	pool.MaxConns = int32(cfg.Database.MaxConns)
	pool.MinConns = int32(cfg.Database.MinConns)
	pool.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pool.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	waitFor := func(dependency string, transient func(error) bool) *retry.Retrier {
		return retry.New(retry.Startup).If(transient).OnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("dependency not ready, retrying",
				"dependency", dependency,
				"attempt", attempt,
				"delay", delay,
				logger.Err(err),
			)
		})
	}

	var db *postgres.Connection
	err = waitFor("postgres", postgres.IsTransient).Do(ctx, func(ctx context.Context) error {
		conn, err := postgres.EnsureInitialized(ctx, cfg.Database.URL, pool)
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
			postgres.Shutdown()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(db))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (необязательный кэш правил)
	// ─────────────────────────────────────────────────────────────────────────
	var rulesCache rules.Cache
	var cache *redis.Cache

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr()
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err = redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, rules cache disabled", logger.Err(err))
			cache = nil
		} else {
			rc := redis.NewRulesCache(cache)
			// rules may have been edited while the worker was down
			if err := rc.Invalidate(ctx); err != nil {
				log.Warn("failed to drop cached rules", logger.Err(err))
			}
			rulesCache = rc
			health.AddOptionalCheck("cache", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	var sender notification.Sender = messaging.NewLogSender(log)
	var publisher *messaging.Publisher

	if cfg.Broker.URL != "" {
		err = waitFor("rabbitmq", messaging.IsTransient).Do(ctx, func(context.Context) error {
			p, err := messaging.NewPublisher(cfg.Broker.URL, log)
			if err != nil {
				return err
			}
			publisher = p
			return nil
		})
		if err != nil {
			log.Warn("broker unavailable, notifications will only be logged", logger.Err(err))
		} else {
			sender = publisher
			health.AddOptionalCheck("broker", handlers.NewPingCheck(publisher))
		}
	}

	dispatcherCfg := messaging.DefaultDispatcherConfig(sender)
	dispatcherCfg.Logger = log
	dispatcherCfg.Metrics = metrics
	dispatcher := messaging.NewDispatcher(dispatcherCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. РЕПОЗИТОРИИ И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	studentRepo := postgres.NewStudentRepository(db)
	attendanceRepo := postgres.NewAttendanceRepository(db)
	holidayRepo := postgres.NewHolidayRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	progressRepo := postgres.NewProgressRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	rulesProvider := rules.NewProvider(postgres.NewSettingsRepository(db), rulesCache, log)

	autoCfg := jobs.DefaultAutoAbsentConfig()
	autoCfg.ChunkSize = cfg.Database.ChunkSize
	autoCfg.Timeout = cfg.Scheduler.JobTimeout

	promoCfg := jobs.DefaultCheckPromotionConfig()
	promoCfg.ChunkSize = cfg.Database.ChunkSize
	promoCfg.Timeout = cfg.Scheduler.JobTimeout

	tgCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgCfg.Timeout = cfg.Telegram.RequestTimeout
	tgCfg.Logger = log

	allJobs := []scheduler.Job{
		jobs.NewAutoAbsentJob(rulesProvider, studentRepo, attendanceRepo, holidayRepo, dispatcher, log, autoCfg),
		jobs.NewCheckAbsenceJob(rulesProvider, studentRepo, attendanceRepo, alertRepo, dispatcher, log,
			jobs.DefaultCheckAbsenceConfig()),
		jobs.NewCheckPromotionJob(rulesProvider, studentRepo, attendanceRepo, progressRepo, groupRepo, dispatcher, log,
			promoCfg),
		jobs.NewAgentReportJob(attendanceRepo, telegram.NewClient(tgCfg), log, jobs.AgentReportConfig{
			Configured: cfg.Telegram.Configured(),
			ChatID:     cfg.Telegram.AdminChatID,
		}),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedules, err := config.LoadSchedules(cfg.Scheduler.SchedulesFile)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         log,
		Location:       cfg.App.Location,
		MaxHistorySize: 500,
		Metrics:        metrics,
	})

	for _, job := range allJobs {
		entry := schedules[job.Name()]
		if err := sched.Register(job, entry.Cron); err != nil {
			return fmt.Errorf("register %s: %w", job.Name(), err)
		}
		if !entry.IsEnabled() {
			if err := sched.DisableJob(job.Name()); err != nil {
				return err
			}
		}
		log.Info("job registered", logger.Job(job.Name()), "cron", entry.Cron, "enabled", entry.IsEnabled())
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Info("cron triggers disabled, HTTP trigger only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	httpCfg.ServiceName = cfg.App.Name
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.CronSecretHash = cfg.HTTP.CronSecretHash

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		Jobs:          sched,
		HealthChecker: health,
		Logger:        log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		return shutdown(shutdownCtx, log, server, sched, dispatcher, publisher, cache, provider)
	})

	log.Info("lifecycle worker is running", "http", cfg.HTTP.Addr, "scheduler", cfg.Scheduler.Enabled)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// shutdown stops intake first, then drains notifications, then closes the stores.
func shutdown(
	ctx context.Context,
	log *slog.Logger,
	server *httpapi.Server,
	sched *scheduler.Scheduler,
	dispatcher *messaging.Dispatcher,
	publisher *messaging.Publisher,
	cache *redis.Cache,
	provider *telemetry.Provider,
) error {
	var errs []error

	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}

	if sched.IsRunning() {
		if err := sched.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}

	if err := dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker: %w", err))
		}
	}

	if cache != nil {
		if err := cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	postgres.Shutdown()

	if err := provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if len(errs) > 0 {
		log.Error("shutdown finished with errors", logger.Err(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}
