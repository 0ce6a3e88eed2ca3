package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alem-hub/challenges-leaderboard/config"
	"github.com/alem-hub/challenges-leaderboard/internal/application/query"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/external/skills"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/cache"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/service"
	httpapi "github.com/alem-hub/challenges-leaderboard/internal/interface/http"
	"github.com/alem-hub/challenges-leaderboard/internal/interface/http/handlers"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
	"github.com/alem-hub/challenges-leaderboard/pkg/retry"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

// cacheStore - хранилище мемоизации, которое нужно закрыть при остановке.
type cacheStore interface {
	cache.Store
	Close() error
}

func serve(ctx context.Context, cfg *config.Config) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ПРОВЕРКА КОНФИГУРАЦИИ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	if err := cfg.RequireServices(); err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.IsDevelopment(),
		Format:    cfg.Observability.LogFormat,
	})
	log.Info("starting challenges leaderboard",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	db, err := connectDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection...")
		db.Close()
	}()
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КЕШ (Redis или встроенный badger)
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openCacheStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close cache store", logger.Err(err))
		}
	}()

	memo := cache.NewMemoizer(store, cfg.Leaderboard.CacheTTL, log)
	var skillsMemo *cache.Memoizer
	if cfg.Skills.CacheEnabled {
		skillsMemo = memo
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. СЕРВИС НАВЫКОВ
	// ─────────────────────────────────────────────────────────────────────────
	skillsCfg := skills.DefaultClientConfig(cfg.Skills.BaseURL)
	skillsCfg.Token = cfg.Skills.Token
	skillsCfg.Timeout = cfg.Skills.Timeout
	skillsCfg.BreakerFailures = cfg.Skills.BreakerFailures
	skillsCfg.BreakerCooldown = cfg.Skills.BreakerCooldown
	skillsCfg.Logger = log
	skillsClient := skills.NewClient(skillsCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОБЛАСТИ И ЗАПРОСЫ
	// ─────────────────────────────────────────────────────────────────────────
	registry := service.NewScopeRegistry(service.RegistryDeps{
		Skills:     skillsClient,
		Enricher:   service.NewUserEnricher(service.PassThrough, log),
		Ranks:      postgres.NewRankAggregator(db),
		Tasks:      postgres.NewTaskRepository(db),
		Memo:       memo,
		SkillsMemo: skillsMemo,
		Logger:     log,
	})
	clock := timeutil.SystemClock{Location: cfg.App.Location}

	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	checker.SetTimeout(cfg.HTTP.HealthTimeout)
	checker.AddCheck("postgres", handlers.PingCheck(db))
	checker.AddCheck("cache", handlers.PingCheck(memo))
	checker.AddOptionalCheck("skills", handlers.PingCheck(skillsClient))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimit = cfg.HTTP.RateLimit
	httpCfg.RateBurst = cfg.HTTP.RateBurst
	httpCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes
	httpCfg.DefaultLimit = uint64(cfg.Leaderboard.DefaultLimit)
	httpCfg.CacheMaxAge = cfg.Leaderboard.CacheTTL
	httpCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	httpCfg.Version = cfg.App.Version

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		GetLeaderboardHandler: query.NewGetLeaderboardHandler(registry, clock, log),
		GetUserRankHandler:    query.NewGetUserRankHandler(registry, clock, log),
		HealthChecker:         checker,
		Logger:                log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}

// connectDatabase ждёт Postgres: при старте вместе с базой она может ещё подниматься.
func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	dbCfg := postgres.DefaultConfig(cfg.Database.URL)
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.StatementTimeout = cfg.Database.StatementTimeout

	policy := retry.StartupPolicy(logRetry(log, "postgres"))
	policy.MaxAttempts = cfg.Database.ConnectAttempts

	db, err := retry.DoWithData(ctx, policy, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, dbCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openCacheStore выбирает Redis или, если он отключён, встроенный badger.
func openCacheStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (cacheStore, error) {
	if cfg.Redis.Disabled {
		badgerCfg := cache.BadgerConfig{
			Path:     cfg.Redis.BadgerPath,
			InMemory: cfg.Redis.BadgerPath == "",
			Logger:   log.With(logger.Component("badger")).Slog(),
		}
		store, err := cache.OpenBadgerStore(badgerCfg)
		if err != nil {
			return nil, err
		}
		log.Info("using embedded cache store",
			logger.String("path", cfg.Redis.BadgerPath),
			logger.Bool("in_memory", badgerCfg.InMemory),
		)
		return store, nil
	}

	redisCfg := redis.Config{
		URL:          cfg.Redis.URL,
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		KeyPrefix:    cfg.Redis.KeyPrefix,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}

	log.Info("connecting to Redis...", logger.String("addr", redisCfg.Addr()))
	store, err := retry.DoWithData(ctx, retry.StartupPolicy(logRetry(log, "redis")), func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Redis connection established")
	return store, nil
}

func logRetry(log *logger.Logger, dependency string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("dependency not ready, retrying",
			logger.String("dependency", dependency),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
}
