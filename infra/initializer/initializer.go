package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirasaad/autotransfer/infra"
	infra_eventbus "github.com/amirasaad/autotransfer/infra/eventbus"
	"github.com/amirasaad/autotransfer/infra/lock"
	infra_repository "github.com/amirasaad/autotransfer/infra/repository"
	"github.com/amirasaad/autotransfer/infra/repository/memory"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/amirasaad/autotransfer/pkg/service/scheduler"
	"github.com/redis/go-redis/v9"
)

// Deps is what the process entry points need beyond config.Deps: the pass
// lock and the resources to release on shutdown.
type Deps struct {
	config.Deps
	Lock    scheduler.PassLock
	closers []func() error
}

// Close releases every resource opened by InitializeDependencies, last
// opened first.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// InitializeDependencies initializes all the application dependencies.
func InitializeDependencies(cfg *config.App) (deps *Deps, err error) {
	logger := setupLogger(cfg.Log)
	d := &Deps{}
	d.Logger = logger
	d.Config = cfg
	deps = d
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if cfg.DB != nil && cfg.DB.Url != "" {
		db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			deps.closers = append(deps.closers, sqlDB.Close)
		}
		if cfg.DB.AutoMigrate {
			if err := infra.Migrate(db, cfg.DB.MigrationsPath, logger); err != nil {
				return nil, err
			}
		}
		deps.Uow = infra_repository.NewUoW(db)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		deps.Uow = memory.NewUoW()
	}

	bus, err := initEventBus(cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := bus.(interface{ Close() error }); ok {
		deps.closers = append(deps.closers, c.Close)
	}
	deps.EventBus = bus

	passLock, closeLock := initLock(cfg.Redis, logger)
	if closeLock != nil {
		deps.closers = append(deps.closers, closeLock)
	}
	deps.Lock = passLock
	return deps, nil
}

// initEventBus picks the transport named by EVENT_BUS_DRIVER. An explicitly
// configured broker that cannot be reached falls back to the in-process bus.
func initEventBus(cfg *config.App, logger *slog.Logger) (eventbus.Bus, error) {
	ebCfg := cfg.EventBus
	if ebCfg == nil {
		ebCfg = &config.EventBus{}
	}
	driver := strings.ToLower(strings.TrimSpace(ebCfg.Driver))

	switch driver {
	case "", "memory", "memory-sync":
		return infra_eventbus.NewWithMemory(logger), nil
	case "redis":
		url := ebCfg.RedisURL
		if url == "" && cfg.Redis != nil {
			url = cfg.Redis.URL
		}
		if url == "" {
			return nil, fmt.Errorf("event bus driver redis requires EVENT_BUS_REDIS_URL or REDIS_URL")
		}
		bus, err := infra_eventbus.NewWithRedis(url, ebCfg, logger)
		if err != nil {
			logger.Warn("Redis event bus unavailable; falling back to memory", "error", err)
			return infra_eventbus.NewWithMemory(logger), nil
		}
		return bus, nil
	case "kafka":
		if strings.TrimSpace(ebCfg.KafkaBrokers) == "" {
			return nil, fmt.Errorf("event bus driver kafka requires EVENT_BUS_KAFKA_BROKERS")
		}
		bus, err := infra_eventbus.NewWithKafka(ebCfg, logger)
		if err != nil {
			logger.Warn("Kafka event bus unavailable; falling back to memory", "error", err)
			return infra_eventbus.NewWithMemory(logger), nil
		}
		return bus, nil
	}
	return nil, fmt.Errorf("unsupported event bus driver %q", ebCfg.Driver)
}

// initLock returns a Redis lock when Redis answers and an in-process lock
// otherwise.
func initLock(cfg *config.Redis, logger *slog.Logger) (scheduler.PassLock, func() error) {
	if cfg == nil || cfg.URL == "" {
		return lock.NewLocal(), nil
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("Invalid REDIS_URL; using in-process scheduler lock", "error", err)
		return lock.NewLocal(), nil
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		logger.Warn("Redis unreachable; using in-process scheduler lock", "error", err)
		return lock.NewLocal(), nil
	}
	return lock.NewRedis(client, cfg.KeyPrefix, logger), client.Close
}
