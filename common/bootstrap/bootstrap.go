package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/jukebox/common/cache"
	"github.com/lyzr/jukebox/common/config"
	"github.com/lyzr/jukebox/common/db"
	"github.com/lyzr/jukebox/common/logger"
	rediscommon "github.com/lyzr/jukebox/common/redis"
	"github.com/lyzr/jukebox/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	// 3. Initialize database (optional)
	if !options.skipDB && cfg.DatabaseEnabled() {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, cfg, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func(context.Context) error {
			components.DB.Close()
			return nil
		})

		if cfg.Database.AutoMigrate {
			if err := components.DB.Migrate(ctx); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database migration failed: %w", err)
			}
		}
	}

	// 4. Initialize redis (optional)
	if !options.skipRedis && cfg.RedisEnabled() {
		components.Redis, err = rediscommon.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func(context.Context) error {
			components.Logger.Info("closing redis")
			return components.Redis.Close()
		})
	}

	// 5. Initialize cache (redis-backed when available)
	if !options.skipCache && cfg.Cache.Enabled {
		if components.Redis != nil {
			components.Cache = cache.NewRedisCache(components.Redis, serviceName+":")
		} else {
			components.Cache = cache.NewMemoryCache(components.Logger)
		}
		components.Logger.Info("cache initialized", "redis", components.Redis != nil)

		components.addCleanup(func(context.Context) error {
			return components.Cache.Close()
		})
	}

	// 6. Initialize telemetry (if not skipped)
	if !options.skipTelemetry {
		pprofPort := 0
		if cfg.Telemetry.EnablePprof {
			pprofPort = cfg.Telemetry.PprofPort
		}
		components.Telemetry = telemetry.New(pprofPort, components.Logger.WithComponent("telemetry"))
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}
