// Package bootstrap builds the infrastructure clients and the counting
// service from configuration. Both service binaries share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/config"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/cuongbtq/inventory-counting/internal/counting/storage"
	"github.com/cuongbtq/inventory-counting/internal/teamdir"
	"github.com/cuongbtq/inventory-counting/migrations"
	"github.com/cuongbtq/inventory-counting/shared/logger"
	"github.com/cuongbtq/inventory-counting/shared/postgresql"
	"github.com/cuongbtq/inventory-counting/shared/rabbitmq"
	"github.com/cuongbtq/inventory-counting/shared/redislock"
	"github.com/redis/go-redis/v9"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      cfg.App.Name,
	})
}

// InitPostgreSQL connects to the database and applies the embedded
// migrations when database.auto_migrate is set.
func InitPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := client.Migrate(ctx, migrations.FS); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return client, nil
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		User:      cfg.User,
		Password:  cfg.Password,
		VHost:     cfg.VHost,
		Heartbeat: cfg.Connection.Heartbeat,
		Dial: rabbitmq.RetryPolicy{
			Attempts: cfg.Connection.RetryAttempts,
			Interval: cfg.Connection.RetryInterval,
		},
		Publish: rabbitmq.RetryPolicy{
			Attempts:   cfg.Publish.RetryAttempts,
			Interval:   cfg.Publish.RetryInterval,
			Multiplier: cfg.Publish.BackoffMultiplier,
		},
		Topology: rabbitmq.Topology{
			Exchange:           cfg.Exchange.Name,
			ExchangeType:       cfg.Exchange.Type,
			Queue:              cfg.Queue.Name,
			RoutingKey:         cfg.RoutingKey,
			DeadLetterExchange: cfg.Queue.DeadLetterExchange,
			Durable:            cfg.Queue.Durable,
			AutoDelete:         cfg.Queue.AutoDelete,
			Exclusive:          cfg.Queue.Exclusive,
		},
	}, logger)
}

// InitLocker returns a Redis backed job lock, or the in-process lock when no
// Redis address is configured. The returned close function is never nil.
func InitLocker(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (service.Locker, func(), error) {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, using in-process job lock")
		return service.NewLocalLocker(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis job lock enabled", slog.String("addr", cfg.Addr))

	locker := redislock.NewLocker(rdb, redislock.Config{
		TTL:           cfg.LockTTL,
		RetryInterval: cfg.LockRetryInterval,
		RetryCount:    cfg.LockRetryCount,
	}, logger)

	return locker, func() {
		if err := rdb.Close(); err != nil {
			logger.Error("Failed to close redis client", slog.Any("error", err))
		}
	}, nil
}

// InitTeamDirectory returns the HTTP team directory when a base URL is
// configured, otherwise the database backed fallback.
func InitTeamDirectory(cfg *config.TeamDirectoryConfig, fallback service.TeamDirectory, logger *slog.Logger) service.TeamDirectory {
	if cfg.BaseURL == "" {
		return fallback
	}
	return teamdir.NewClient(teamdir.Config{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
	}, logger)
}

// NewCountingService wires the postgres storage, the job lock and the team
// directory into a counting service.
func NewCountingService(db *postgresql.Client, locker service.Locker, cfg *config.Config, logger *slog.Logger) *service.Service {
	store := storage.NewStorage(db.GetDB(), logger)

	return service.New(service.Config{
		Logger: logger,
		Store:  store,
		Teams:  InitTeamDirectory(&cfg.TeamDirectory, store, logger),
		Locker: locker,
	})
}
