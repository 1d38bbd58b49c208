package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when the key is still held after every retry.
var ErrLockBusy = errors.New("lock is held by another process")

// Config holds Redis lock configuration
type Config struct {
	TTL           time.Duration
	RetryInterval time.Duration
	RetryCount    int
}

// Locker obtains short-lived keyed locks in Redis
type Locker struct {
	client *redislock.Client
	config Config
	logger *slog.Logger
}

// NewLocker creates a Locker on top of a go-redis client
func NewLocker(rdb redis.UniversalClient, config Config, logger *slog.Logger) *Locker {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 100 * time.Millisecond
	}
	return &Locker{
		client: redislock.New(rdb),
		config: config,
		logger: logger,
	}
}

// Lock obtains key, retrying linearly up to RetryCount times. The returned
// function releases the lock.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.config.RetryInterval), l.config.RetryCount),
	}

	lock, err := l.client.Obtain(ctx, key, l.config.TTL, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("Could not obtain lock",
			slog.String("key", key),
		)
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, key, stop, done)

	return func() {
		close(stop)
		<-done

		// The caller's context may already be cancelled when releasing.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Error("Failed to release lock",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}, nil
}

// keepAlive extends the lock TTL every TTL/2 until stop is closed, so a
// transaction running longer than TTL keeps its lock. It gives up once a
// refresh fails because the lock was lost.
func (l *Locker) keepAlive(lock *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.config.TTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.config.TTL/2)
			err := lock.Refresh(ctx, l.config.TTL, nil)
			cancel()

			if errors.Is(err, redislock.ErrNotObtained) {
				l.logger.Error("Lock expired before refresh",
					slog.String("key", key),
				)
				return
			}
			if err != nil {
				l.logger.Warn("Failed to refresh lock",
					slog.String("key", key),
					slog.Any("error", err),
				)
			}
		}
	}
}
