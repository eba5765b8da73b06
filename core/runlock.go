package core

import (
	"context"
	"errors"
	"fmt"
	"packchicken-service/config"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("a processing run is already in progress")

// RunLocker serializes whole processing runs. It does not make the job store
// safe for concurrent claims; it only keeps the cron worker and the dashboard
// from draining the queue at the same time.
type RunLocker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

func NewRunLocker(cfg *config.RedisConfig, logger *zap.Logger) RunLocker {
	if cfg == nil || cfg.Addr == "" {
		return &LocalRunLock{}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	return NewRedisRunLock(client, cfg.LockKey, cfg.LockTTL, logger)
}

type LocalRunLock struct {
	mu sync.Mutex
}

func (l *LocalRunLock) Acquire(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return l.mu.Unlock, nil
}

type RedisRunLock struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisRunLock(client redislock.RedisClient, key string, ttl time.Duration, logger *zap.Logger) *RedisRunLock {
	return &RedisRunLock{
		locker: redislock.New(client),
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisRunLock) Acquire(ctx context.Context) (func(), error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release run lock", zap.String("key", l.key), zap.Error(err))
		}
	}, nil
}
