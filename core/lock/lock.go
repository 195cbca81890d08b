package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker is an advisory, run-level mutual exclusion.
type Locker interface {
	// Acquire takes the lock or fails with ErrLocked without blocking.
	Acquire(ctx context.Context) (Unlock, error)
}

// New builds the Locker selected by cfg.Backend.
func New(ctx context.Context, cfg Config) (Locker, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	switch cfg.Backend {
	case "", "file":
		return NewFileLocker(cfg.Path, ttl), nil
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisLocker(rdb, cfg.Key, ttl), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Backend)
	}
}
