package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a user may perform an action right now
type Limiter interface {
	Allow(ctx context.Context, userID, action string) (bool, error)
}

// Key is the counter key for a user and action
func Key(userID, action string) string {
	return fmt.Sprintf("ratelimit:%s:%s", userID, action)
}

// RedisLimiter is a fixed-window counter shared by every server process
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
}

// NewRedisLimiter allows limit actions per window for each user and action
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow counts the attempt and reports whether it is within the limit
func (l *RedisLimiter) Allow(ctx context.Context, userID, action string) (bool, error) {
	key := Key(userID, action)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// MemoryLimiter is a single-process fixed-window limiter used when Redis is not configured.
// Expired windows are swept at most once per window length.
type MemoryLimiter struct {
	limit     int
	window    time.Duration
	now       func() time.Time
	mu        sync.Mutex
	windows   map[string]*memoryWindow
	lastSweep time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter allows limit actions per window for each user and action
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*memoryWindow),
	}
}

// Allow counts the attempt and reports whether it is within the limit
func (l *MemoryLimiter) Allow(ctx context.Context, userID, action string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)
	key := Key(userID, action)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}

	w.count++
	return w.count <= l.limit, nil
}

// sweepLocked drops every window that has already reset
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Len returns how many windows are currently tracked
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
