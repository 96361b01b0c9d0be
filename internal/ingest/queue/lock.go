package queue

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// JobLock is an optional distributed exclusivity check for multi-instance
// deployments of the queue: before dispatching a job, Acquire claims it so
// a second ingestd instance polling the same DurableStore backs off rather
// than double-running it. A single-instance deployment can leave this nil;
// the in-process active-job map already prevents double-dispatch locally.
type JobLock interface {
	Acquire(ctx context.Context, jobID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobID string) error
}

// RedisJobLock implements JobLock with a Redis SET NX EX, the same
// claim-with-TTL shape as a correlation-id idempotency store.
type RedisJobLock struct {
	client *redis.Client
	prefix string
}

// NewRedisJobLock connects to addr and verifies it's reachable before
// returning, so a misconfigured lock backend fails at startup instead of
// silently never claiming a job.
func NewRedisJobLock(addr string) (*RedisJobLock, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisJobLock{client: c, prefix: "ingest-job-lock:"}, nil
}

// Acquire returns true if this instance now holds the lock on jobID. A
// false return with a nil error means another instance holds it.
func (l *RedisJobLock) Acquire(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+jobID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire job lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock, letting another instance claim the job sooner
// than its TTL (used once a job finishes, rather than waiting it out).
func (l *RedisJobLock) Release(ctx context.Context, jobID string) error {
	return l.client.Del(ctx, l.prefix+jobID).Err()
}

// Close releases the underlying Redis client.
func (l *RedisJobLock) Close() error {
	return l.client.Close()
}
