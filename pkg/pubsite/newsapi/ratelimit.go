package newsapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Window is the rolling period the per-key rate limit applies to.
const Window = time.Hour

// ResetInSeconds is reported on 429 responses. It is the full window length,
// not the time until the oldest counted request leaves the window.
const ResetInSeconds = int(Window / time.Second)

// Limiter decides whether a key may create one more article in the current window.
//
// Acquire returns true when the request fits under limit. token identifies the
// request; a limiter that reserves capacity up front gives it back on Release
// when the request does not end in a created article.
type Limiter interface {
	Acquire(ctx context.Context, keyID uuid.UUID, limit int, token string) (bool, error)
	Release(ctx context.Context, keyID uuid.UUID, token string) error
}

// LogWindowLimiter counts successful gateway rows in api_logs over the
// trailing window. The count and the eventual insert are not atomic, so
// concurrent requests of one key can briefly exceed the limit.
type LogWindowLimiter struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLogWindowLimiter creates a limiter backed by the audit log table
func NewLogWindowLimiter(db *gorm.DB, now func() time.Time) *LogWindowLimiter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LogWindowLimiter{db: db, now: now}
}

// Count returns the successful requests of keyID inside the window
func (l *LogWindowLimiter) Count(ctx context.Context, keyID uuid.UUID) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.APILog{}).
		Where("api_key_id = ? AND response_status = ? AND created_at > ?", keyID, http.StatusCreated, l.now().Add(-Window)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count api logs: %w", err)
	}
	return count, nil
}

func (l *LogWindowLimiter) Acquire(ctx context.Context, keyID uuid.UUID, limit int, _ string) (bool, error) {
	count, err := l.Count(ctx, keyID)
	if err != nil {
		return false, err
	}
	return count < int64(limit), nil
}

// Release is a no-op: only rows with status 201 are counted.
func (l *LogWindowLimiter) Release(context.Context, uuid.UUID, string) error {
	return nil
}

// slidingWindowScript trims the window, then reserves a slot when one is free.
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter keeps one sorted set per key whose members are reservations
// scored by their time in milliseconds. Check and reservation run as one
// script, so concurrent requests never exceed the limit.
type RedisLimiter struct {
	client goredis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter on client
func NewRedisLimiter(client goredis.Cmdable, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, prefix: "pubsite:ratelimit:", now: now}
}

func (l *RedisLimiter) key(keyID uuid.UUID) string {
	return l.prefix + keyID.String()
}

func (l *RedisLimiter) Acquire(ctx context.Context, keyID uuid.UUID, limit int, token string) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	res, err := slidingWindowScript.Run(ctx, l.client, []string{l.key(keyID)},
		l.now().UnixMilli(), Window.Milliseconds(), limit, token).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

func (l *RedisLimiter) Release(ctx context.Context, keyID uuid.UUID, token string) error {
	if err := l.client.ZRem(ctx, l.key(keyID), token).Err(); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}
