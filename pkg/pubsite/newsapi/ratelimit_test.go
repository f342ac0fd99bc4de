package newsapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, clock *fakeClock) (*RedisLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, clock.Now), mr
}

func TestRedisLimiterSlidingWindow(t *testing.T) {
	clock := newClock()
	limiter, mr := setupRedisLimiter(t, clock)
	ctx := context.Background()
	keyID := uuid.New()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Acquire(ctx, keyID, 2, uuid.NewString())
		require.NoError(t, err)
		assert.True(t, ok)
		clock.Advance(10 * time.Minute)
	}

	ok, err := limiter.Acquire(ctx, keyID, 2, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := mr.ZMembers("pubsite:ratelimit:" + keyID.String())
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// the first reservation leaves the window
	clock.Advance(41 * time.Minute)
	ok, err = limiter.Acquire(ctx, keyID, 2, uuid.NewString())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterRelease(t *testing.T) {
	clock := newClock()
	limiter, _ := setupRedisLimiter(t, clock)
	ctx := context.Background()
	keyID := uuid.New()

	token := uuid.NewString()
	ok, err := limiter.Acquire(ctx, keyID, 1, token)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = limiter.Acquire(ctx, keyID, 1, uuid.NewString())
	assert.False(t, ok)

	require.NoError(t, limiter.Release(ctx, keyID, token))
	ok, err = limiter.Acquire(ctx, keyID, 1, uuid.NewString())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterZeroLimit(t *testing.T) {
	limiter, _ := setupRedisLimiter(t, newClock())

	ok, err := limiter.Acquire(context.Background(), uuid.New(), 0, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLimiterUnavailable(t *testing.T) {
	clock := newClock()
	limiter, mr := setupRedisLimiter(t, clock)
	mr.Close()

	_, err := limiter.Acquire(context.Background(), uuid.New(), 5, uuid.NewString())
	assert.Error(t, err)
}

func TestGatewayWithRedisLimiter(t *testing.T) {
	db := setupTestDB(t)
	clock := newClock()
	limiter, mr := setupRedisLimiter(t, clock)
	router := setupTestRouter(db, WithClock(clock.Now), WithLimiter(limiter))
	key := createTestKey(t, db, func(k *models.APIKey) { k.RateLimit = 1 })

	require.NoError(t, db.Migrator().DropTable(&models.NewsArticle{}))
	assert.Equal(t, http.StatusInternalServerError, post(router, validPayload, key.Key).Code)

	// the failed insert gave its reservation back
	if members, err := mr.ZMembers("pubsite:ratelimit:" + key.ID.String()); err == nil {
		assert.Empty(t, members)
	}

	require.NoError(t, models.AutoMigrate(db))
	assert.Equal(t, http.StatusCreated, post(router, validPayload, key.Key).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(router, validPayload, key.Key).Code)
}

func TestLogWindowLimiterCountsOnlySuccesses(t *testing.T) {
	db := setupTestDB(t)
	clock := newClock()
	limiter := NewLogWindowLimiter(db, clock.Now)
	keyID := uuid.New()
	other := uuid.New()

	logs := []models.APILog{
		{Endpoint: Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &keyID, CreatedAt: clock.Now().Add(-10 * time.Minute)},
		{Endpoint: Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &keyID, CreatedAt: clock.Now().Add(-59 * time.Minute)},
		{Endpoint: Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &keyID, CreatedAt: clock.Now().Add(-61 * time.Minute)},
		{Endpoint: Endpoint, Method: "POST", ResponseStatus: 400, APIKeyID: &keyID, CreatedAt: clock.Now().Add(-time.Minute)},
		{Endpoint: Endpoint, Method: "POST", ResponseStatus: 429, APIKeyID: &keyID, CreatedAt: clock.Now().Add(-time.Minute)},
		{Endpoint: Endpoint, Method: "POST", ResponseStatus: 201, APIKeyID: &other, CreatedAt: clock.Now().Add(-time.Minute)},
	}
	require.NoError(t, db.Create(&logs).Error)

	count, err := limiter.Count(context.Background(), keyID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ok, err := limiter.Acquire(context.Background(), keyID, 2, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Acquire(context.Background(), keyID, 3, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.9:4000", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.9:4000", "198.51.100.2"},
		{"forwarded beats real ip", map[string]string{"X-Forwarded-For": "198.51.100.3", "X-Real-IP": "198.51.100.4"}, "", "198.51.100.3"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"remote addr without port", nil, "192.0.2.11", "192.0.2.11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", Endpoint, nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "ü" is two bytes; cutting inside it drops the whole rune
	assert.Equal(t, "a", truncate("aü", 2))
}
