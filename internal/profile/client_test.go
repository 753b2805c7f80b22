package profile

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyhub/internal/model"
)

func newProfileServer(t *testing.T, hits *int, values map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		v, ok := values[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, v)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientLookups(t *testing.T) {
	var hits int
	srv := newProfileServer(t, &hits, map[string]string{
		"/users/u1/email":       "u1@example.com",
		"/users/u1/phoneNumber": "+15550001111",
		"/users/u1/fcmToken":    "tok-abc",
	})
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	email, err := c.Email(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", email)

	phone, err := c.PhoneNumber(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "+15550001111", phone)

	token, err := c.FCMToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
}

func TestClientNotFound(t *testing.T) {
	var hits int
	srv := newProfileServer(t, &hits, nil)
	c := NewClient(srv.URL, time.Second)

	_, err := c.Email(context.Background(), "ghost")
	require.ErrorIs(t, err, model.ErrProfileNotFound)
}

func TestClientEmptyBodyIsNotFound(t *testing.T) {
	var hits int
	srv := newProfileServer(t, &hits, map[string]string{"/users/u2/email": "  "})
	c := NewClient(srv.URL, time.Second)

	_, err := c.Email(context.Background(), "u2")
	require.ErrorIs(t, err, model.ErrProfileNotFound)
}

// memoryCache is an in-process stand-in for the redis client.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	if v, ok := c.entries[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = fmt.Sprint(value)
	return redis.NewStatusCmd(ctx, "set", key)
}

func TestCachedDirectorySecondHitSkipsHTTP(t *testing.T) {
	var hits int
	srv := newProfileServer(t, &hits, map[string]string{"/users/u1/email": "u1@example.com"})
	dir := NewCachedDirectory(NewClient(srv.URL, time.Second), newMemoryCache(), time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := dir.Email(ctx, "u1")
	require.NoError(t, err)
	second, err := dir.Email(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits, "second lookup must come from cache")
}

func TestCachedDirectoryMissIsNotCached(t *testing.T) {
	var hits int
	srv := newProfileServer(t, &hits, nil)
	dir := NewCachedDirectory(NewClient(srv.URL, time.Second), newMemoryCache(), time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := dir.Email(ctx, "ghost")
	require.ErrorIs(t, err, model.ErrProfileNotFound)
	_, err = dir.Email(ctx, "ghost")
	require.ErrorIs(t, err, model.ErrProfileNotFound)
	assert.Equal(t, 2, hits)
}
