package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterBurstAndRefill(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newMemoryLimiter(2, 3, c.now)
	ctx := context.Background()

	for i := range 3 {
		ok, err := m.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}
	ok, _ := m.Allow(ctx, "k")
	assert.False(t, ok)

	ok, _ = m.Allow(ctx, "other")
	assert.True(t, ok, "keys are independent")

	c.advance(500 * time.Millisecond)
	ok, _ = m.Allow(ctx, "k")
	assert.True(t, ok, "one token refilled")
	ok, _ = m.Allow(ctx, "k")
	assert.False(t, ok)

	c.advance(time.Hour)
	for range 3 {
		ok, _ = m.Allow(ctx, "k")
		assert.True(t, ok)
	}
	ok, _ = m.Allow(ctx, "k")
	assert.False(t, ok, "refill caps at burst")
}

func TestMemoryLimiterEvictStale(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := newMemoryLimiter(1, 1, c.now)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "old")
	c.advance(staleAfter + time.Second)
	_, _ = m.Allow(ctx, "new")

	assert.Equal(t, 1, m.evictStale())
	assert.Len(t, m.buckets, 1)
	assert.Contains(t, m.buckets, "new")
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	m := NewMemoryLimiter(0, 50)
	defer func() { _ = m.Close() }()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Allow(context.Background(), "k"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), allowed.Load())
	assert.NoError(t, m.Close(), "close is idempotent")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingLimiter) Close() error                                { return nil }

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	key := func(r *http.Request) string { return r.Header.Get("X-Caller") }
	reqID := func(*http.Request) string { return "req-1" }

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	h := Middleware(newMemoryLimiter(0, 1, c.now), "creds", key, reqID)(ok)

	do := func(caller string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-Caller", caller)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusNoContent, do("a").Code)
	limited := do("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), "RATE_LIMITED")
	assert.Contains(t, limited.Body.String(), "req-1")
	assert.Equal(t, http.StatusNoContent, do("").Code, "empty key is exempt")

	failOpen := Middleware(failingLimiter{}, "creds", key, nil)(ok)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Caller", "a")
	failOpen.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	Middleware(nil, "x", key, nil)(ok).ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var noop NoopLimiter
	allowed, err := noop.Allow(context.Background(), "k")
	assert.True(t, allowed)
	assert.NoError(t, err)
}

func TestIPKeyFunc(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", IPKeyFunc(r))
	r.RemoteAddr = "[::1]:80"
	assert.Equal(t, "[::1]", IPKeyFunc(r))
}
