package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing(context.Context) error { return nil }

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing)

	w := serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLiveEndpoint_FailureThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))
	c := h.checks[0]
	ctx := context.Background()

	for range FailureThreshold - 1 {
		c.run(ctx)
	}
	assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint).Code)

	c.run(ctx)
	w := serve(h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())
}

func TestReadiness_StartsUnhealthy(t *testing.T) {
	h := New()
	h.AddReadinessCheck("mongo", time.Second, passing)
	h.SetReady(true)

	assert.False(t, h.IsReady())
	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"mongo":"not checked yet"}}`, w.Body.String())

	h.checks[0].run(context.Background())
	assert.True(t, h.IsReady())
	assert.Equal(t, http.StatusOK, serve(h.ReadyEndpoint).Code)
}

func TestReadiness_ManualFlag(t *testing.T) {
	h := New()
	assert.False(t, h.IsReady())

	w := serve(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.True(t, h.IsReady())
	assert.Equal(t, http.StatusOK, serve(h.ReadyEndpoint).Code)

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestReadiness_Recovers(t *testing.T) {
	var down atomic.Bool
	down.Store(true)

	h := New()
	h.AddReadinessCheck("postgres", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("down")
		}
		return nil
	})
	h.SetReady(true)
	c := h.checks[0]
	ctx := context.Background()

	for range FailureThreshold {
		c.run(ctx)
	}
	assert.False(t, h.IsReady())

	down.Store(false)
	c.run(ctx)
	assert.True(t, h.IsReady())
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := h.checks[0]

	for range FailureThreshold {
		c.run(context.Background())
	}
	ok, reason := c.status()
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded.Error(), reason)
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.AddReadinessCheck("counter", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, h.IsReady())

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestPingCheck(t *testing.T) {
	check := PingCheck("mongo", func(context.Context) error { return errors.New("no reachable servers") })
	require.EqualError(t, check(context.Background()), "mongo ping: no reachable servers")
	require.NoError(t, PingCheck("memory", passing)(context.Background()))
}
