package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.2.3")
	c.AddCheck("database", func(context.Context) error { return nil })
	c.AddNonCriticalCheck("oracle", func(context.Context) error { return errors.New("circuit breaker open") })

	status := c.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Degraded)
	assert.Equal(t, "Some checks failed: oracle", status.Message)
	assert.Equal(t, "OK", status.Checks["database"].Message)
	assert.False(t, status.Checks["oracle"].Critical)

	c.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	status = c.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: oracle, redis", status.Message)
}

func TestCompositeHealthChecker_Empty(t *testing.T) {
	status := NewCompositeHealthChecker("dev").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "dev", status.Version)
}

type runningFlag bool

func (f runningFlag) IsRunning() bool { return bool(f) }

func TestSchedulerCheck(t *testing.T) {
	assert.NoError(t, NewSchedulerCheck(runningFlag(true))(context.Background()))
	assert.EqualError(t, NewSchedulerCheck(runningFlag(false))(context.Background()), "scheduler is not running")
}

func TestHealthHandler(t *testing.T) {
	c := NewCompositeHealthChecker("dev")
	c.AddCheck("database", func(context.Context) error { return errors.New("down") })
	h := NewHealthHandler(c)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
