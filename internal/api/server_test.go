package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellnessapp/notification-service/internal/config"
	"github.com/wellnessapp/notification-service/internal/notifications"
)

type fakePinger struct{ err error }

func (p fakePinger) HealthCheck(context.Context) error { return p.err }

type fakeScheduler struct {
	triggers int
	due      []notifications.DueUser
	dueAt    time.Time
}

func (s *fakeScheduler) Status() notifications.Status {
	return notifications.Status{State: "idle", Cycles: 3}
}

func (s *fakeScheduler) Trigger() bool {
	s.triggers++
	return s.triggers == 1
}

func (s *fakeScheduler) GetUsersDueForNotification(ctx context.Context, nowUTC time.Time, stats *notifications.CycleStats) ([]notifications.DueUser, error) {
	s.dueAt = nowUTC
	stats.Candidates = 5
	return s.due, nil
}

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowOrigins:  []string{"http://localhost:3000"},
		RateLimitEnabled:  true,
		RateLimitRequests: 4,
		RateLimitWindow:   time.Minute,
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	return doFrom(t, h, "10.0.0.1:5555", method, path)
}

func doFrom(t *testing.T, h http.Handler, addr, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	r := NewRouter(fakePinger{}, &fakeScheduler{}, testConfig())

	rec := do(t, r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestHealthDB(t *testing.T) {
	ok := NewRouter(fakePinger{}, nil, testConfig())
	assert.Equal(t, http.StatusOK, do(t, ok, http.MethodGet, "/health/db").Code)

	down := NewRouter(fakePinger{err: errors.New("no route to host")}, nil, testConfig())
	rec := do(t, down, http.MethodGet, "/health/db")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disconnected", decode(t, rec)["database"])
}

func TestSchedulerStatus(t *testing.T) {
	r := NewRouter(fakePinger{}, &fakeScheduler{}, testConfig())

	rec := do(t, r, http.MethodGet, "/scheduler/status")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, float64(3), body["cycles"])
}

func TestSchedulerDisabled(t *testing.T) {
	r := NewRouter(fakePinger{}, nil, testConfig())

	rec := do(t, r, http.MethodPost, "/scheduler/trigger")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "SCHEDULER_DISABLED", errBody["code"])
}

func TestTriggerCoalescesAndRateLimits(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewRouter(fakePinger{}, sched, testConfig())

	rec := do(t, r, http.MethodPost, "/scheduler/trigger")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decode(t, rec)["queued"])

	rec = do(t, r, http.MethodPost, "/scheduler/trigger")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decode(t, rec)["pending"])

	// Burst is half the window allowance; the next token is 15s away.
	rec = do(t, r, http.MethodPost, "/scheduler/trigger")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "15", rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, sched.triggers)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/scheduler/status").Code)
}

func TestTriggerLimitIsSharedAcrossClients(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewRouter(fakePinger{}, sched, testConfig())

	assert.Equal(t, http.StatusAccepted, doFrom(t, r, "10.0.0.1:1000", http.MethodPost, "/scheduler/trigger").Code)
	assert.Equal(t, http.StatusAccepted, doFrom(t, r, "10.0.0.2:1000", http.MethodPost, "/scheduler/trigger").Code)
	assert.Equal(t, http.StatusTooManyRequests, doFrom(t, r, "10.0.0.3:1000", http.MethodPost, "/scheduler/trigger").Code)
	assert.Equal(t, 2, sched.triggers)
}

func TestTriggerUnlimitedWhenDisabled(t *testing.T) {
	sched := &fakeScheduler{}
	cfg := testConfig()
	cfg.RateLimitEnabled = false
	r := NewRouter(fakePinger{}, sched, cfg)

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusAccepted, do(t, r, http.MethodPost, "/scheduler/trigger").Code)
	}
	assert.Equal(t, 10, sched.triggers)
}

func TestDueUsers(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	id := uuid.New()
	sched := &fakeScheduler{due: []notifications.DueUser{{
		UserID:           id,
		Timezone:         "America/New_York",
		PreferredTimeUTC: 13 * time.Hour,
		Location:         ny,
	}}}
	r := NewRouter(fakePinger{}, sched, testConfig())

	rec := do(t, r, http.MethodGet, "/scheduler/due?at=2026-07-01T13:20:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 7, 1, 13, 20, 0, 0, time.UTC), sched.dueAt)

	body := decode(t, rec)
	assert.Equal(t, float64(5), body["candidates"])
	users := body["due"].([]any)
	require.Len(t, users, 1)
	u := users[0].(map[string]any)
	assert.Equal(t, id.String(), u["user_id"])
	assert.Equal(t, "13:00:00", u["preferred_time_utc"])
	assert.Equal(t, "2026-07-01T09:20:00-04:00", u["local_time"])

	rec = do(t, r, http.MethodGet, "/scheduler/due?at=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := NewRouter(fakePinger{}, &fakeScheduler{}, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/scheduler/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
