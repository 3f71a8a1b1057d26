package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/internal/interface/http/handlers"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
)

type stubRunner struct {
	results map[string]scheduler.Result
	errs    map[string]error

	lastAction string
	lastDate   time.Time
	pinned     bool
	ctxErr     error

	historyLimit int
}

func (s *stubRunner) Has(name string) bool {
	_, ok := s.results[name]
	return ok
}

func (s *stubRunner) RunNow(ctx context.Context, name string) (*scheduler.JobResult, error) {
	s.lastAction = name
	s.lastDate, s.pinned = scheduler.RunDate(ctx)
	s.ctxErr = ctx.Err()

	res := &scheduler.JobResult{JobName: name, Manual: true, Result: s.results[name]}
	if err := s.errs[name]; err != nil {
		res.Result = scheduler.Failed(err)
		res.Error = err
		return res, err
	}
	return res, nil
}

func (s *stubRunner) ListJobs() []scheduler.JobInfo {
	infos := make([]scheduler.JobInfo, 0, len(s.results))
	for _, name := range []string{"agent-report", "auto-absent", "check-absence"} {
		if _, ok := s.results[name]; ok {
			infos = append(infos, scheduler.JobInfo{Name: name, Enabled: true})
		}
	}
	return infos
}

func (s *stubRunner) GetHistory(limit int) []scheduler.JobResult {
	s.historyLimit = limit
	if s.lastAction == "" {
		return nil
	}
	return []scheduler.JobResult{{JobName: s.lastAction, Manual: true, Result: s.results[s.lastAction]}}
}

func newRunner() *stubRunner {
	return &stubRunner{
		results: map[string]scheduler.Result{
			"auto-absent":   scheduler.Success(7, "2024-01-01"),
			"check-absence": scheduler.Skipped(scheduler.ReasonDisabled, "2024-01"),
			"agent-report":  {},
		},
		errs: map[string]error{},
	}
}

func newTestServer(runner JobRunner, hash string, health handlers.HealthChecker) *Server {
	cfg := DefaultConfig()
	cfg.CronSecretHash = hash
	return NewServer(cfg, Dependencies{
		Jobs:          runner,
		HealthChecker: health,
		Logger:        logger.Discard(),
	})
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestCron_UnknownAction(t *testing.T) {
	s := newTestServer(newRunner(), "", nil)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "unknown", target: "/api/cron?action=reindex", want: "Unknown action: reindex"},
		{name: "unregistered", target: "/api/cron?action=check-promotion", want: "Unknown action: check-promotion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, s, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, body["error"])
		})
	}
}

func TestCron_MissingActionRunsAutoAbsent(t *testing.T) {
	runner := newRunner()
	s := newTestServer(runner, "", nil)

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/cron", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auto-absent", runner.lastAction)
	assert.EqualValues(t, 7, body["count"])

	runner.lastAction = ""
	rec, _ = do(t, s, httptest.NewRequest(http.MethodPost, "/api/cron", strings.NewReader(`{"date":"2024-03-09"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auto-absent", runner.lastAction)
	assert.True(t, runner.pinned)
}

func TestCron_Success(t *testing.T) {
	runner := newRunner()
	s := newTestServer(runner, "", nil)

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/cron?action=auto-absent", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["outcome"])
	assert.EqualValues(t, 7, body["count"])
	assert.Equal(t, "2024-01-01", body["date"])
	assert.Equal(t, "auto-absent", runner.lastAction)
	assert.False(t, runner.pinned)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
}

func TestCron_SkipIsOK(t *testing.T) {
	s := newTestServer(newRunner(), "", nil)

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/cron?action=check-absence", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", body["outcome"])
	assert.Equal(t, scheduler.ReasonDisabled, body["reason"])
}

func TestCron_FailureIs500(t *testing.T) {
	runner := newRunner()
	runner.errs["auto-absent"] = errors.New("persistence: insert attendance: connection refused")
	s := newTestServer(runner, "", nil)

	rec, body := do(t, s, httptest.NewRequest(http.MethodPost, "/api/cron?action=auto-absent", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", body["outcome"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestCron_JSONBodyAndDate(t *testing.T) {
	runner := newRunner()
	s := newTestServer(runner, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cron",
		strings.NewReader(`{"action":"auto-absent","date":"2024-03-09"}`))
	req.Header.Set("Content-Type", "application/json")

	rec, _ := do(t, s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auto-absent", runner.lastAction)
	require.True(t, runner.pinned)
	assert.Equal(t, 9, runner.lastDate.Day())
	assert.Equal(t, time.March, runner.lastDate.Month())
	assert.NoError(t, runner.ctxErr)
}

func TestCron_BadInput(t *testing.T) {
	s := newTestServer(newRunner(), "", nil)

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/cron?action=auto-absent&date=09/03/2024", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid date: 09/03/2024", body["error"])

	rec, body = do(t, s, httptest.NewRequest(http.MethodPost, "/api/cron", strings.NewReader(`{"action":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestCron_MethodNotAllowed(t *testing.T) {
	s := newTestServer(newRunner(), "", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cron?action=auto-absent", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCron_SecretGuard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	runner := newRunner()
	s := newTestServer(runner, string(hash), nil)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong", header: handlers.CronSecretHeader, value: "guess", want: http.StatusUnauthorized},
		{name: "header", header: handlers.CronSecretHeader, value: "s3cret", want: http.StatusOK},
		{name: "bearer", header: "Authorization", value: "Bearer s3cret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cron?action=auto-absent", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("database", func(context.Context) error { return nil })
	checker.AddOptionalCheck("cache", func(context.Context) error { return errors.New("dial tcp: refused") })

	s := newTestServer(newRunner(), "", checker)

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, true, body["ready"])

	rec, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.AddCheck("database", func(context.Context) error { return errors.New("pool closed") })
	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["ready"])
}

func TestNotFound(t *testing.T) {
	s := newTestServer(newRunner(), "", nil)
	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/students", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found: /api/v1/students", body["error"])
}

func TestJobs_ListsJobsAndRecentRuns(t *testing.T) {
	runner := newRunner()
	s := newTestServer(runner, "", nil)

	_, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/cron?action=auto-absent", nil))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"jobs"`
		Recent []struct {
			Job    string `json:"job"`
			Result struct {
				Outcome string `json:"outcome"`
				Count   int    `json:"count"`
			} `json:"result"`
		} `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Jobs, 3)
	assert.Equal(t, "agent-report", body.Jobs[0].Name)
	require.Len(t, body.Recent, 1)
	assert.Equal(t, "auto-absent", body.Recent[0].Job)
	assert.Equal(t, 7, body.Recent[0].Result.Count)
	assert.Equal(t, 20, runner.historyLimit)
}

func TestJobs_LimitAndGuard(t *testing.T) {
	runner := newRunner()
	s := newTestServer(runner, "", nil)

	rec, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runner.historyLimit)

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid limit: 0", body["error"])

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	guarded := newTestServer(runner, string(hash), nil)
	rec, _ = do(t, guarded, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
