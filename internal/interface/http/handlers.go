package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every check. It always answers 200 so a degraded
// cache does not restart the pod.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.HealthChecker.Check(r.Context()))
}

// handleReady answers 503 while a required dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON TRIGGER
// ══════════════════════════════════════════════════════════════════════════════

// cronRequest is the optional JSON body of /api/cron.
type cronRequest struct {
	Action string `json:"action"`

	// Date pins the processed day (YYYY-MM-DD) for backfills.
	Date string `json:"date"`
}

const maxCronBody = 4 << 10

// defaultAction runs when neither the query nor the body names one.
const defaultAction = "auto-absent"

// handleCron runs one job by its action selector and answers with its result.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	req, err := parseCronRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Action == "" {
		req.Action = defaultAction
	}
	if !s.deps.Jobs.Has(req.Action) {
		writeJSONError(w, http.StatusBadRequest, "Unknown action: "+req.Action)
		return
	}

	// a dropped client connection must not abort a half-written run
	ctx := context.WithoutCancel(r.Context())
	if req.Date != "" {
		day, err := timeutil.ParseDateKey(req.Date)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid date: "+req.Date)
			return
		}
		ctx = scheduler.WithRunDate(ctx, day)
	}

	log := logger.FromContext(r.Context())
	res, err := s.deps.Jobs.RunNow(ctx, req.Action)
	if err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			writeJSONError(w, http.StatusBadRequest, "Unknown action: "+req.Action)
			return
		}
		log.Error("triggered job failed", logger.Job(req.Action), logger.Err(err))
		result := scheduler.Failed(err)
		if res != nil {
			result = res.Result
		}
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}

	log.Info("triggered job finished",
		logger.Job(req.Action),
		"outcome", res.Result.Outcome,
		"count", res.Result.Count,
		logger.Latency(res.Duration),
	)
	writeJSON(w, http.StatusOK, res.Result)
}

// parseCronRequest reads the action and date from the query string, then
// lets a JSON body fill what the query left empty.
func parseCronRequest(r *http.Request) (cronRequest, error) {
	q := r.URL.Query()
	req := cronRequest{
		Action: strings.TrimSpace(q.Get("action")),
		Date:   strings.TrimSpace(q.Get("date")),
	}

	if r.Method != http.MethodPost || r.Body == nil {
		return req, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxCronBody))
	if err != nil {
		return req, errors.New("unreadable request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, nil
	}

	var body cronRequest
	if err := json.Unmarshal(data, &body); err != nil {
		return req, errors.New("invalid JSON body")
	}
	if req.Action == "" {
		req.Action = strings.TrimSpace(body.Action)
	}
	if req.Date == "" {
		req.Date = strings.TrimSpace(body.Date)
	}
	return req, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB STATUS
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type jobsResponse struct {
	Jobs   []scheduler.JobInfo   `json:"jobs"`
	Recent []scheduler.JobResult `json:"recent"`
}

// handleJobs lists registered jobs with their schedule, counters and last
// result, plus the most recent runs across all jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeJSONError(w, http.StatusBadRequest, "Invalid limit: "+raw)
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, jobsResponse{
		Jobs:   s.deps.Jobs.ListJobs(),
		Recent: s.deps.Jobs.GetHistory(limit),
	})
}
