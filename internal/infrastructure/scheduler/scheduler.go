// Package scheduler runs the lifecycle jobs. Cron expressions drive the
// in-process triggers and RunNow serves the HTTP trigger; both paths share
// the same per-job lock, history and telemetry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/telemetry"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name is the job's action selector, e.g. "auto-absent".
	Name() string

	// Description returns a human-readable description of the job.
	Description() string

	// Run executes the job once. A documented no-op is reported as a
	// skipped Result with a nil error; an error means the run failed.
	Run(ctx context.Context) (Result, error)
}

// JobResult describes one execution.
type JobResult struct {
	JobName     string        `json:"job"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"durationNs"`
	Result      Result        `json:"result"`
	Error       error         `json:"-"`
	Manual      bool          `json:"manual"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	location *time.Location
	cron     *cron.Cron
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	jobs       map[string]*scheduledJob
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	startedAt  time.Time
	maxHistory int

	lastRuns   map[string]*JobResult
	runHistory []JobResult
}

// scheduledJob wraps a Job with scheduling information.
type scheduledJob struct {
	job      Job
	spec     string
	entryID  cron.EntryID
	enabled  bool
	lastRun  time.Time
	runCount int64
	failures int64
	skips    int64

	// serialises cron and manual runs of the same job
	runMu sync.Mutex
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Location for cron expressions. The academy timezone in production.
	Location *time.Location

	// MaxHistorySize is the maximum number of job results to keep in history.
	MaxHistorySize int

	Metrics *telemetry.Metrics
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:         slog.Default(),
		Location:       time.UTC,
		MaxHistorySize: 500,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 500
	}

	cronLogger := logger.NewCronLogger(config.Logger)

	return &Scheduler{
		logger:   config.Logger.With("component", "scheduler"),
		location: config.Location,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		metrics:    config.Metrics,
		tracer:     otel.Tracer(telemetry.InstrumentationName),
		jobs:       make(map[string]*scheduledJob),
		lastRuns:   make(map[string]*JobResult),
		maxHistory: config.MaxHistorySize,
		ctx:        context.Background(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job. An empty spec registers it for manual runs only.
func (s *Scheduler) Register(job Job, spec string) error {
	if job == nil {
		return ErrNilJob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, spec: spec, enabled: true}

	if spec != "" {
		id, err := s.cron.AddFunc(spec, func() { s.runScheduled(sj) })
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, name, err)
		}
		sj.entryID = id
	}

	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", spec,
	)

	return nil
}

// DisableJob stops cron runs of a job. Manual runs are still allowed.
func (s *Scheduler) DisableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = false
	s.logger.Info("job disabled", "job", jobName)
	return nil
}

// Has reports whether a job with this name is registered.
func (s *Scheduler) Has(jobName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[jobName]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins firing cron triggers. Runs started by cron get a context
// derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs_count", count, "location", s.location.String())
	return nil
}

// Stop stops cron triggers and waits for running cron jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		cancel()
		<-done.Done()
	}
	cancel()

	s.logger.Info("scheduler stopped", "uptime", time.Since(s.startedAt).String())
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runScheduled(sj *scheduledJob) {
	s.mu.RLock()
	enabled := sj.enabled
	ctx := s.ctx
	s.mu.RUnlock()

	if !enabled {
		return
	}
	_, _ = s.execute(ctx, sj, false)
}

// RunNow immediately executes a job by name, ignoring its schedule.
// It waits for a concurrent run of the same job to finish first.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	return s.execute(ctx, sj, true)
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) (*JobResult, error) {
	sj.runMu.Lock()
	defer sj.runMu.Unlock()

	jobName := sj.job.Name()

	ctx, span := s.tracer.Start(ctx, "job "+jobName, trace.WithAttributes(
		attribute.String("job", jobName),
		attribute.Bool("manual", manual),
	))
	defer span.End()

	startedAt := time.Now()
	s.logger.Info("job started", "job", jobName, "manual", manual)

	res, err := s.safeRun(ctx, sj.job)
	if err != nil {
		res = Failed(err)
	}

	completedAt := time.Now()
	result := &JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Result:      res,
		Error:       err,
		Manual:      manual,
	}

	s.metrics.RecordJobRun(ctx, jobName, string(res.Outcome), result.Duration)
	if res.Outcome == OutcomeSuccess {
		s.metrics.RecordWritten(ctx, jobName, res.Count)
	}

	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int("count", res.Count),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.mu.Lock()
	sj.lastRun = startedAt
	sj.runCount++
	switch res.Outcome {
	case OutcomeError:
		sj.failures++
	case OutcomeSkipped:
		sj.skips++
	}
	s.lastRuns[jobName] = result
	s.addToHistory(*result)
	s.mu.Unlock()

	switch res.Outcome {
	case OutcomeError:
		s.logger.Error("job failed",
			"job", jobName,
			"duration", result.Duration.String(),
			"error", err,
		)
	case OutcomeSkipped:
		s.logger.Info("job skipped",
			"job", jobName,
			"reason", res.Reason,
			"date", res.Date,
		)
	default:
		s.logger.Info("job completed",
			"job", jobName,
			"count", res.Count,
			"date", res.Date,
			"duration", result.Duration.String(),
		)
	}

	return result, err
}

// safeRun turns a panicking job into a failed run.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrJobPanicked, job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// addToHistory must be called with mu held.
func (s *Scheduler) addToHistory(result JobResult) {
	s.runHistory = append(s.runHistory, result)
	if len(s.runHistory) > s.maxHistory {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistory:]
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule,omitempty"`
	LastRun     time.Time  `json:"lastRun"`
	NextRun     time.Time  `json:"nextRun"`
	RunCount    int64      `json:"runCount"`
	FailCount   int64      `json:"failCount"`
	SkipCount   int64      `json:"skipCount"`
	LastResult  *JobResult `json:"lastResult,omitempty"`
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name := range s.jobs {
		infos = append(infos, s.infoLocked(name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Scheduler) infoLocked(name string) JobInfo {
	sj := s.jobs[name]
	info := JobInfo{
		Name:        name,
		Description: sj.job.Description(),
		Enabled:     sj.enabled,
		Schedule:    sj.spec,
		LastRun:     sj.lastRun,
		RunCount:    sj.runCount,
		FailCount:   sj.failures,
		SkipCount:   sj.skips,
		LastResult:  s.lastRuns[name],
	}
	if sj.entryID != 0 {
		info.NextRun = s.cron.Entry(sj.entryID).Next
	}
	return info
}

// GetHistory returns the most recent job results, oldest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}
	out := make([]JobResult, limit)
	copy(out, s.runHistory[len(s.runHistory)-limit:])
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrInvalidSchedule is returned for a cron expression that does not parse.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned for an unknown job name.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobPanicked wraps a recovered panic from Job.Run.
	ErrJobPanicked = errors.New("job panicked")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
