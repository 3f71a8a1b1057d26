package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/demotion"
	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ABSENCE JOB
// ══════════════════════════════════════════════════════════════════════════════

// CheckAbsenceJob folds this month's absences per main-roster student and
// raises one demotion alert per student and month when a limit is reached.
// It never changes a student's roster type.
type CheckAbsenceJob struct {
	rules      RulesLoader
	students   student.Repository
	attendance attendance.Repository
	alerts     demotion.Repository
	notifier   notification.Notifier
	logger     *slog.Logger

	config CheckAbsenceConfig
	now    Clock
}

// CheckAbsenceConfig contains configuration for the check absence job.
type CheckAbsenceConfig struct {
	Timeout time.Duration
}

// DefaultCheckAbsenceConfig returns sensible defaults.
func DefaultCheckAbsenceConfig() CheckAbsenceConfig {
	return CheckAbsenceConfig{Timeout: 5 * time.Minute}
}

// CheckAbsenceStats contains statistics from one run.
type CheckAbsenceStats struct {
	Window          timeutil.Window
	StudentsChecked int
	Violations      int
	ByTrigger       map[demotion.Trigger]int
	Notified        int
	Duration        time.Duration
}

// NewCheckAbsenceJob creates a new check absence job.
func NewCheckAbsenceJob(
	rulesLoader RulesLoader,
	students student.Repository,
	attendanceRepo attendance.Repository,
	alerts demotion.Repository,
	notifier notification.Notifier,
	logger *slog.Logger,
	config CheckAbsenceConfig,
) *CheckAbsenceJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &CheckAbsenceJob{
		rules:      rulesLoader,
		students:   students,
		attendance: attendanceRepo,
		alerts:     alerts,
		notifier:   notifier,
		logger:     logger.With("job", NameCheckAbsence),
		config:     config,
		now:        time.Now,
	}
}

// WithClock replaces the job's clock. Used by tests.
func (j *CheckAbsenceJob) WithClock(now Clock) *CheckAbsenceJob {
	j.now = now
	return j
}

// Name returns the job name.
func (j *CheckAbsenceJob) Name() string { return NameCheckAbsence }

// Description returns a human-readable description.
func (j *CheckAbsenceJob) Description() string {
	return "Raises demotion alerts for students over the monthly absence limits"
}

// Run executes the job.
func (j *CheckAbsenceJob) Run(ctx context.Context) (scheduler.Result, error) {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	today := referenceDay(ctx, j.now)
	window := timeutil.MonthToDate(today)
	month := timeutil.MonthKey(today)
	stats := &CheckAbsenceStats{Window: window, ByTrigger: make(map[demotion.Trigger]int)}

	j.logger.Info("starting absence check", "window", window.String(), "month", month)

	cfg, err := j.rules.Load(ctx)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("load rules: %w", err)
	}
	if !cfg.Demotion.Enabled {
		return scheduler.Skipped(scheduler.ReasonDisabled, window.String()), nil
	}

	roster, err := j.students.List(ctx, student.ActiveOf(student.RosterMain))
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListStudents", err)
	}
	if len(roster) == 0 {
		return scheduler.Skipped(scheduler.ReasonNoActiveStudents, window.String()), nil
	}
	stats.StudentsChecked = len(roster)

	missed, err := j.attendance.ListInWindow(ctx, window, attendance.StatusAbsent, attendance.StatusExcused)
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListAttendance", err)
	}
	counts := attendance.FoldMissed(missed)

	at := time.Now().UTC()
	var raised []*demotion.Alert
	for _, s := range roster {
		v, ok := demotion.Evaluate(counts[s.ID], cfg.Demotion)
		if !ok {
			continue
		}
		stats.ByTrigger[v.Trigger]++
		raised = append(raised, demotion.NewAlert(s, v, cfg, month, at))
	}
	stats.Violations = len(raised)

	if len(raised) == 0 {
		j.logger.Info("no violations found", "students", stats.StudentsChecked)
		return scheduler.Success(0, window.String()), nil
	}

	stored, err := j.alerts.UpsertMerge(ctx, raised)
	if err != nil {
		return scheduler.Result{}, shared.Persistence("UpsertAlerts", err)
	}

	for _, a := range stored {
		// an alert already executed this month must not nag the student again
		if !a.IsPending() {
			continue
		}
		j.notifier.Notify(notification.Demotion(a.StudentID, a.Reason))
		stats.Notified++
	}

	stats.Duration = time.Since(startedAt)

	j.logger.Info("absence check completed",
		"window", window.String(),
		"checked", stats.StudentsChecked,
		"violations", stats.Violations,
		"unexcused", stats.ByTrigger[demotion.TriggerUnexcused],
		"excused", stats.ByTrigger[demotion.TriggerExcused],
		"total_cap", stats.ByTrigger[demotion.TriggerTotalCap],
		"notified", stats.Notified,
		"duration", stats.Duration.String(),
	)

	return scheduler.Success(stats.Violations, window.String()), nil
}
