package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTO ABSENT JOB
// ══════════════════════════════════════════════════════════════════════════════

// AutoAbsentJob marks every eligible student without an attendance record
// as absent for the target day.
//
// The trigger fires shortly after midnight, so the target day is yesterday
// in the academy zone. Re-running for the same day is safe: coverage is
// re-read on every run and the store ignores duplicate (student, date) rows.
type AutoAbsentJob struct {
	rules      RulesLoader
	students   student.Repository
	attendance attendance.Repository
	holidays   attendance.HolidayRepository
	notifier   notification.Notifier
	logger     *slog.Logger

	config AutoAbsentConfig
	now    Clock
}

// AutoAbsentConfig contains configuration for the auto absent job.
type AutoAbsentConfig struct {
	ChunkSize int
	Timeout   time.Duration
}

// DefaultAutoAbsentConfig returns sensible defaults.
func DefaultAutoAbsentConfig() AutoAbsentConfig {
	return AutoAbsentConfig{
		ChunkSize: DefaultChunkSize,
		Timeout:   5 * time.Minute,
	}
}

// AutoAbsentStats contains statistics from one run.
type AutoAbsentStats struct {
	Date            string
	StudentsChecked int
	AlreadyCovered  int
	GroupHoliday    int
	Synthesized     int
	Inserted        int
	Duration        time.Duration
}

// NewAutoAbsentJob creates a new auto absent job.
func NewAutoAbsentJob(
	rulesLoader RulesLoader,
	students student.Repository,
	attendanceRepo attendance.Repository,
	holidays attendance.HolidayRepository,
	notifier notification.Notifier,
	logger *slog.Logger,
	config AutoAbsentConfig,
) *AutoAbsentJob {
	if logger == nil {
		logger = slog.Default()
	}
	config.ChunkSize = chunkSizeOrDefault(config.ChunkSize)

	return &AutoAbsentJob{
		rules:      rulesLoader,
		students:   students,
		attendance: attendanceRepo,
		holidays:   holidays,
		notifier:   notifier,
		logger:     logger.With("job", NameAutoAbsent),
		config:     config,
		now:        time.Now,
	}
}

// WithClock replaces the job's clock. Used by tests.
func (j *AutoAbsentJob) WithClock(now Clock) *AutoAbsentJob {
	j.now = now
	return j
}

// Name returns the job name.
func (j *AutoAbsentJob) Name() string { return NameAutoAbsent }

// Description returns a human-readable description.
func (j *AutoAbsentJob) Description() string {
	return "Marks students without an attendance record for yesterday as absent"
}

// TargetDate returns the day the job processes when triggered at now.
func TargetDate(now time.Time) time.Time {
	return timeutil.Yesterday(now)
}

// Run executes the job.
func (j *AutoAbsentJob) Run(ctx context.Context) (scheduler.Result, error) {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	target, pinned := scheduler.RunDate(ctx)
	if !pinned {
		target = TargetDate(j.now())
	}
	date := timeutil.DateKey(target)
	stats := &AutoAbsentStats{Date: date}

	j.logger.Info("starting auto absent run", "date", date, "weekday", timeutil.WeekdayIndex(target))

	cfg, err := j.rules.Load(ctx)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("load rules: %w", err)
	}

	if !cfg.AutoAbsent.Enabled {
		return scheduler.Skipped(scheduler.ReasonDisabled, date), nil
	}
	if !cfg.AutoAbsent.IsRequiredDay(timeutil.WeekdayIndex(target)) {
		return scheduler.Skipped(scheduler.ReasonNotRequiredDay, date), nil
	}

	periods, err := j.holidays.ListCovering(ctx, date)
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListHolidays", err)
	}
	calendar := attendance.NewHolidayCalendar(periods)
	if calendar.IsGlobalHoliday(date) {
		return scheduler.Skipped(scheduler.ReasonGlobalHoliday, date), nil
	}

	types := []student.RosterType{student.RosterMain}
	if cfg.AutoAbsent.IncludeReserve {
		types = append(types, student.RosterReserve)
	}
	roster, err := j.students.List(ctx, student.ActiveOf(types...))
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListStudents", err)
	}
	if len(roster) == 0 {
		return scheduler.Skipped(scheduler.ReasonNoActiveStudents, date), nil
	}
	stats.StudentsChecked = len(roster)

	existing, err := j.attendance.ListByDate(ctx, date)
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListAttendance", err)
	}
	covered := attendance.NewCoverage(existing)

	at := time.Now().UTC()
	absences := make([]*attendance.Record, 0, len(roster))
	for _, s := range roster {
		if covered.Has(s.ID) {
			stats.AlreadyCovered++
			continue
		}
		if calendar.IsGroupHoliday(date, s.GroupID) {
			stats.GroupHoliday++
			continue
		}
		absences = append(absences, attendance.NewAbsence("", s, date, at))
	}
	stats.Synthesized = len(absences)

	// committed chunks come back with the error; a retry sees them as covered
	inserted, err := j.attendance.InsertBatch(ctx, absences, j.config.ChunkSize)
	for _, rec := range inserted {
		j.notifier.Notify(notification.Absence(rec.StudentID, date))
	}
	if err != nil {
		j.logger.Error("attendance write failed",
			"date", date,
			"inserted", len(inserted),
			"pending", len(absences)-len(inserted),
			"error", err,
		)
		return scheduler.Result{}, shared.Persistence("InsertAttendance", err)
	}
	stats.Inserted = len(inserted)

	stats.Duration = time.Since(startedAt)

	j.logger.Info("auto absent run completed",
		"date", date,
		"checked", stats.StudentsChecked,
		"covered", stats.AlreadyCovered,
		"group_holiday", stats.GroupHoliday,
		"inserted", stats.Inserted,
		"duration", stats.Duration.String(),
	)

	return scheduler.Success(stats.Inserted, date), nil
}
