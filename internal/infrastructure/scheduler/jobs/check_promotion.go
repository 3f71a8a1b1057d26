package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/group"
	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/progress"
	"github.com/darb-academy/lifecycle-worker/internal/domain/rules"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK PROMOTION JOB
// ══════════════════════════════════════════════════════════════════════════════

// CheckPromotionJob evaluates reserve-roster students over the previous full
// month and moves those who pass both gates into a main group.
//
// Gates:
//   - attendance: present and sard sessions >= minAttendance
//   - score: every progress session sums to >= minSessionScore
type CheckPromotionJob struct {
	rules      RulesLoader
	students   student.Repository
	attendance attendance.Repository
	progress   progress.Repository
	groups     group.Repository
	notifier   notification.Notifier
	logger     *slog.Logger

	config CheckPromotionConfig
	now    Clock
}

// CheckPromotionConfig contains configuration for the check promotion job.
type CheckPromotionConfig struct {
	ChunkSize int
	Timeout   time.Duration
}

// DefaultCheckPromotionConfig returns sensible defaults.
func DefaultCheckPromotionConfig() CheckPromotionConfig {
	return CheckPromotionConfig{
		ChunkSize: DefaultChunkSize,
		Timeout:   10 * time.Minute,
	}
}

// CheckPromotionStats contains statistics from one run.
type CheckPromotionStats struct {
	Window          timeutil.Window
	StudentsChecked int
	NoTarget        int
	LowAttendance   int
	NoProgress      int
	LowScore        int
	Promoted        int
	Duration        time.Duration
}

// NewCheckPromotionJob creates a new check promotion job.
func NewCheckPromotionJob(
	rulesLoader RulesLoader,
	students student.Repository,
	attendanceRepo attendance.Repository,
	progressRepo progress.Repository,
	groups group.Repository,
	notifier notification.Notifier,
	logger *slog.Logger,
	config CheckPromotionConfig,
) *CheckPromotionJob {
	if logger == nil {
		logger = slog.Default()
	}
	config.ChunkSize = chunkSizeOrDefault(config.ChunkSize)

	return &CheckPromotionJob{
		rules:      rulesLoader,
		students:   students,
		attendance: attendanceRepo,
		progress:   progressRepo,
		groups:     groups,
		notifier:   notifier,
		logger:     logger.With("job", NameCheckPromotion),
		config:     config,
		now:        time.Now,
	}
}

// WithClock replaces the job's clock. Used by tests.
func (j *CheckPromotionJob) WithClock(now Clock) *CheckPromotionJob {
	j.now = now
	return j
}

// Name returns the job name.
func (j *CheckPromotionJob) Name() string { return NameCheckPromotion }

// Description returns a human-readable description.
func (j *CheckPromotionJob) Description() string {
	return "Promotes reserve students who met last month's attendance and score minimums"
}

// Run executes the job.
func (j *CheckPromotionJob) Run(ctx context.Context) (scheduler.Result, error) {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	window := timeutil.PreviousMonth(referenceDay(ctx, j.now))
	stats := &CheckPromotionStats{Window: window}

	j.logger.Info("starting promotion check", "window", window.String())

	cfg, err := j.rules.Load(ctx)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("load rules: %w", err)
	}
	if !cfg.Promotion.Enabled {
		return scheduler.Skipped(scheduler.ReasonDisabled, window.String()), nil
	}
	if !cfg.HasPromotionTarget() {
		return scheduler.Skipped(scheduler.ReasonNoTargetGroup, window.String()), nil
	}

	roster, err := j.students.List(ctx, student.ActiveOf(student.RosterReserve))
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListStudents", err)
	}
	if len(roster) == 0 {
		return scheduler.Skipped(scheduler.ReasonNoReserveStudents, window.String()), nil
	}
	stats.StudentsChecked = len(roster)

	names := newGroupNames(j.groups)
	at := time.Now().UTC()
	var promotions []student.Promotion

	for _, s := range roster {
		targetID := cfg.PromotionTargetFor(s.GroupID)
		if targetID == "" {
			stats.NoTarget++
			j.logger.Warn("no target group for reserve student",
				"student_id", s.ID,
				"group_id", s.GroupID,
			)
			continue
		}

		ok, err := j.qualifies(ctx, s, cfg, window, stats)
		if err != nil {
			return scheduler.Result{}, err
		}
		if !ok {
			continue
		}

		targetName, err := names.lookup(ctx, targetID)
		if err != nil {
			return scheduler.Result{}, shared.Persistence("GetGroup", err)
		}
		if targetName == "" {
			j.logger.Warn("target group not found, using id as name", "group_id", targetID)
			targetName = targetID
		}

		p, err := s.Promote(targetID, targetName, at)
		if err != nil {
			j.logger.Warn("promotion rejected", "student_id", s.ID, "error", err)
			continue
		}
		promotions = append(promotions, p)
	}

	// only promotions that changed a row are congratulated; an overlapping
	// run reading a stale roster gets nothing back
	applied, err := j.students.PromoteBatch(ctx, promotions, j.config.ChunkSize)
	for _, p := range applied {
		j.notifier.Notify(notification.Promotion(p.StudentID, p.ToGroupID, p.ToGroupName))
	}
	if err != nil {
		return scheduler.Result{}, shared.Persistence("PromoteStudents", err)
	}
	stats.Promoted = len(applied)

	stats.Duration = time.Since(startedAt)

	j.logger.Info("promotion check completed",
		"window", window.String(),
		"checked", stats.StudentsChecked,
		"no_target", stats.NoTarget,
		"low_attendance", stats.LowAttendance,
		"no_progress", stats.NoProgress,
		"low_score", stats.LowScore,
		"promoted", stats.Promoted,
		"duration", stats.Duration.String(),
	)

	return scheduler.Success(stats.Promoted, window.String()), nil
}

// qualifies applies the attendance gate first, then the score gate.
// Progress is only read for students who cleared attendance.
func (j *CheckPromotionJob) qualifies(
	ctx context.Context,
	s *student.Student,
	cfg rules.Config,
	window timeutil.Window,
	stats *CheckPromotionStats,
) (bool, error) {
	records, err := j.attendance.ListForStudent(ctx, s.ID, window)
	if err != nil {
		return false, shared.Persistence("ListStudentAttendance", err)
	}
	if attendance.CountAttended(records) < cfg.Promotion.MinAttendance {
		stats.LowAttendance++
		return false, nil
	}

	sessions, err := j.progress.ListForStudent(ctx, s.ID, window)
	if err != nil {
		return false, shared.Persistence("ListProgress", err)
	}
	if len(sessions) == 0 {
		stats.NoProgress++
		return false, nil
	}
	if !progress.AllSessionsAtLeast(sessions, float64(cfg.Promotion.MinSessionScore)) {
		stats.LowScore++
		return false, nil
	}
	return true, nil
}

// groupNames memoizes display names for the duration of one run.
type groupNames struct {
	repo  group.Repository
	names map[string]string
}

func newGroupNames(repo group.Repository) *groupNames {
	return &groupNames{repo: repo, names: make(map[string]string)}
}

// lookup returns "" when the group does not exist.
func (g *groupNames) lookup(ctx context.Context, id string) (string, error) {
	if name, ok := g.names[id]; ok {
		return name, nil
	}
	grp, err := g.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, shared.ErrGroupNotFound):
		g.names[id] = ""
		return "", nil
	case err != nil:
		return "", err
	}
	g.names[id] = grp.Name
	return grp.Name, nil
}
