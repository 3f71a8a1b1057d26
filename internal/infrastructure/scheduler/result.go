package scheduler

import (
	"context"
	"time"

	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// Outcome is the machine-readable status of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Skip reasons reported by the lifecycle jobs.
const (
	ReasonDisabled              = "disabled"
	ReasonNotRequiredDay        = "not_required_day"
	ReasonGlobalHoliday         = "global_holiday"
	ReasonNoActiveStudents      = "no_active_students"
	ReasonNoTargetGroup         = "no_target_group"
	ReasonNoReserveStudents     = "no_reserve_students"
	ReasonNoAbsences            = "no_absences"
	ReasonTelegramNotConfigured = "telegram_not_configured"
)

// Result is what a job reports back to its trigger.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Count   int     `json:"count"`
	Reason  string  `json:"reason,omitempty"`
	Message string  `json:"message,omitempty"`
	Date    string  `json:"date,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Success reports count processed items for the given day or window.
func Success(count int, date string) Result {
	return Result{Outcome: OutcomeSuccess, Count: count, Date: date}
}

// Skipped reports a documented no-op.
func Skipped(reason, date string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason, Date: date}
}

// Failed reports a failed run.
func Failed(err error) Result {
	return Result{Outcome: OutcomeError, Error: err.Error()}
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN DATE
// ══════════════════════════════════════════════════════════════════════════════

type runDateKey struct{}

// WithRunDate pins the day a run processes, for backfills. Without it every
// job derives its day from the clock.
func WithRunDate(ctx context.Context, date time.Time) context.Context {
	return context.WithValue(ctx, runDateKey{}, timeutil.StartOfDay(date))
}

// RunDate returns the pinned day, if any.
func RunDate(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(runDateKey{}).(time.Time)
	return t, ok
}
