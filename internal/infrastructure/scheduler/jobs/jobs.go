// Package jobs contains the lifecycle jobs run by the scheduler: the daily
// absence marker, the monthly demotion check, the monthly promotion check and
// the daily absence report for administrators.
package jobs

import (
	"context"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/rules"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// Action selectors. They double as scheduler job names.
const (
	NameAutoAbsent     = "auto-absent"
	NameCheckAbsence   = "check-absence"
	NameCheckPromotion = "check-promotion"
	NameAgentReport    = "agent-report"
)

// DefaultChunkSize bounds the number of writes per transaction.
const DefaultChunkSize = 450

// RulesLoader resolves the current rules document.
type RulesLoader interface {
	Load(ctx context.Context) (rules.Config, error)
}

// Clock returns the current instant. Jobs convert it to the academy zone.
type Clock func() time.Time

// referenceDay is the day a run treats as "today": the pinned run date when
// the trigger supplied one, otherwise the clock's day in the academy zone.
func referenceDay(ctx context.Context, now Clock) time.Time {
	if d, ok := scheduler.RunDate(ctx); ok {
		return d
	}
	return timeutil.StartOfDay(now())
}

func chunkSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultChunkSize
	}
	return n
}
