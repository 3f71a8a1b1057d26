package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/demotion"
	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/domain/rules"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
)

func newCheckAbsence(store *memStore, cfg rules.Config, n *recordingNotifier) *CheckAbsenceJob {
	return NewCheckAbsenceJob(
		staticRules{cfg: cfg},
		store,
		store,
		memAlerts{store: store},
		n,
		logger.Discard(),
		DefaultCheckAbsenceConfig(),
	).WithClock(fixedClock(2024, time.January, 20, 21, 0))
}

// seedMissed records n missed days for a student starting on January 2.
func seedMissed(store *memStore, studentID string, n int, status attendance.Status) {
	for i := 0; i < n; i++ {
		store.addRecord(studentID, fmt.Sprintf("2024-01-%02d", 2+i), status)
	}
}

func TestCheckAbsence_ThresholdBoundary(t *testing.T) {
	store := newMemStore()
	store.addStudent("at-limit", student.RosterMain, "g1")
	store.addStudent("below", student.RosterMain, "g1")
	seedMissed(store, "at-limit", rules.DefaultMaxMonthlyUnexcused, attendance.StatusAbsent)
	seedMissed(store, "below", rules.DefaultMaxMonthlyUnexcused-1, attendance.StatusAbsent)
	n := &recordingNotifier{}

	res, err := newCheckAbsence(store, rules.Defaults(), n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, scheduler.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Count)
	require.Contains(t, store.alerts, demotion.AlertID("at-limit", "202401"))
	assert.NotContains(t, store.alerts, demotion.AlertID("below", "202401"))
	assert.Equal(t, 1, n.count(notification.TypeDemotion))
}

func TestCheckAbsence_AlertIdempotent(t *testing.T) {
	store := newMemStore()
	store.addStudent("a", student.RosterMain, "g1")
	seedMissed(store, "a", 5, attendance.StatusAbsent)
	job := newCheckAbsence(store, rules.Defaults(), &recordingNotifier{})

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.alerts, 1)
	alert := store.alerts["demotion_a_202401"]
	require.NotNil(t, alert)
	assert.Equal(t, demotion.StatusPending, alert.Status)
	assert.Equal(t, 5, alert.Stats.Absent)
}

func TestCheckAbsence_ExecutedAlertIsKeptAndNotNotified(t *testing.T) {
	store := newMemStore()
	store.addStudent("a", student.RosterMain, "g1")
	seedMissed(store, "a", 4, attendance.StatusAbsent)
	store.alerts["demotion_a_202401"] = &demotion.Alert{
		ID:        "demotion_a_202401",
		StudentID: "a",
		Status:    demotion.StatusExecuted,
	}
	n := &recordingNotifier{}

	_, err := newCheckAbsence(store, rules.Defaults(), n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, demotion.StatusExecuted, store.alerts["demotion_a_202401"].Status)
	assert.Equal(t, 4, store.alerts["demotion_a_202401"].Stats.Absent)
	assert.Zero(t, n.count(notification.TypeDemotion))
}

func TestCheckAbsence_PriorityOrder(t *testing.T) {
	store := newMemStore()
	store.addStudent("both", student.RosterMain, "g1")
	store.addStudent("excused", student.RosterMain, "g1")
	store.addStudent("mixed", student.RosterMain, "g1")

	// both limits reached: unexcused wins
	seedMissed(store, "both", 4, attendance.StatusAbsent)
	store.addRecord("both", "2024-01-10", attendance.StatusExcused)
	store.addRecord("both", "2024-01-11", attendance.StatusExcused)

	seedMissed(store, "excused", 2, attendance.StatusExcused)

	// 3 + 1 stays under both per-kind limits
	cfg := rules.Defaults()
	cfg.Demotion.MaxMonthlyTotal = 4
	seedMissed(store, "mixed", 3, attendance.StatusAbsent)
	store.addRecord("mixed", "2024-01-15", attendance.StatusExcused)

	_, err := newCheckAbsence(store, cfg, &recordingNotifier{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, demotion.TriggerUnexcused, store.alerts["demotion_both_202401"].Trigger)
	assert.Equal(t, demotion.TriggerExcused, store.alerts["demotion_excused_202401"].Trigger)
	assert.Equal(t, demotion.TriggerTotalCap, store.alerts["demotion_mixed_202401"].Trigger)
}

func TestCheckAbsence_SuggestsPairedReserve(t *testing.T) {
	store := newMemStore()
	store.addStudent("a", student.RosterMain, "main-1")
	seedMissed(store, "a", 4, attendance.StatusAbsent)
	cfg := rules.Defaults()
	cfg.HalaqaPairings = map[string]string{"main-1": "reserve-1"}

	_, err := newCheckAbsence(store, cfg, &recordingNotifier{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reserve-1", store.alerts["demotion_a_202401"].TargetReserveID)
}

func TestCheckAbsence_IgnoresOtherMonthsAndRosters(t *testing.T) {
	store := newMemStore()
	store.addStudent("main", student.RosterMain, "g1")
	store.addStudent("reserve", student.RosterReserve, "g1r")
	for i := 0; i < 6; i++ {
		store.addRecord("main", fmt.Sprintf("2023-12-%02d", 20+i), attendance.StatusAbsent)
	}
	seedMissed(store, "reserve", 6, attendance.StatusAbsent)

	res, err := newCheckAbsence(store, rules.Defaults(), &recordingNotifier{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, store.alerts)
}

func TestCheckAbsence_Disabled(t *testing.T) {
	cfg := rules.Defaults()
	cfg.Demotion.Enabled = false

	res, err := newCheckAbsence(newMemStore(), cfg, &recordingNotifier{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeSkipped, res.Outcome)
	assert.Equal(t, scheduler.ReasonDisabled, res.Reason)
}
