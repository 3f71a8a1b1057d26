package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
)

const reportDay = "2024-01-06"

func newAgentReport(store *memStore, sender ReportSender, configured bool) *AgentReportJob {
	return NewAgentReportJob(store, sender, logger.Discard(), AgentReportConfig{
		Configured: configured,
		ChatID:     "-100123",
	}).WithClock(fixedClock(2024, time.January, 6, 20, 0))
}

func TestBuildAbsenceReport(t *testing.T) {
	got := BuildAbsenceReport(reportDay, []*attendance.Record{
		{StudentName: "أحمد", GroupName: "حلقة الفجر"},
		{StudentName: "يوسف"},
	})

	want := "🚨 **تقرير الغياب اليومي** 🚨\n" +
		"📅 التاريخ: 2024-01-06\n\n" +
		"الطلاب المتغيبون:\n" +
		"1. **أحمد** (حلقة الفجر)\n" +
		"2. **يوسف** (بدون حلقة)\n" +
		"\n⚠️ إجمالي الغياب: 2 طالب"
	assert.Equal(t, want, got)
}

func TestAgentReport_SendsAbsentOnly(t *testing.T) {
	store := newMemStore()
	store.attendance = []*attendance.Record{
		{StudentID: "a", StudentName: "A", GroupName: "G", Date: reportDay, Status: attendance.StatusAbsent},
		{StudentID: "b", StudentName: "B", GroupName: "G", Date: reportDay, Status: attendance.StatusPresent},
		{StudentID: "c", StudentName: "C", GroupName: "G", Date: "2024-01-05", Status: attendance.StatusAbsent},
	}
	sender := &stubReportSender{}

	res, err := newAgentReport(store, sender, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, scheduler.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "-100123", sender.chatID)
	assert.Contains(t, sender.text, "1. **A** (G)")
	assert.NotContains(t, sender.text, "**B**")
}

func TestAgentReport_NoAbsences(t *testing.T) {
	sender := &stubReportSender{}

	res, err := newAgentReport(newMemStore(), sender, true).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, scheduler.OutcomeSuccess, res.Outcome)
	assert.Equal(t, scheduler.ReasonNoAbsences, res.Reason)
	assert.Equal(t, NoAbsencesMessage, res.Message)
	assert.Zero(t, sender.calls)
}

func TestAgentReport_NotConfigured(t *testing.T) {
	res, err := newAgentReport(newMemStore(), &stubReportSender{}, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeSkipped, res.Outcome)
	assert.Equal(t, scheduler.ReasonTelegramNotConfigured, res.Reason)
}

func TestAgentReport_SendFailureDoesNotFailJob(t *testing.T) {
	store := newMemStore()
	store.addRecord("a", reportDay, attendance.StatusAbsent)
	sender := &stubReportSender{err: errors.New("telegram down")}

	res, err := newAgentReport(store, sender, true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, sender.calls)
}
