package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/external/telegram"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/scheduler"
	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGENT REPORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// NoAbsencesMessage is returned when nobody was absent today.
const NoAbsencesMessage = "لا يوجد غياب اليوم ✅"

// ReportSender posts a Markdown message to a chat.
type ReportSender interface {
	SendMarkdown(ctx context.Context, chatID, text string) (*telegram.SentMessage, error)
}

// AgentReportConfig contains configuration for the agent report job.
type AgentReportConfig struct {
	// Configured is false when the bot token is missing.
	Configured bool
	ChatID     string
	Timeout    time.Duration
}

// AgentReportJob sends the administrators today's absence list.
type AgentReportJob struct {
	attendance attendance.Repository
	sender     ReportSender
	logger     *slog.Logger
	config     AgentReportConfig
	now        Clock
}

// NewAgentReportJob creates a new agent report job.
func NewAgentReportJob(
	attendanceRepo attendance.Repository,
	sender ReportSender,
	logger *slog.Logger,
	config AgentReportConfig,
) *AgentReportJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}

	return &AgentReportJob{
		attendance: attendanceRepo,
		sender:     sender,
		logger:     logger.With("job", NameAgentReport),
		config:     config,
		now:        time.Now,
	}
}

// WithClock replaces the job's clock. Used by tests.
func (j *AgentReportJob) WithClock(now Clock) *AgentReportJob {
	j.now = now
	return j
}

// Name returns the job name.
func (j *AgentReportJob) Name() string { return NameAgentReport }

// Description returns a human-readable description.
func (j *AgentReportJob) Description() string {
	return "Sends today's absence list to the administrators' Telegram chat"
}

// Run executes the job.
func (j *AgentReportJob) Run(ctx context.Context) (scheduler.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	date := timeutil.DateKey(referenceDay(ctx, j.now))

	if !j.config.Configured || j.sender == nil || j.config.ChatID == "" {
		return scheduler.Skipped(scheduler.ReasonTelegramNotConfigured, date), nil
	}

	absent, err := j.attendance.ListByDateAndStatus(ctx, date, attendance.StatusAbsent)
	if err != nil {
		return scheduler.Result{}, shared.Persistence("ListAbsent", err)
	}

	if len(absent) == 0 {
		res := scheduler.Success(0, date)
		res.Reason = scheduler.ReasonNoAbsences
		res.Message = NoAbsencesMessage
		return res, nil
	}

	report := BuildAbsenceReport(date, absent)
	if _, err := j.sender.SendMarkdown(ctx, j.config.ChatID, report); err != nil {
		// the report is best-effort; the absences are already stored
		j.logger.Error("failed to send absence report", "date", date, "absent", len(absent), "error", err)
	} else {
		j.logger.Info("absence report sent", "date", date, "absent", len(absent))
	}

	return scheduler.Success(len(absent), date), nil
}

// BuildAbsenceReport renders the Markdown report for date.
func BuildAbsenceReport(date string, absent []*attendance.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 **تقرير الغياب اليومي** 🚨\n📅 التاريخ: %s\n\nالطلاب المتغيبون:\n", date)
	for i, r := range absent {
		fmt.Fprintf(&b, "%d. **%s** (%s)\n", i+1, r.StudentName, groupLabel(r))
	}
	fmt.Fprintf(&b, "\n⚠️ إجمالي الغياب: %d طالب", len(absent))
	return b.String()
}

func groupLabel(r *attendance.Record) string {
	if r.GroupName != "" {
		return r.GroupName
	}
	return "بدون حلقة"
}
