// Package demotion содержит оценку ежемесячных пропусков и предупреждения
// о переводе в резерв (DemotionAlert).
//
// Движок только создаёт и обновляет предупреждения. Статус executed и сам
// перевод выставляет внешний исполнитель.
package demotion

import (
	"fmt"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/attendance"
	"github.com/darb-academy/lifecycle-worker/internal/domain/rules"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGERS
// ══════════════════════════════════════════════════════════════════════════════

// Trigger - правило, сработавшее для ученика.
type Trigger string

const (
	TriggerUnexcused Trigger = "unexcused"
	TriggerExcused   Trigger = "excused"
	TriggerTotalCap  Trigger = "total_cap"
)

// Violation - результат оценки пропусков одного ученика.
type Violation struct {
	Trigger Trigger
	Reason  string
	Counts  attendance.MonthlyCounts
	Limit   int
}

// Evaluate проверяет правила в фиксированном порядке:
// без уважительной причины, затем с причиной, затем общий лимит.
// Срабатывает только первое подходящее правило.
func Evaluate(counts attendance.MonthlyCounts, d rules.Demotion) (Violation, bool) {
	v := Violation{Counts: counts}
	total := counts.Total()

	switch {
	case counts.Absent >= d.MaxMonthlyUnexcused:
		v.Trigger = TriggerUnexcused
		v.Limit = d.MaxMonthlyUnexcused
		v.Reason = fmt.Sprintf("تجاوز حد الغياب الشهري (%d/%d)", counts.Absent, d.MaxMonthlyUnexcused)
	case counts.Excused >= d.MaxMonthlyExcused:
		v.Trigger = TriggerExcused
		v.Limit = d.MaxMonthlyExcused
		v.Reason = fmt.Sprintf("تجاوز حد الأعذار الشهري (%d/%d)", counts.Excused, d.MaxMonthlyExcused)
	case total >= d.MaxMonthlyTotal:
		v.Trigger = TriggerTotalCap
		v.Limit = d.MaxMonthlyTotal
		v.Reason = fmt.Sprintf("تجاوز الحد الكلي للغياب (%d/%d)", total, d.MaxMonthlyTotal)
	default:
		return Violation{}, false
	}

	return v, true
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT
// ══════════════════════════════════════════════════════════════════════════════

// Status - этап обработки предупреждения.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
)

// Stats - числа, вызвавшие предупреждение.
type Stats struct {
	Absent  int `json:"absent"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

// Alert - предупреждение о переводе в резерв.
type Alert struct {
	// ID - demotion_{studentId}_{YYYYMM}, детерминирован.
	ID              string
	StudentID       string
	StudentName     string
	GroupID         string
	GroupName       string
	Reason          string
	Trigger         Trigger
	Stats           Stats
	TargetReserveID string
	Status          Status
	// Month - YYYYMM.
	Month     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AlertID возвращает ключ предупреждения для ученика и месяца (YYYYMM).
func AlertID(studentID, month string) string {
	return "demotion_" + studentID + "_" + month
}

// NewAlert строит предупреждение для ученика.
// Целевая резервная халака берётся из HalaqaPairings.
func NewAlert(s *student.Student, v Violation, cfg rules.Config, month string, at time.Time) *Alert {
	return &Alert{
		ID:          AlertID(s.ID, month),
		StudentID:   s.ID,
		StudentName: s.DisplayName(),
		GroupID:     s.GroupID,
		GroupName:   s.GroupName,
		Reason:      v.Reason,
		Trigger:     v.Trigger,
		Stats: Stats{
			Absent:  v.Counts.Absent,
			Excused: v.Counts.Excused,
			Total:   v.Counts.Total(),
		},
		TargetReserveID: cfg.ReserveFor(s.GroupID),
		Status:          StatusPending,
		Month:           month,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

// IsPending возвращает true, пока исполнитель не обработал предупреждение.
func (a *Alert) IsPending() bool {
	return a.Status == StatusPending
}
