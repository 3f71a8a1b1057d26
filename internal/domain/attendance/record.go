// Package attendance содержит записи посещаемости и календарь каникул.
//
// Инвариант: на одного ученика и один день приходится не более одной записи,
// независимо от её статуса. Ключ дня - строка YYYY-MM-DD в часовом поясе академии.
package attendance

import (
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/internal/domain/student"
)

// Status - статус посещения.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
	// StatusSard - сдача сарда (зачёт по заучиванию), считается посещением.
	StatusSard Status = "sard"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusExcused, StatusSard:
		return true
	default:
		return false
	}
}

// CountsAsAttendance возвращает true для статусов, засчитываемых как присутствие.
func (s Status) CountsAsAttendance() bool {
	return s == StatusPresent || s == StatusSard
}

// IsMissed возвращает true для пропусков (с уважительной причиной или без).
func (s Status) IsMissed() bool {
	return s == StatusAbsent || s == StatusExcused
}

// SystemActor - маркер записей, созданных автоматически.
const SystemActor = "system_auto"

// Record - запись посещаемости.
type Record struct {
	ID          string
	StudentID   string
	StudentName string
	GroupID     string
	GroupName   string
	Status      Status
	// Date - ключ дня YYYY-MM-DD.
	Date       string
	RecordedBy string
	CreatedAt  time.Time
}

// Validate проверяет инварианты записи.
func (r *Record) Validate() error {
	if r.StudentID == "" {
		return shared.NewDomainError("attendance", "Validate", shared.ErrInvalidInput, "student id is required")
	}
	if !r.Status.IsValid() {
		return shared.ErrInvalidAttendanceStatus
	}
	if len(r.Date) != len("2006-01-02") {
		return shared.NewDomainError("attendance", "Validate", shared.ErrInvalidDate, "date must be YYYY-MM-DD")
	}
	return nil
}

// IsSystem возвращает true для записей, созданных движком.
func (r *Record) IsSystem() bool {
	return r.RecordedBy == SystemActor
}

// NewAbsence создаёт автоматическую запись об отсутствии.
// Пустые имя и халака заменяются значениями по умолчанию.
func NewAbsence(id string, s *student.Student, date string, at time.Time) *Record {
	return &Record{
		ID:          id,
		StudentID:   s.ID,
		StudentName: s.DisplayName(),
		GroupID:     s.GroupIDOrDefault(),
		GroupName:   s.GroupNameOrDefault(),
		Status:      StatusAbsent,
		Date:        date,
		RecordedBy:  SystemActor,
		CreatedAt:   at,
	}
}

// Coverage - множество учеников, у которых уже есть запись на день.
type Coverage map[string]struct{}

// NewCoverage строит множество по существующим записям.
func NewCoverage(records []*Record) Coverage {
	c := make(Coverage, len(records))
	for _, r := range records {
		c[r.StudentID] = struct{}{}
	}
	return c
}

// Has проверяет, покрыт ли ученик.
func (c Coverage) Has(studentID string) bool {
	_, ok := c[studentID]
	return ok
}

// MonthlyCounts - пропуски ученика за окно.
type MonthlyCounts struct {
	Absent  int `json:"absent"`
	Excused int `json:"excused"`
}

// Total возвращает сумму пропусков.
func (m MonthlyCounts) Total() int {
	return m.Absent + m.Excused
}

// FoldMissed сворачивает записи в счётчики пропусков по ученикам.
// Записи с другими статусами игнорируются.
func FoldMissed(records []*Record) map[string]MonthlyCounts {
	out := make(map[string]MonthlyCounts)
	for _, r := range records {
		c := out[r.StudentID]
		switch r.Status {
		case StatusAbsent:
			c.Absent++
		case StatusExcused:
			c.Excused++
		default:
			continue
		}
		out[r.StudentID] = c
	}
	return out
}

// CountAttended считает записи, засчитываемые как присутствие.
func CountAttended(records []*Record) int {
	n := 0
	for _, r := range records {
		if r.Status.CountsAsAttendance() {
			n++
		}
	}
	return n
}
