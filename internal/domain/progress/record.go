// Package progress содержит оценки занятий, используемые при переводе
// из резерва в основной состав.
package progress

import (
	"context"

	"github.com/darb-academy/lifecycle-worker/pkg/timeutil"
)

// Record - оценки одного занятия ученика.
type Record struct {
	ID         string
	StudentID  string
	Date       string
	Lesson     float64
	Revision   float64
	Recitation float64
	Homework   float64
}

// SessionTotal - суммарная оценка занятия.
func (r *Record) SessionTotal() float64 {
	return r.Lesson + r.Revision + r.Recitation + r.Homework
}

// AllSessionsAtLeast проверяет, что каждое занятие набрало не меньше min.
// Для пустого списка возвращает false: без оценок перевод невозможен.
func AllSessionsAtLeast(records []*Record, min float64) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if r.SessionTotal() < min {
			return false
		}
	}
	return true
}

// Repository - хранилище оценок.
type Repository interface {
	// ListForStudent возвращает оценки ученика в окне.
	ListForStudent(ctx context.Context, studentID string, window timeutil.Window) ([]*Record, error)
}
