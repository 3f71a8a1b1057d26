package student

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ListFilter ограничивает выборку учеников.
type ListFilter struct {
	// Status - если задан, только ученики с этим статусом.
	Status Status

	// Types - если не пуст, только указанные составы.
	Types []RosterType
}

// ActiveOf возвращает фильтр активных учеников указанных составов.
func ActiveOf(types ...RosterType) ListFilter {
	return ListFilter{Status: StatusActive, Types: types}
}

// Matches проверяет ученика на соответствие фильтру.
func (f ListFilter) Matches(s *Student) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if s.Type == t {
			return true
		}
	}
	return false
}

// Repository определяет операции с учениками, нужные движку.
type Repository interface {
	// List возвращает учеников, подходящих под фильтр.
	List(ctx context.Context, filter ListFilter) ([]*Student, error)

	// PromoteBatch применяет переводы пачками по chunkSize,
	// каждая пачка в отдельной транзакции. Возвращает только переводы,
	// изменившие запись, включая пачки, зафиксированные до ошибки.
	PromoteBatch(ctx context.Context, promotions []Promotion, chunkSize int) ([]Promotion, error)
}
