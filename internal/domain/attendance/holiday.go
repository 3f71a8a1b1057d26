package attendance

import "github.com/darb-academy/lifecycle-worker/internal/domain/shared"

// ══════════════════════════════════════════════════════════════════════════════
// HOLIDAYS
// ══════════════════════════════════════════════════════════════════════════════

// HolidayPeriod - каникулы: глобальные (GroupID пуст) или для одной халаки.
// Границы From и To включительны и заданы ключами YYYY-MM-DD.
type HolidayPeriod struct {
	ID      string
	GroupID string
	From    string
	To      string
	Name    string
}

// IsGlobal возвращает true для каникул всей академии.
func (h HolidayPeriod) IsGlobal() bool {
	return h.GroupID == ""
}

// Covers проверяет, попадает ли день в период.
// Сравнение лексикографическое, поэтому ключи должны быть YYYY-MM-DD.
func (h HolidayPeriod) Covers(date string) bool {
	return date >= h.From && date <= h.To
}

// Validate проверяет, что период не перевёрнут.
func (h HolidayPeriod) Validate() error {
	if h.From == "" || h.To == "" || h.From > h.To {
		return shared.ErrInvalidHolidayRange
	}
	return nil
}

// HolidayCalendar отвечает на вопрос "является ли день выходным".
type HolidayCalendar struct {
	periods []HolidayPeriod
}

// NewHolidayCalendar создаёт календарь. Периоды могут пересекаться.
func NewHolidayCalendar(periods []HolidayPeriod) *HolidayCalendar {
	return &HolidayCalendar{periods: periods}
}

// IsGlobalHoliday - день покрыт глобальными каникулами.
func (c *HolidayCalendar) IsGlobalHoliday(date string) bool {
	for _, p := range c.periods {
		if p.IsGlobal() && p.Covers(date) {
			return true
		}
	}
	return false
}

// IsGroupHoliday - день покрыт каникулами именно этой халаки.
func (c *HolidayCalendar) IsGroupHoliday(date, groupID string) bool {
	if groupID == "" {
		return false
	}
	for _, p := range c.periods {
		if p.GroupID == groupID && p.Covers(date) {
			return true
		}
	}
	return false
}

// IsHoliday - день выходной для ученика халаки groupID:
// глобальные каникулы или каникулы его халаки.
func (c *HolidayCalendar) IsHoliday(date, groupID string) bool {
	return c.IsGlobalHoliday(date) || c.IsGroupHoliday(date, groupID)
}
