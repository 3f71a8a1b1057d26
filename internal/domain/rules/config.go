// Package rules содержит типизированный документ правил академии
// (app_settings/rules) и его значения по умолчанию.
//
// Значения по умолчанию применяются только на границе десериализации (Decode);
// бизнес-логика работает с уже заполненной структурой Config.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config - документ правил.
type Config struct {
	AutoAbsent AutoAbsent `json:"autoAbsent"`
	Demotion   Demotion   `json:"demotion"`
	Promotion  Promotion  `json:"promotion"`

	// HalaqaPairings - основная халака -> парная резервная халака.
	HalaqaPairings map[string]string `json:"halaqaPairings"`
}

// AutoAbsent - автоматическая отметка отсутствующих.
type AutoAbsent struct {
	Enabled bool `json:"enabled"`

	// Days - обязательные дни недели, 0 = воскресенье.
	Days []int `json:"days"`

	// IncludeReserve - отмечать также учеников резерва.
	IncludeReserve bool `json:"includeReserve"`
}

// Demotion - пороги ежемесячных пропусков.
type Demotion struct {
	Enabled             bool `json:"enabled"`
	MaxMonthlyUnexcused int  `json:"maxMonthlyUnexcused"`
	MaxMonthlyExcused   int  `json:"maxMonthlyExcused"`
	MaxMonthlyTotal     int  `json:"maxMonthlyTotal"`
}

// Promotion - критерии перевода из резерва.
type Promotion struct {
	Enabled         bool `json:"enabled"`
	MinAttendance   int  `json:"minAttendance"`
	MinSessionScore int  `json:"minSessionScore"`

	// TargetGroupID - явная целевая халака. Пусто - берётся по HalaqaPairings.
	TargetGroupID string `json:"targetGroupId"`
}

// Значения по умолчанию.
const (
	DefaultMaxMonthlyUnexcused = 4
	DefaultMaxMonthlyExcused   = 2
	DefaultMaxMonthlyTotal     = 6
	DefaultMinAttendance       = 12
	DefaultMinSessionScore     = 12
)

// DefaultDays - суббота, понедельник, среда.
var DefaultDays = []int{6, 1, 3}

// Defaults возвращает правила, действующие при отсутствии документа.
func Defaults() Config {
	days := make([]int, len(DefaultDays))
	copy(days, DefaultDays)

	return Config{
		AutoAbsent: AutoAbsent{
			Enabled:        true,
			Days:           days,
			IncludeReserve: true,
		},
		Demotion: Demotion{
			Enabled:             true,
			MaxMonthlyUnexcused: DefaultMaxMonthlyUnexcused,
			MaxMonthlyExcused:   DefaultMaxMonthlyExcused,
			MaxMonthlyTotal:     DefaultMaxMonthlyTotal,
		},
		Promotion: Promotion{
			Enabled:         true,
			MinAttendance:   DefaultMinAttendance,
			MinSessionScore: DefaultMinSessionScore,
		},
		HalaqaPairings: map[string]string{},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

// rawConfig повторяет документ с указателями, чтобы отличать
// отсутствующий ключ от нулевого значения.
type rawConfig struct {
	AutoAbsent *struct {
		Enabled        *bool `json:"enabled"`
		Days           []int `json:"days"`
		IncludeReserve *bool `json:"includeReserve"`
	} `json:"autoAbsent"`
	Demotion *struct {
		Enabled             *bool `json:"enabled"`
		MaxMonthlyUnexcused *int  `json:"maxMonthlyUnexcused"`
		MaxMonthlyExcused   *int  `json:"maxMonthlyExcused"`
		MaxMonthlyTotal     *int  `json:"maxMonthlyTotal"`
	} `json:"demotion"`
	Promotion *struct {
		Enabled         *bool   `json:"enabled"`
		MinAttendance   *int    `json:"minAttendance"`
		MinSessionScore *int    `json:"minSessionScore"`
		TargetGroupID   *string `json:"targetGroupId"`
	} `json:"promotion"`
	HalaqaPairings map[string]string `json:"halaqaPairings"`
}

// Decode разбирает документ правил, подставляя значения по умолчанию
// для отсутствующих или null ключей. Пустой документ даёт Defaults().
func Decode(data []byte) (Config, error) {
	cfg := Defaults()
	if len(data) == 0 {
		return cfg, nil
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("%w: rules document: %v", shared.ErrInvalidInput, err)
	}

	if a := raw.AutoAbsent; a != nil {
		setBool(&cfg.AutoAbsent.Enabled, a.Enabled)
		setBool(&cfg.AutoAbsent.IncludeReserve, a.IncludeReserve)
		if a.Days != nil {
			cfg.AutoAbsent.Days = a.Days
		}
	}
	if d := raw.Demotion; d != nil {
		setBool(&cfg.Demotion.Enabled, d.Enabled)
		setInt(&cfg.Demotion.MaxMonthlyUnexcused, d.MaxMonthlyUnexcused)
		setInt(&cfg.Demotion.MaxMonthlyExcused, d.MaxMonthlyExcused)
		setInt(&cfg.Demotion.MaxMonthlyTotal, d.MaxMonthlyTotal)
	}
	if p := raw.Promotion; p != nil {
		setBool(&cfg.Promotion.Enabled, p.Enabled)
		setInt(&cfg.Promotion.MinAttendance, p.MinAttendance)
		setInt(&cfg.Promotion.MinSessionScore, p.MinSessionScore)
		if p.TargetGroupID != nil {
			cfg.Promotion.TargetGroupID = *p.TargetGroupID
		}
	}
	if raw.HalaqaPairings != nil {
		cfg.HalaqaPairings = raw.HalaqaPairings
	}

	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// IsRequiredDay проверяет, входит ли день недели (0 = воскресенье) в обязательные.
func (a AutoAbsent) IsRequiredDay(weekday int) bool {
	for _, d := range a.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// ReserveFor возвращает резервную халаку, парную основной.
func (c Config) ReserveFor(mainGroupID string) string {
	return c.HalaqaPairings[mainGroupID]
}

// MainFor возвращает основную халаку, парную резервной.
// При нескольких совпадениях выбирается наименьший ID, чтобы результат
// не зависел от порядка обхода map.
func (c Config) MainFor(reserveGroupID string) string {
	if reserveGroupID == "" {
		return ""
	}
	var candidates []string
	for mainID, reserveID := range c.HalaqaPairings {
		if reserveID == reserveGroupID {
			candidates = append(candidates, mainID)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

// PromotionTargetFor возвращает целевую халаку для ученика резервной халаки.
func (c Config) PromotionTargetFor(reserveGroupID string) string {
	if c.Promotion.TargetGroupID != "" {
		return c.Promotion.TargetGroupID
	}
	return c.MainFor(reserveGroupID)
}

// HasPromotionTarget - задана ли хоть какая-то цель перевода.
func (c Config) HasPromotionTarget() bool {
	return c.Promotion.TargetGroupID != "" || len(c.HalaqaPairings) > 0
}
