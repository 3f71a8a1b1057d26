package student

import (
	"strings"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// RosterType определяет состав, в котором числится ученик.
type RosterType string

const (
	// RosterMain - основной состав.
	RosterMain RosterType = "main"
	// RosterReserve - резервный (испытательный) состав.
	RosterReserve RosterType = "reserve"
)

// IsValid проверяет, что тип состава корректен.
func (r RosterType) IsValid() bool {
	return r == RosterMain || r == RosterReserve
}

// Status определяет текущий статус ученика.
type Status string

const (
	// StatusActive - ученик посещает занятия.
	StatusActive Status = "active"
	// StatusInactive - ученик отключён администрацией.
	StatusInactive Status = "inactive"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Значения по умолчанию для записей, у которых не заполнены поля.
const (
	UnknownName      = "Unknown"
	UnknownGroupID   = "unknown"
	UnknownGroupName = "بدون حلقة"
)

// Student - ученик академии.
type Student struct {
	// ID - идентификатор ученика.
	ID string

	// FullName - полное имя.
	FullName string

	// Type - состав (main/reserve).
	Type RosterType

	// Status - active/inactive.
	Status Status

	// GroupID и GroupName - халака (группа), к которой прикреплён ученик.
	GroupID   string
	GroupName string

	// UserID - учётная запись, к которой привязаны push-токены.
	UserID string

	PromotedAt *time.Time
	DemotedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет инварианты сущности.
func (s *Student) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return shared.NewDomainError("student", "Validate", shared.ErrInvalidInput, "id is required")
	}
	if !s.Type.IsValid() {
		return shared.ErrInvalidRosterType
	}
	if !s.Status.IsValid() {
		return shared.ErrInvalidStudentStatus
	}
	return nil
}

// IsActive возвращает true для активных учеников.
func (s *Student) IsActive() bool {
	return s.Status == StatusActive
}

// IsMain возвращает true для учеников основного состава.
func (s *Student) IsMain() bool {
	return s.Type == RosterMain
}

// IsReserve возвращает true для учеников резерва.
func (s *Student) IsReserve() bool {
	return s.Type == RosterReserve
}

// DisplayName возвращает имя или "Unknown".
func (s *Student) DisplayName() string {
	if strings.TrimSpace(s.FullName) == "" {
		return UnknownName
	}
	return s.FullName
}

// GroupIDOrDefault возвращает идентификатор халаки или "unknown".
func (s *Student) GroupIDOrDefault() string {
	if s.GroupID == "" {
		return UnknownGroupID
	}
	return s.GroupID
}

// GroupNameOrDefault возвращает название халаки или "بدون حلقة".
func (s *Student) GroupNameOrDefault() string {
	if s.GroupName == "" {
		return UnknownGroupName
	}
	return s.GroupName
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Promotion - атомарное изменение состава и халаки одного ученика.
type Promotion struct {
	StudentID   string
	FromGroupID string
	ToGroupID   string
	ToGroupName string
	PromotedAt  time.Time
}

// Promote переводит ученика из резерва в основной состав целевой халаки.
// Тип и поля халаки меняются вместе; частичное состояние невозможно.
func (s *Student) Promote(groupID, groupName string, at time.Time) (Promotion, error) {
	if !s.IsReserve() {
		return Promotion{}, shared.ErrStudentNotReserve
	}
	if groupID == "" {
		return Promotion{}, shared.NewDomainError("student", "Promote", shared.ErrInvalidInput, "target group is required")
	}

	p := Promotion{
		StudentID:   s.ID,
		FromGroupID: s.GroupID,
		ToGroupID:   groupID,
		ToGroupName: groupName,
		PromotedAt:  at,
	}

	s.Type = RosterMain
	s.GroupID = groupID
	s.GroupName = groupName
	s.PromotedAt = &at
	s.UpdatedAt = at

	return p, nil
}

// Demote переводит ученика в резерв. Используется внешним исполнителем.
func (s *Student) Demote(reserveGroupID string, at time.Time) error {
	if !s.IsMain() {
		return shared.NewDomainError("student", "Demote", shared.ErrStateTransition, "only main students can be demoted")
	}
	s.Type = RosterReserve
	s.Status = StatusInactive
	if reserveGroupID != "" {
		s.GroupID = reserveGroupID
	}
	s.DemotedAt = &at
	s.UpdatedAt = at
	return nil
}
