package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

func TestPromote(t *testing.T) {
	at := time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC)
	s := &Student{ID: "s1", Type: RosterReserve, Status: StatusActive, GroupID: "r1", GroupName: "Reserve"}

	p, err := s.Promote("m1", "Main", at)
	require.NoError(t, err)

	assert.Equal(t, Promotion{StudentID: "s1", FromGroupID: "r1", ToGroupID: "m1", ToGroupName: "Main", PromotedAt: at}, p)
	assert.Equal(t, RosterMain, s.Type)
	assert.Equal(t, "m1", s.GroupID)
	assert.Equal(t, "Main", s.GroupName)
	require.NotNil(t, s.PromotedAt)
	assert.Equal(t, at, *s.PromotedAt)
}

func TestPromote_Rejected(t *testing.T) {
	current := &Student{ID: "s1", Type: RosterMain, GroupID: "m1"}
	_, err := current.Promote("m2", "Other", time.Now())
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.Equal(t, "m1", current.GroupID)

	reserve := &Student{ID: "s2", Type: RosterReserve, GroupID: "r1"}
	_, err = reserve.Promote("", "", time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Equal(t, RosterReserve, reserve.Type)
}

func TestListFilter(t *testing.T) {
	active := &Student{Type: RosterReserve, Status: StatusActive}
	inactive := &Student{Type: RosterMain, Status: StatusInactive}

	assert.True(t, ActiveOf(RosterMain, RosterReserve).Matches(active))
	assert.False(t, ActiveOf(RosterMain).Matches(active))
	assert.False(t, ActiveOf(RosterMain).Matches(inactive))
	assert.True(t, ListFilter{}.Matches(inactive))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Student{ID: "s", Type: RosterMain, Status: StatusActive}).Validate())
	assert.ErrorIs(t, (&Student{ID: "s", Type: "vip", Status: StatusActive}).Validate(), shared.ErrInvalidInput)
	assert.ErrorIs(t, (&Student{Type: RosterMain, Status: StatusActive}).Validate(), shared.ErrInvalidInput)
}
