package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
)

func TestDecode_EmptyDocumentYieldsDefaults(t *testing.T) {
	for _, doc := range []string{"", "{}", `{"demotion":null}`} {
		cfg, err := Decode([]byte(doc))
		require.NoError(t, err, doc)
		assert.Equal(t, Defaults(), cfg, doc)
	}
}

func TestDecode_PartialDocumentKeepsOtherDefaults(t *testing.T) {
	cfg, err := Decode([]byte(`{
		"autoAbsent": {"enabled": false},
		"demotion": {"maxMonthlyExcused": 3},
		"promotion": {"targetGroupId": "main-1"},
		"halaqaPairings": {"main-1": "reserve-1"}
	}`))
	require.NoError(t, err)

	assert.False(t, cfg.AutoAbsent.Enabled)
	assert.Equal(t, DefaultDays, cfg.AutoAbsent.Days)
	assert.True(t, cfg.AutoAbsent.IncludeReserve)

	assert.True(t, cfg.Demotion.Enabled)
	assert.Equal(t, DefaultMaxMonthlyUnexcused, cfg.Demotion.MaxMonthlyUnexcused)
	assert.Equal(t, 3, cfg.Demotion.MaxMonthlyExcused)
	assert.Equal(t, DefaultMaxMonthlyTotal, cfg.Demotion.MaxMonthlyTotal)

	assert.Equal(t, DefaultMinAttendance, cfg.Promotion.MinAttendance)
	assert.Equal(t, "main-1", cfg.Promotion.TargetGroupID)
	assert.Equal(t, "reserve-1", cfg.ReserveFor("main-1"))
}

func TestDecode_ExplicitZeroIsKept(t *testing.T) {
	cfg, err := Decode([]byte(`{"autoAbsent": {"days": []}, "demotion": {"maxMonthlyTotal": 0}}`))
	require.NoError(t, err)
	assert.Empty(t, cfg.AutoAbsent.Days)
	assert.Zero(t, cfg.Demotion.MaxMonthlyTotal)
}

func TestDecode_Malformed(t *testing.T) {
	cfg, err := Decode([]byte(`{"demotion": "yes"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Equal(t, Defaults(), cfg)
}

func TestDefaults_AreIndependentCopies(t *testing.T) {
	a := Defaults()
	a.AutoAbsent.Days[0] = 5
	assert.Equal(t, 6, Defaults().AutoAbsent.Days[0])
}

func TestIsRequiredDay(t *testing.T) {
	a := Defaults().AutoAbsent
	assert.True(t, a.IsRequiredDay(6))
	assert.True(t, a.IsRequiredDay(1))
	assert.True(t, a.IsRequiredDay(3))
	assert.False(t, a.IsRequiredDay(0))
	assert.False(t, a.IsRequiredDay(5))
}

func TestPromotionTarget(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.HasPromotionTarget())

	cfg.HalaqaPairings = map[string]string{
		"main-b": "reserve-1",
		"main-a": "reserve-1",
		"main-c": "reserve-2",
	}
	assert.True(t, cfg.HasPromotionTarget())
	assert.Equal(t, "main-a", cfg.PromotionTargetFor("reserve-1"))
	assert.Equal(t, "main-c", cfg.PromotionTargetFor("reserve-2"))
	assert.Empty(t, cfg.PromotionTargetFor("reserve-3"))
	assert.Empty(t, cfg.MainFor(""))

	cfg.Promotion.TargetGroupID = "main-z"
	assert.Equal(t, "main-z", cfg.PromotionTargetFor("reserve-3"))
}
