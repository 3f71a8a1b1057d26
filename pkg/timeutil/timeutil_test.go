package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYesterday_UsesAcademyCalendar(t *testing.T) {
	// 22:30 UTC on Jan 1 is already Jan 2 in Cairo.
	now := time.Date(2024, time.January, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01", DateKey(Yesterday(now)))
	assert.Equal(t, "2024-01-02", DateKey(now))
}

func TestYesterday_CrossesYear(t *testing.T) {
	assert.Equal(t, "2023-12-31", DateKey(Yesterday(Date(2024, time.January, 1))))
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		mtd  Window
		prev Window
	}{
		{
			name: "mid month",
			at:   Date(2024, time.March, 15),
			mtd:  Window{From: "2024-03-01", To: "2024-03-15"},
			prev: Window{From: "2024-02-01", To: "2024-02-29"},
		},
		{
			name: "first of january",
			at:   Date(2024, time.January, 1),
			mtd:  Window{From: "2024-01-01", To: "2024-01-01"},
			prev: Window{From: "2023-12-01", To: "2023-12-31"},
		},
		{
			name: "end of month",
			at:   Date(2023, time.April, 30),
			mtd:  Window{From: "2023-04-01", To: "2023-04-30"},
			prev: Window{From: "2023-03-01", To: "2023-03-31"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.mtd, MonthToDate(tt.at))
			assert.Equal(t, tt.prev, PreviousMonth(tt.at))
		})
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{From: "2024-01-01", To: "2024-01-31"}
	assert.True(t, w.Contains("2024-01-01"))
	assert.True(t, w.Contains("2024-01-31"))
	assert.False(t, w.Contains("2024-02-01"))
	assert.False(t, w.Contains("2023-12-31"))
	assert.Equal(t, "2024-01-01..2024-01-31", w.String())
}

func TestKeys(t *testing.T) {
	d, err := ParseDateKey("2024-02-09")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-09", DateKey(d))
	assert.Equal(t, "202402", MonthKey(d))
	assert.Equal(t, 5, WeekdayIndex(d))

	_, err = ParseDateKey("09/02/2024")
	assert.Error(t, err)
}
