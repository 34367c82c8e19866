package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d Day) *Day { return &d }

func TestDayOf(t *testing.T) {
	assert.Equal(t, Day(0), DayOf(time.Date(1970, 1, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, Day(19723), DayOf(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	// local calendar date, not the UTC one
	loc := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, Day(19723), DayOf(time.Date(2024, 1, 1, 1, 0, 0, 0, loc)))

	d := DayOf(time.Date(2024, 3, 5, 13, 0, 0, 0, time.Local))
	assert.Equal(t, "2024-03-05", d.Format("2006-01-02"))
}

func TestMinuteOfDay(t *testing.T) {
	assert.Equal(t, 0, MinuteOfDay(time.Date(2024, 1, 1, 0, 0, 59, 0, time.UTC)))
	assert.Equal(t, 13*60+37, MinuteOfDay(time.Date(2024, 1, 1, 13, 37, 0, 0, time.UTC)))
}

func TestRecalculatePeriod_FromEvents(t *testing.T) {
	s := &Schedule{Title: "cycle"}
	for i := 0; i < 4; i++ {
		s.Events = append(s.Events, &Event{ID: i, Day: i, Actions: []int{1}})
	}
	s.RecalculatePeriod()
	assert.Equal(t, 4, s.Period)
}

func TestRecalculatePeriod_Maximum(t *testing.T) {
	s := &Schedule{Period: 2, Start: day(10), End: day(16), Events: []*Event{{Day: 3}}}
	s.RecalculatePeriod()
	assert.Equal(t, 7, s.Period)

	s = &Schedule{Period: 30, Start: day(10), End: day(16), Events: []*Event{{Day: 3}}}
	s.RecalculatePeriod()
	assert.Equal(t, 30, s.Period)
}

func TestValidate(t *testing.T) {
	events := []*Event{{ID: 1, Day: 0, Actions: []int{1}}}

	open := &Schedule{Title: "open"}
	assert.True(t, open.IsValid())

	ok := &Schedule{Title: "ok", Start: day(10), End: day(12), Events: events}
	ok.RecalculatePeriod()
	assert.True(t, ok.IsValid())

	backwards := &Schedule{Title: "backwards", Start: day(12), End: day(10), Events: events}
	assert.ErrorIs(t, backwards.Validate(), ErrInvalidSchedule)

	short := &Schedule{Title: "short", Start: day(10), End: day(11), Period: 5, Events: events}
	short.RecalculatePeriod()
	assert.ErrorIs(t, short.Validate(), ErrInvalidSchedule)

	empty := &Schedule{Title: "empty", Start: day(10), End: day(11)}
	empty.RecalculatePeriod()
	assert.ErrorIs(t, empty.Validate(), ErrInvalidSchedule)
}

func TestRestartAndClearFired(t *testing.T) {
	s := &Schedule{Title: "r", Period: 3, Start: day(1), End: day(3), Events: []*Event{{ID: 1}, {ID: 2}}}
	s.Events[0].MarkFired()
	assert.Equal(t, 1, s.FiredCount())

	s.Restart(100)
	s.ClearFired()
	require.NotNil(t, s.Start)
	assert.Equal(t, Day(100), *s.Start)
	assert.Equal(t, Day(102), *s.End)
	assert.Equal(t, 0, s.FiredCount())
}

func TestParseTimeOfDay(t *testing.T) {
	m, err := ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, 450, m)

	m, err = ParseTimeOfDay("0:05")
	require.NoError(t, err)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd", "12:5"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}
