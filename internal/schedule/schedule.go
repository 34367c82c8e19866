// Package schedule models schedules, their events and the actions events
// trigger, and loads them from schedule files.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateAction = errors.New("duplicate action id")
	ErrUnknownAction   = errors.New("unknown action")
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Day counts calendar days since 1970-01-01 in local time.
type Day int

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Time returns midnight of d in loc.
func (d Day) Time(loc *time.Location) time.Time {
	u := time.Unix(int64(d)*86400, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

func (d Day) Format(layout string) string {
	return d.Time(time.Local).Format(layout)
}

// MinuteOfDay returns the minutes since midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

type Mode int

const (
	SingleIteration Mode = iota
	Repeating
)

func (m Mode) String() string {
	if m == Repeating {
		return "repeating"
	}
	return "single_iteration"
}

// Event fires its actions once per activation of its schedule, on the day
// offset from the schedule start, at TriggerAt minutes after midnight. The
// fired marker is cleared when the schedule is (re)activated.
type Event struct {
	ID        int
	Day       int
	TriggerAt int
	Actions   []int

	fired bool
}

func (e *Event) Fired() bool { return e.fired }

func (e *Event) MarkFired() { e.fired = true }

func (e *Event) ClearFired() { e.fired = false }

// TriggerTime formats TriggerAt as HH:MM.
func (e *Event) TriggerTime() string {
	return fmt.Sprintf("%02d:%02d", e.TriggerAt/60, e.TriggerAt%60)
}

// Schedule is a titled set of events bounded by optional start and end days.
// Title is the identity of a schedule.
type Schedule struct {
	Title  string
	Start  *Day
	End    *Day
	Period int
	Mode   Mode
	Events []*Event
}

// RecalculatePeriod sets Period to the largest of the explicit period, the
// span between start and end, and the last event day plus one.
func (s *Schedule) RecalculatePeriod() {
	period := s.Period
	if s.Start != nil && s.End != nil {
		period = max(period, int(*s.End-*s.Start)+1)
	}
	for _, e := range s.Events {
		period = max(period, e.Day+1)
	}
	s.Period = period
}

// Validate reports why a schedule cannot run. An open schedule, without start
// and end, is always valid.
func (s *Schedule) Validate() error {
	if s.Start == nil || s.End == nil {
		return nil
	}
	switch {
	case *s.End < *s.Start:
		return fmt.Errorf("%w: %s ends before it starts", ErrInvalidSchedule, s.Title)
	case int(*s.End-*s.Start)+1 < s.Period:
		return fmt.Errorf("%w: %s spans %d days, shorter than its period of %d", ErrInvalidSchedule, s.Title, *s.End-*s.Start+1, s.Period)
	case len(s.Events) == 0:
		return fmt.Errorf("%w: %s has no events", ErrInvalidSchedule, s.Title)
	}
	return nil
}

func (s *Schedule) IsValid() bool { return s.Validate() == nil }

// ClearFired resets the fired marker of every event.
func (s *Schedule) ClearFired() {
	for _, e := range s.Events {
		e.ClearFired()
	}
}

// Restart moves the cycle to begin on today.
func (s *Schedule) Restart(today Day) {
	start := today
	end := today + Day(s.Period) - 1
	s.Start, s.End = &start, &end
}

// FiredCount is the number of events already fired in the current day.
func (s *Schedule) FiredCount() int {
	n := 0
	for _, e := range s.Events {
		if e.fired {
			n++
		}
	}
	return n
}
