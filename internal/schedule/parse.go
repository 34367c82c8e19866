package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultDateLayout = "2006-01-02"

// ActionResolver tells whether an action id is known.
type ActionResolver interface {
	Has(id int) bool
}

type scheduleDescription struct {
	Title     *string           `json:"title"`
	StartAt   *string           `json:"start_at"`
	EndAt     *string           `json:"end_at"`
	Repeating bool              `json:"repeating"`
	Period    int               `json:"period_in_days"`
	Events    []json.RawMessage `json:"events"`
}

type eventDescription struct {
	ID        *int   `json:"id"`
	Day       *int   `json:"day"`
	TriggerAt string `json:"trigger_at"`
	Actions   []int  `json:"actions"`
}

// Parser builds schedules from their JSON description.
type Parser struct {
	DateLayout string
	Location   *time.Location

	untitled atomic.Int64
}

func NewParser(layout string) *Parser {
	if layout == "" {
		layout = DefaultDateLayout
	}
	return &Parser{DateLayout: layout, Location: time.Local}
}

// Parse decodes a schedule. A single bad event aborts the whole schedule.
func (p *Parser) Parse(raw []byte, actions ActionResolver) (*Schedule, error) {
	var d scheduleDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	s := &Schedule{Period: d.Period}
	if d.Period < 0 {
		return nil, fmt.Errorf("%w: negative period_in_days", ErrInvalidSchedule)
	}
	if d.Title != nil && *d.Title != "" {
		s.Title = *d.Title
	} else {
		s.Title = fmt.Sprintf("schedule_%d", p.untitled.Add(1))
		log.Warn().Str("schedule", s.Title).Msg("Schedule has no title, using generated one")
	}
	if d.Repeating {
		s.Mode = Repeating
	}

	var err error
	if s.Start, err = p.parseDate(d.StartAt); err != nil {
		return nil, fmt.Errorf("schedule %s start_at: %w", s.Title, err)
	}
	if s.End, err = p.parseDate(d.EndAt); err != nil {
		return nil, fmt.Errorf("schedule %s end_at: %w", s.Title, err)
	}

	ids := make(map[int]bool, len(d.Events))
	for i, raw := range d.Events {
		e, err := parseEvent(raw, actions)
		if err != nil {
			return nil, fmt.Errorf("schedule %s event %d: %w", s.Title, i, err)
		}
		if ids[e.ID] {
			return nil, fmt.Errorf("schedule %s: duplicate event id %d", s.Title, e.ID)
		}
		ids[e.ID] = true
		s.Events = append(s.Events, e)
	}

	s.RecalculatePeriod()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseDate(text *string) (*Day, error) {
	if text == nil || *text == "" {
		return nil, nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(p.DateLayout, *text, loc)
	if err != nil {
		return nil, err
	}
	d := DayOf(t)
	return &d, nil
}

func parseEvent(raw []byte, actions ActionResolver) (*Event, error) {
	var d eventDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch {
	case d.ID == nil:
		return nil, fmt.Errorf("event has no id")
	case d.Day == nil:
		return nil, fmt.Errorf("event %d has no day", *d.ID)
	case *d.Day < 0:
		return nil, fmt.Errorf("event %d has negative day %d", *d.ID, *d.Day)
	case len(d.Actions) == 0:
		return nil, fmt.Errorf("event %d has no actions", *d.ID)
	}
	minute, err := ParseTimeOfDay(d.TriggerAt)
	if err != nil {
		return nil, fmt.Errorf("event %d trigger_at: %w", *d.ID, err)
	}
	for _, id := range d.Actions {
		if !actions.Has(id) {
			return nil, fmt.Errorf("event %d: %w: %d", *d.ID, ErrUnknownAction, id)
		}
	}
	return &Event{ID: *d.ID, Day: *d.Day, TriggerAt: minute, Actions: append([]int(nil), d.Actions...)}, nil
}

// ParseTimeOfDay converts HH:MM into minutes since midnight.
func ParseTimeOfDay(text string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(text), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM", text)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", text)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", text)
	}
	return h*60 + m, nil
}
