package schedulecontroller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/schedule"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

const DefaultTick = time.Second

var ErrConflict = errors.New("schedule title already in use")

// Outputs applies the writes of a batch.
type Outputs interface {
	ControlOutput(id string, v value.Value) error
}

// ActionSource resolves action ids.
type ActionSource interface {
	Get(id int) (schedule.Action, bool)
}

type Metrics interface {
	Gauge(name string, v float64, tags ...string)
	Incr(name string, tags ...string)
}

// Handler runs the firing loop. Schedules start inactive and are promoted by
// the next tick.
type Handler struct {
	mu       sync.Mutex
	active   []*schedule.Schedule
	inactive []*schedule.Schedule

	outputs Outputs
	actions ActionSource
	metrics Metrics
	now     func() time.Time
	tick    time.Duration

	runMu   sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

type Option func(*Handler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithTick(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.tick = d
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(outputs Outputs, actions ActionSource, opts ...Option) *Handler {
	h := &Handler{
		outputs: outputs,
		actions: actions,
		now:     time.Now,
		tick:    DefaultTick,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddSchedule queues s for activation. Missing bounds are derived from the
// period: no bounds means one period starting today.
func (h *Handler) AddSchedule(s *schedule.Schedule) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, list := range [][]*schedule.Schedule{h.active, h.inactive} {
		for _, existing := range list {
			if existing.Title == s.Title {
				return fmt.Errorf("%w: %s", ErrConflict, s.Title)
			}
		}
	}

	period := schedule.Day(max(s.Period, 1))
	switch {
	case s.Start == nil && s.End == nil:
		s.Restart(schedule.DayOf(h.now()))
	case s.End == nil:
		end := *s.Start + period - 1
		s.End = &end
	case s.Start == nil:
		start := *s.End - period + 1
		s.Start = &start
	}
	if s.Period < 1 {
		s.Period = 1
	}

	h.inactive = append(h.inactive, s)
	log.Info().
		Str("schedule", s.Title).
		Str("mode", s.Mode.String()).
		Int("period", s.Period).
		Msg("Schedule added")
	return nil
}

// Start runs the firing loop until ctx is done or Stop is called.
func (h *Handler) Start(ctx context.Context) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.stop != nil {
		return
	}
	h.stop = make(chan struct{})
	h.stopped = make(chan struct{})

	go func(stop, stopped chan struct{}) {
		defer close(stopped)
		log.Info().Dur("tick", h.tick).Msg("Starting schedule controller")

		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				h.Tick()
			}
		}
	}(h.stop, h.stopped)
}

// Stop ends the firing loop and waits for the current tick to finish.
func (h *Handler) Stop() {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.stop == nil {
		return
	}
	close(h.stop)
	<-h.stopped
	h.stop, h.stopped = nil, nil
	log.Info().Msg("Schedule controller stopped")
}

// Tick runs one iteration: fire due events of active schedules, activate
// inactive schedules, then deactivate expired ones. A schedule activated by
// this tick fires its due events right away.
func (h *Handler) Tick() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	today := schedule.DayOf(now)
	minute := schedule.MinuteOfDay(now)

	for _, s := range h.active {
		h.fire(s, today, minute)
	}
	for _, s := range h.activate(today) {
		h.fire(s, today, minute)
	}
	h.deactivate(today)

	if h.metrics != nil {
		h.metrics.Gauge("schedule.active", float64(len(h.active)))
	}
}

// activate promotes every inactive schedule that can still run. Expired
// repeating schedules start a new cycle today.
func (h *Handler) activate(today schedule.Day) []*schedule.Schedule {
	var promoted, still []*schedule.Schedule
	for _, s := range h.inactive {
		if s.Mode != schedule.Repeating && *s.End < today {
			still = append(still, s)
			continue
		}
		if *s.End < today {
			s.Restart(today)
			log.Info().Str("schedule", s.Title).Str("start", today.Format(schedule.DefaultDateLayout)).Msg("Restarting repeating schedule")
		}
		s.ClearFired()
		promoted = append(promoted, s)
		log.Info().Str("schedule", s.Title).Msg("Schedule activated")
	}
	h.inactive = still
	h.active = append(h.active, promoted...)
	return promoted
}

func (h *Handler) deactivate(today schedule.Day) {
	var running []*schedule.Schedule
	for _, s := range h.active {
		if *s.End < today {
			h.inactive = append(h.inactive, s)
			log.Info().Str("schedule", s.Title).Msg("Schedule deactivated")
			continue
		}
		running = append(running, s)
	}
	h.active = running
}

func (h *Handler) fire(s *schedule.Schedule, today schedule.Day, minute int) {
	offset := int(today - *s.Start)
	var batch []int
	for _, e := range s.Events {
		if e.Day <= offset && e.TriggerAt <= minute && !e.Fired() {
			batch = append(batch, e.Actions...)
			e.MarkFired()
			log.Debug().Str("schedule", s.Title).Int("event", e.ID).Msg("Event triggered")
		}
	}
	if len(batch) == 0 {
		return
	}
	if h.metrics != nil {
		h.metrics.Incr("schedule.batch", "schedule:"+s.Title)
	}
	if err := h.execute(batch); err != nil {
		log.Error().Err(err).Str("schedule", s.Title).Ints("actions", batch).Msg("Batch execution failed")
	}
}

type write struct {
	output string
	value  value.Value
	action int
}

// resolve picks one write per output. Walking the batch backwards, the first
// claim on an output wins, so the action later in trigger order takes effect.
func (h *Handler) resolve(batch []int) []write {
	claimed := make(map[string]bool)
	var writes []write
	for i := len(batch) - 1; i >= 0; i-- {
		act, ok := h.actions.Get(batch[i])
		if !ok {
			log.Error().Bool("critical", true).Int("action", batch[i]).Msg("Scheduled action is not registered")
			continue
		}
		for j := len(act.Targets) - 1; j >= 0; j-- {
			t := act.Targets[j]
			if claimed[t.Output] {
				continue
			}
			claimed[t.Output] = true
			writes = append(writes, write{output: t.Output, value: t.Value, action: act.ID})
		}
	}
	// back to trigger order
	for i, j := 0, len(writes)-1; i < j; i, j = i+1, j-1 {
		writes[i], writes[j] = writes[j], writes[i]
	}
	return writes
}

func (h *Handler) execute(batch []int) error {
	var errs []error
	for _, w := range h.resolve(batch) {
		if err := h.outputs.ControlOutput(w.output, w.value); err != nil {
			errs = append(errs, fmt.Errorf("action %d output %s: %w", w.action, w.output, err))
			continue
		}
		log.Info().Int("action", w.action).Str("output", w.output).Str("value", w.value.Serialize()).Msg("Applied scheduled value")
	}
	return errors.Join(errs...)
}

// Status is a snapshot of one schedule.
type Status struct {
	Title  string `json:"title"`
	Active bool   `json:"active"`
	Mode   string `json:"mode"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Period int    `json:"period_in_days"`
	Events int    `json:"events"`
	Fired  int    `json:"fired"`
}

// Schedules returns the state of every schedule, active ones first.
func (h *Handler) Schedules() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Status, 0, len(h.active)+len(h.inactive))
	for _, s := range h.active {
		out = append(out, status(s, true))
	}
	for _, s := range h.inactive {
		out = append(out, status(s, false))
	}
	return out
}

func status(s *schedule.Schedule, active bool) Status {
	st := Status{
		Title:  s.Title,
		Active: active,
		Mode:   s.Mode.String(),
		Period: s.Period,
		Events: len(s.Events),
		Fired:  s.FiredCount(),
	}
	if s.Start != nil {
		st.Start = s.Start.Format(schedule.DefaultDateLayout)
	}
	if s.End != nil {
		st.End = s.End.Format(schedule.DefaultDateLayout)
	}
	return st
}
