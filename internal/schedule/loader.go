package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

// OutputStore is the part of the output registry a load touches.
type OutputStore interface {
	StateReader
	AddOutput(raw []byte) error
	RemoveOutput(id string) error
}

// Scheduler accepts parsed schedules.
type Scheduler interface {
	AddSchedule(s *Schedule) error
}

// File is the schedule file document.
type File struct {
	Gpios    []json.RawMessage `json:"gpios"`
	Actions  []json.RawMessage `json:"actions"`
	Schedule json.RawMessage   `json:"schedule"`
}

// Loader applies schedule files. A file is applied entirely or not at all.
type Loader struct {
	Outputs   OutputStore
	Actions   *Actions
	Scheduler Scheduler
	Parser    *Parser
}

// staged resolves action ids against the registry and the actions of the
// file being loaded.
type staged struct {
	global *Actions
	local  map[int]bool
}

func (s staged) Has(id int) bool { return s.local[id] || s.global.Has(id) }

// Load registers the outputs, actions and schedule of one schedule file.
// On any error everything registered so far is rolled back.
func (l *Loader) Load(data []byte) (s *Schedule, err error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode schedule file: %w", err)
	}
	if len(f.Schedule) == 0 {
		return nil, fmt.Errorf("schedule file has no schedule")
	}

	var added []string
	defer func() {
		if err == nil {
			return
		}
		for i := len(added) - 1; i >= 0; i-- {
			if rerr := l.Outputs.RemoveOutput(added[i]); rerr != nil {
				log.Error().Err(rerr).Str("output", added[i]).Msg("Could not roll back output")
			}
		}
	}()

	for i, raw := range f.Gpios {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &head)
		if err := l.Outputs.AddOutput(raw); err != nil {
			return nil, fmt.Errorf("gpio %d: %w", i, err)
		}
		added = append(added, head.ID)
	}

	actions := make([]Action, 0, len(f.Actions))
	local := make(map[int]bool, len(f.Actions))
	for i, raw := range f.Actions {
		act, err := ParseAction(raw, l.Outputs)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		if local[act.ID] || l.Actions.Has(act.ID) {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateAction, act.ID)
		}
		local[act.ID] = true
		actions = append(actions, act)
	}

	s, err = l.Parser.Parse(f.Schedule, staged{global: l.Actions, local: local})
	if err != nil {
		return nil, err
	}

	if err := l.Actions.Add(actions...); err != nil {
		return nil, err
	}
	if err := l.Scheduler.AddSchedule(s); err != nil {
		ids := make([]int, 0, len(actions))
		for _, act := range actions {
			ids = append(ids, act.ID)
		}
		l.Actions.remove(ids)
		return nil, err
	}

	log.Info().
		Str("schedule", s.Title).
		Int("outputs", len(added)).
		Int("actions", len(actions)).
		Int("events", len(s.Events)).
		Msg("Loaded schedule")
	return s, nil
}

// LoadFile loads one schedule file from disk.
func (l *Loader) LoadFile(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// LoadDir loads every *.json file in dir in name order. A failing file does
// not stop the others; all failures are returned joined.
func (l *Loader) LoadDir(dir string) ([]*Schedule, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var loaded []*Schedule
	var errs []error
	for _, path := range paths {
		s, err := l.LoadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Could not load schedule file")
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, s)
	}
	return loaded, errors.Join(errs...)
}
