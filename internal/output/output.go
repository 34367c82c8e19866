// Package output defines the capability every controllable endpoint exposes
// and the registry that owns all endpoints of the process.
package output

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thatsimonsguy/aquactl/internal/value"
)

var (
	ErrUnknownOutput     = errors.New("unknown output")
	ErrDuplicateOutput   = errors.New("duplicate output id")
	ErrUnknownType       = errors.New("unknown output type")
	ErrIncompatibleValue = errors.New("incompatible value")
)

// Output is a controllable endpoint: a commanded value plus an optional
// override that shadows it. Control and override calls write through to the
// transport and report whether that write succeeded.
type Output interface {
	ControlOutput(v value.Value) error
	OverrideWith(v value.Value) error
	RestoreControl() error
	IsOverridden() (value.Value, bool)
	CurrentState() value.Value
}

// Accept checks v against the current value of an output and returns the
// value to record: same kind as current and inside its range, if any. A
// switch toggle is resolved against current.
func Accept(current, v value.Value) (value.Value, error) {
	if s, ok := value.Get[value.SwitchState](v); ok && s == value.Toggle {
		v = value.NewSwitch(value.On)
		if prev, _ := value.Get[value.SwitchState](current); prev == value.On {
			v = value.NewSwitch(value.Off)
		}
	}
	if v.Kind() != current.Kind() {
		return current, fmt.Errorf("%w: %s value for %s output", ErrIncompatibleValue, v.Kind(), current.Kind())
	}
	next := current
	if err := next.Set(v); err != nil {
		return current, fmt.Errorf("%w: %v", ErrIncompatibleValue, err)
	}
	return next, nil
}

// State keeps the commanded value and override of a backend. Backends embed
// it and write through to their transport around it.
type State struct {
	mu        sync.Mutex
	commanded value.Value
	override  *value.Value
}

func NewState(initial value.Value) *State {
	return &State{commanded: initial}
}

// Command validates and records v as the commanded value. It reports
// whether an override currently hides the command.
func (s *State) Command(v value.Value) (value.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Accept(s.commanded, v)
	if err != nil {
		return s.commanded, s.override != nil, err
	}
	s.commanded = next
	return next, s.override != nil, nil
}

// Override validates and records v as the override.
func (s *State) Override(v value.Value) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.commanded
	if s.override != nil {
		base = *s.override
	}
	next, err := Accept(base, v)
	if err != nil {
		return base, err
	}
	s.override = &next
	return next, nil
}

// Restore drops the override and returns the commanded value.
func (s *State) Restore() value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = nil
	return s.commanded
}

func (s *State) Overridden() (value.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override == nil {
		return value.Value{}, false
	}
	return *s.override, true
}

func (s *State) Current() value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override != nil {
		return *s.override
	}
	return s.commanded
}

func (s *State) Commanded() value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commanded
}
