package output

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/thatsimonsguy/aquactl/internal/value"
)

// Fake is an in-memory output for tests. It records every value written
// through to its "transport".
type Fake struct {
	*State

	mu     sync.Mutex
	Writes []value.Value
	// Fail, when set, is returned by every write after the value was recorded.
	Fail error
}

func NewFake(initial value.Value) *Fake {
	return &Fake{State: NewState(initial)}
}

// FakeConstructor builds a Fake from {"default": <value description>}.
func FakeConstructor(id string, desc json.RawMessage) (Output, error) {
	var d struct {
		Default json.RawMessage `json:"default"`
	}
	if err := json.Unmarshal(desc, &d); err != nil {
		return nil, fmt.Errorf("decode fake output %s: %w", id, err)
	}
	initial := value.NewSwitch(value.Off)
	if len(d.Default) > 0 {
		v, err := value.Parse(d.Default, value.KindInvalid)
		if err != nil {
			return nil, err
		}
		initial = v
	}
	return NewFake(initial), nil
}

func (f *Fake) ControlOutput(v value.Value) error {
	next, overridden, err := f.Command(v)
	if err != nil {
		return err
	}
	if overridden {
		return nil
	}
	return f.record(next)
}

func (f *Fake) OverrideWith(v value.Value) error {
	next, err := f.Override(v)
	if err != nil {
		return err
	}
	return f.record(next)
}

func (f *Fake) RestoreControl() error {
	return f.record(f.Restore())
}

func (f *Fake) IsOverridden() (value.Value, bool) { return f.Overridden() }

func (f *Fake) CurrentState() value.Value { return f.Current() }

// Written returns a copy of the values written so far.
func (f *Fake) Written() []value.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]value.Value(nil), f.Writes...)
}

func (f *Fake) record(v value.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, v)
	return f.Fail
}
