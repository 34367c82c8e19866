package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

// Target is one write of an action.
type Target struct {
	Output string
	Value  value.Value
}

// Action is a named bundle of output writes.
type Action struct {
	ID      int
	Targets []Target
}

// Actions is the process-wide action registry. Actions are only ever added.
type Actions struct {
	mu   sync.RWMutex
	byID map[int]Action
}

func NewActions() *Actions {
	return &Actions{byID: make(map[int]Action)}
}

// Add registers all actions or none of them.
func (a *Actions) Add(actions ...Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[int]bool, len(actions))
	for _, act := range actions {
		if _, exists := a.byID[act.ID]; exists || seen[act.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateAction, act.ID)
		}
		seen[act.ID] = true
	}
	for _, act := range actions {
		a.byID[act.ID] = act
	}
	return nil
}

func (a *Actions) Get(id int) (Action, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	act, ok := a.byID[id]
	return act, ok
}

func (a *Actions) Has(id int) bool {
	_, ok := a.Get(id)
	return ok
}

// IDs returns the registered ids in ascending order.
func (a *Actions) IDs() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]int, 0, len(a.byID))
	for id := range a.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// remove drops actions of a load that could not be committed.
func (a *Actions) remove(ids []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		delete(a.byID, id)
	}
}

// StateReader resolves the current value of an output.
type StateReader interface {
	CurrentState(id string) (value.Value, error)
}

type actionDescription struct {
	ID      *int `json:"id"`
	Outputs []struct {
		ID    string          `json:"id"`
		Value json.RawMessage `json:"value"`
	} `json:"outputs"`
}

// ParseAction decodes an action. Every output must exist and every value
// must fit the output's current value.
func ParseAction(raw []byte, outputs StateReader) (Action, error) {
	var d actionDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	if d.ID == nil {
		return Action{}, fmt.Errorf("action has no id")
	}
	if len(d.Outputs) == 0 {
		return Action{}, fmt.Errorf("action %d has no outputs", *d.ID)
	}

	act := Action{ID: *d.ID}
	for _, o := range d.Outputs {
		if o.ID == "" {
			return Action{}, fmt.Errorf("action %d: output without id", act.ID)
		}
		current, err := outputs.CurrentState(o.ID)
		if err != nil {
			return Action{}, fmt.Errorf("action %d: %w", act.ID, err)
		}
		if len(o.Value) == 0 {
			return Action{}, fmt.Errorf("action %d: output %s has no value", act.ID, o.ID)
		}
		v, err := value.Parse(o.Value, current.Kind())
		if err != nil {
			return Action{}, fmt.Errorf("action %d: output %s: %w", act.ID, o.ID, err)
		}
		if _, err := output.Accept(current, v); err != nil {
			return Action{}, fmt.Errorf("action %d: output %s: %w", act.ID, o.ID, err)
		}
		act.Targets = append(act.Targets, Target{Output: o.ID, Value: v})
	}
	return act, nil
}
