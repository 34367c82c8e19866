package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/value"
)

// Description is the configuration form of an output. Description holds
// the backend-specific part, decoded by the constructor registered for Type.
type Description struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Description json.RawMessage `json:"description"`
}

// Constructor builds a backend from its description.
type Constructor func(id string, desc json.RawMessage) (Output, error)

// Factory maps output types to constructors. Backend packages register
// into it at startup.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

func (f *Factory) RegisterInterface(typ string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[typ] = ctor
}

func (f *Factory) lookup(typ string) (Constructor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ctor, ok := f.ctors[typ]
	return ctor, ok
}

// Types lists the registered output types.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.ctors))
	for typ := range f.ctors {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

type Op string

const (
	OpControl  Op = "control"
	OpOverride Op = "override"
	OpRestore  Op = "restore"
)

// Event describes one write attempt through the registry.
type Event struct {
	Output     string
	Op         Op
	Value      value.Value
	Overridden bool
	Err        error
	At         time.Time
}

// Observer is told about every write attempt after it completed.
type Observer interface {
	OutputWritten(e Event)
}

// Registry owns every output backend of the process, keyed by id.
type Registry struct {
	mu        sync.RWMutex
	factory   *Factory
	outputs   map[string]Output
	types     map[string]string
	observers []Observer
	now       func() time.Time
}

func NewRegistry(factory *Factory, observers ...Observer) *Registry {
	return &Registry{
		factory:   factory,
		outputs:   make(map[string]Output),
		types:     make(map[string]string),
		observers: observers,
		now:       time.Now,
	}
}

// AddOutput decodes an output description and registers the backend built
// from it.
func (r *Registry) AddOutput(raw []byte) error {
	var d Description
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decode output description: %w", err)
	}
	return r.Add(d)
}

func (r *Registry) Add(d Description) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("output description has no id")
	case d.Type == "":
		return fmt.Errorf("output %s has no type", d.ID)
	case len(bytes.TrimSpace(d.Description)) == 0 || bytes.Equal(bytes.TrimSpace(d.Description), []byte("null")):
		return fmt.Errorf("output %s has no description", d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.outputs[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOutput, d.ID)
	}
	ctor, ok := r.factory.lookup(d.Type)
	if !ok {
		return fmt.Errorf("%w: %s (output %s)", ErrUnknownType, d.Type, d.ID)
	}
	out, err := ctor(d.ID, d.Description)
	if err != nil {
		return fmt.Errorf("create %s output %s: %w", d.Type, d.ID, err)
	}
	r.outputs[d.ID] = out
	r.types[d.ID] = d.Type

	log.Info().Str("output", d.ID).Str("type", d.Type).Str("state", out.CurrentState().Serialize()).Msg("Registered output")
	return nil
}

// RemoveOutput unregisters and closes an output. Used to roll back a load
// that failed after registering outputs.
func (r *Registry) RemoveOutput(id string) error {
	r.mu.Lock()
	out, ok := r.outputs[id]
	delete(r.outputs, id)
	delete(r.types, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOutput, id)
	}
	if c, ok := out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Registry) ControlOutput(id string, v value.Value) error {
	return r.write(id, OpControl, v, func(o Output) error { return o.ControlOutput(v) })
}

func (r *Registry) OverrideWith(id string, v value.Value) error {
	return r.write(id, OpOverride, v, func(o Output) error { return o.OverrideWith(v) })
}

func (r *Registry) RestoreControl(id string) error {
	return r.write(id, OpRestore, value.Value{}, func(o Output) error { return o.RestoreControl() })
}

func (r *Registry) write(id string, op Op, v value.Value, fn func(Output) error) error {
	r.mu.RLock()
	out, ok := r.outputs[id]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownOutput, id)
	}
	err := fn(out)
	_, overridden := out.IsOverridden()
	if op == OpRestore {
		v = out.CurrentState()
	}
	r.mu.RUnlock()

	if err != nil {
		log.Warn().Err(err).Str("output", id).Str("op", string(op)).Str("value", v.Serialize()).Msg("Output write failed")
	} else {
		log.Debug().Str("output", id).Str("op", string(op)).Str("value", v.Serialize()).Msg("Output written")
	}

	e := Event{Output: id, Op: op, Value: v, Overridden: overridden, Err: err, At: r.now()}
	for _, o := range r.observers {
		o.OutputWritten(e)
	}
	return err
}

func (r *Registry) CurrentState(id string) (value.Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.outputs[id]
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", ErrUnknownOutput, id)
	}
	return out.CurrentState(), nil
}

func (r *Registry) IsOverridden(id string) (value.Value, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.outputs[id]
	if !ok {
		return value.Value{}, false, fmt.Errorf("%w: %s", ErrUnknownOutput, id)
	}
	v, overridden := out.IsOverridden()
	return v, overridden, nil
}

// Type returns the registered type of an output, empty if unknown.
func (r *Registry) Type(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[id]
}

// IDs returns a sorted snapshot of the known output ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.outputs))
	for id := range r.outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every backend holding resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	outputs := r.outputs
	r.outputs = make(map[string]Output)
	r.types = make(map[string]string)
	r.mu.Unlock()

	var errs []error
	for id, out := range outputs {
		if c, ok := out.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close output %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
