package gpio

import (
	"fmt"
	"sync"
)

// Pin is one reserved output line with a commanded state and an optional
// override. It refers to its chip by path only and looks the chip up on
// every write, so a released chip makes the pin fail instead of dangle.
type Pin struct {
	chips    *Chips
	chipPath string
	number   int

	mu       sync.Mutex
	line     Line
	closed   bool
	state    Switch
	override *Switch
}

func (p *Pin) Number() int { return p.number }

func (p *Pin) ChipPath() string { return p.chipPath }

// Control records the commanded state and, unless overridden, writes it.
// The command is recorded even when the write fails.
func (p *Pin) Control(s Switch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.override != nil {
		p.state = resolve(s, p.state)
		return nil
	}
	written, err := p.write(s)
	if err != nil {
		p.state = resolve(s, p.state)
		return err
	}
	p.state = written
	return nil
}

// OverrideWith shadows the commanded state until RestoreControl.
func (p *Pin) OverrideWith(s Switch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	written, err := p.write(s)
	if err != nil {
		o := resolve(s, p.effective())
		p.override = &o
		return err
	}
	p.override = &written
	return nil
}

// RestoreControl drops the override and re-applies the commanded state.
func (p *Pin) RestoreControl() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.override = nil
	_, err := p.write(p.state)
	return err
}

// State is the override when present, the commanded state otherwise.
func (p *Pin) State() Switch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effective()
}

func (p *Pin) Override() (Switch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.override == nil {
		return Off, false
	}
	return *p.override, true
}

func (p *Pin) effective() Switch {
	if p.override != nil {
		return *p.override
	}
	return p.state
}

// write drives the line to s and returns the state it ended in. Toggle
// negates the level read from the line; a line already at the target is
// not written again.
func (p *Pin) write(s Switch) (Switch, error) {
	if p.closed {
		return s, ErrPinClosed
	}
	if p.chips.lookup(p.chipPath) == nil {
		return s, ErrChipReleased
	}

	level, err := p.line.Value()
	if err != nil {
		return s, fmt.Errorf("read pin %d: %w", p.number, err)
	}
	target := s
	if s == Toggle {
		target = fromLevel(level).negate()
	}
	if target.level() == level {
		return target, nil
	}
	if err := p.line.SetValue(target.level()); err != nil {
		return target, fmt.Errorf("write pin %d: %w", p.number, err)
	}
	return target, nil
}

// Release gives the line back and drops the pin from its chip. The next
// OpenPin of the same number requests the line again.
func (p *Pin) Release() error {
	if ch := p.chips.lookup(p.chipPath); ch != nil {
		ch.forget(p)
	}
	return p.close()
}

func (p *Pin) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.line.Close()
}

func resolve(s, previous Switch) Switch {
	if s == Toggle {
		return previous.negate()
	}
	return s
}
