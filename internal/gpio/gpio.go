package gpio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrChipReleased = errors.New("gpio chip released")
	ErrPinClosed    = errors.New("gpio pin closed")
)

type Switch int

const (
	Off Switch = iota
	On
	Toggle
)

func (s Switch) String() string {
	switch s {
	case On:
		return "on"
	case Toggle:
		return "toggle"
	default:
		return "off"
	}
}

func (s Switch) negate() Switch {
	if s == On {
		return Off
	}
	return On
}

func (s Switch) level() int {
	if s == On {
		return 1
	}
	return 0
}

func fromLevel(level int) Switch {
	if level != 0 {
		return On
	}
	return Off
}

// Chips is the process-wide reservation registry of GPIO controllers,
// keyed by device path.
type Chips struct {
	mu        sync.Mutex
	driver    Driver
	activeLow bool
	chips     map[string]*Chip
}

// NewChips creates the registry. invertOutput requests every line
// active-low.
func NewChips(driver Driver, invertOutput bool) *Chips {
	return &Chips{
		driver:    driver,
		activeLow: invertOutput,
		chips:     make(map[string]*Chip),
	}
}

// Instance returns the reserved chip for path, opening it on first use.
func (c *Chips) Instance(path string) (*Chip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.chips[path]; ok {
		return ch, nil
	}

	dev, err := c.driver.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", path, err)
	}
	ch := &Chip{
		path:     path,
		registry: c,
		dev:      dev,
		pins:     make(map[int]*Pin),
	}
	c.chips[path] = ch

	log.Info().Str("chip", path).Msg("Reserved GPIO chip")
	return ch, nil
}

func (c *Chips) lookup(path string) *Chip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chips[path]
}

// Release tears down every pin of the chip and then the chip handle itself.
func (c *Chips) Release(path string) error {
	c.mu.Lock()
	ch, ok := c.chips[path]
	delete(c.chips, path)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	log.Info().Str("chip", path).Msg("Releasing GPIO chip")
	return ch.close()
}

// Close releases all chips.
func (c *Chips) Close() error {
	c.mu.Lock()
	paths := make([]string, 0, len(c.chips))
	for path := range c.chips {
		paths = append(paths, path)
	}
	c.mu.Unlock()
	sort.Strings(paths)

	var errs []error
	for _, path := range paths {
		if err := c.Release(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Chip is one reserved GPIO controller and the pins requested from it.
type Chip struct {
	path     string
	registry *Chips

	mu     sync.Mutex
	dev    Device
	pins   map[int]*Pin
	closed bool
}

func (ch *Chip) Path() string { return ch.path }

// OpenPin returns the reserved pin, requesting the line as an output on
// first use. A line claimed elsewhere or an invalid offset fails.
func (ch *Chip) OpenPin(number int) (*Pin, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil, ErrChipReleased
	}
	if p, ok := ch.pins[number]; ok {
		return p, nil
	}

	line, err := ch.dev.RequestOutput(number, ch.registry.activeLow)
	if err != nil {
		return nil, fmt.Errorf("open pin %d on %s: %w", number, ch.path, err)
	}

	state := Off
	if level, err := line.Value(); err == nil {
		state = fromLevel(level)
	}

	p := &Pin{
		chips:    ch.registry,
		chipPath: ch.path,
		number:   number,
		line:     line,
		state:    state,
	}
	ch.pins[number] = p

	log.Debug().Str("chip", ch.path).Int("pin", number).Bool("active_low", ch.registry.activeLow).Msg("Reserved GPIO pin")
	return p, nil
}

func (ch *Chip) forget(p *Pin) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.pins[p.number] == p {
		delete(ch.pins, p.number)
	}
}

// close releases pins before the chip handle: closing the chip invalidates
// the line handles.
func (ch *Chip) close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true

	numbers := make([]int, 0, len(ch.pins))
	for n := range ch.pins {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var errs []error
	for _, n := range numbers {
		if err := ch.pins[n].close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", n, err))
		}
	}
	ch.pins = map[int]*Pin{}

	if err := ch.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip %s: %w", ch.path, err))
	}
	return errors.Join(errs...)
}
