package backend

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/gpio"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

type gpioDescription struct {
	Pin     *int            `json:"pin"`
	Default json.RawMessage `json:"default"`
	Chip    string          `json:"chip"`
}

// GPIOLine is a decoded gpio output description.
type GPIOLine struct {
	Chip    string
	Pin     int
	Default value.SwitchState
}

// ParseGPIODescription decodes the description of a gpio output. Chip falls
// back to defaultChip and Default to off.
func ParseGPIODescription(raw json.RawMessage, defaultChip string) (GPIOLine, error) {
	var d gpioDescription
	if err := json.Unmarshal(raw, &d); err != nil {
		return GPIOLine{}, fmt.Errorf("decode gpio description: %w", err)
	}
	if d.Pin == nil {
		return GPIOLine{}, fmt.Errorf("gpio description has no pin")
	}
	line := GPIOLine{Chip: d.Chip, Pin: *d.Pin, Default: value.Off}
	if line.Chip == "" {
		line.Chip = defaultChip
	}
	if len(d.Default) > 0 {
		v, err := value.Parse(d.Default, value.KindSwitch)
		if err != nil {
			return GPIOLine{}, fmt.Errorf("gpio default: %w", err)
		}
		s, ok := value.Get[value.SwitchState](v)
		if !ok || s == value.Toggle {
			return GPIOLine{}, fmt.Errorf("%w: gpio default must be on or off, got %s", output.ErrIncompatibleValue, v.Serialize())
		}
		line.Default = s
	}
	return line, nil
}

// GPIOOutput drives one reserved pin. It only accepts switch values.
type GPIOOutput struct {
	id     string
	pin    *gpio.Pin
	claims *pinClaims
	key    string
}

// pinClaims maps chip:pin to the output owning it.
type pinClaims struct {
	mu     sync.Mutex
	owners map[string]string
}

func (c *pinClaims) claim(key, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owners[key]; ok {
		return fmt.Errorf("gpio %s already used by output %s", key, owner)
	}
	c.owners[key] = id
	return nil
}

func (c *pinClaims) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owners, key)
}

func newGPIOConstructor(chips *gpio.Chips, defaultChip string) output.Constructor {
	claims := &pinClaims{owners: make(map[string]string)}

	return func(id string, raw json.RawMessage) (out output.Output, err error) {
		line, err := ParseGPIODescription(raw, defaultChip)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s:%d", line.Chip, line.Pin)
		if err := claims.claim(key, id); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				claims.release(key)
			}
		}()

		chip, err := chips.Instance(line.Chip)
		if err != nil {
			return nil, err
		}
		pin, err := chip.OpenPin(line.Pin)
		if err != nil {
			return nil, err
		}
		o := &GPIOOutput{id: id, pin: pin, claims: claims, key: key}
		if err := o.ControlOutput(value.NewSwitch(line.Default)); err != nil {
			log.Warn().Err(err).Str("output", id).Int("pin", line.Pin).Msg("Could not apply gpio default")
		}
		return o, nil
	}
}

// Close releases the line so a later output may claim the pin again.
func (o *GPIOOutput) Close() error {
	o.claims.release(o.key)
	return o.pin.Release()
}

func (o *GPIOOutput) ControlOutput(v value.Value) error {
	s, err := toSwitch(v)
	if err != nil {
		return err
	}
	return o.pin.Control(s)
}

func (o *GPIOOutput) OverrideWith(v value.Value) error {
	s, err := toSwitch(v)
	if err != nil {
		return err
	}
	return o.pin.OverrideWith(s)
}

func (o *GPIOOutput) RestoreControl() error {
	return o.pin.RestoreControl()
}

func (o *GPIOOutput) IsOverridden() (value.Value, bool) {
	s, ok := o.pin.Override()
	if !ok {
		return value.Value{}, false
	}
	return fromSwitch(s), true
}

func (o *GPIOOutput) CurrentState() value.Value {
	return fromSwitch(o.pin.State())
}

func toSwitch(v value.Value) (gpio.Switch, error) {
	s, ok := value.Get[value.SwitchState](v)
	if !ok {
		return gpio.Off, fmt.Errorf("%w: gpio outputs take switch values, got %s", output.ErrIncompatibleValue, v.Kind())
	}
	switch s {
	case value.On:
		return gpio.On, nil
	case value.Toggle:
		return gpio.Toggle, nil
	default:
		return gpio.Off, nil
	}
}

func fromSwitch(s gpio.Switch) value.Value {
	if s == gpio.On {
		return value.NewSwitch(value.On)
	}
	return value.NewSwitch(value.Off)
}
