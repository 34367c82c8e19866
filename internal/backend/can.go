package backend

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/thatsimonsguy/aquactl/internal/can"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

type canDescription struct {
	Device           string          `json:"can_device"`
	ObjectIdentifier json.RawMessage `json:"object_identifier"`
	Default          json.RawMessage `json:"default"`
}

// CANOutput writes its value as one frame addressed by the object
// identifier. Outputs on the same interface share a socket.
type CANOutput struct {
	*output.State
	id  string
	oid uint32
	bus can.Bus
}

func newCANConstructor(pool *can.Pool) output.Constructor {
	return func(id string, raw json.RawMessage) (output.Output, error) {
		var d canDescription
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode can description: %w", err)
		}
		if d.Device == "" {
			return nil, fmt.Errorf("can description has no can_device")
		}
		oid, err := parseIdentifier(d.ObjectIdentifier)
		if err != nil {
			return nil, err
		}
		if len(d.Default) == 0 {
			return nil, fmt.Errorf("can description has no default")
		}
		initial, err := value.Parse(d.Default, value.KindInvalid)
		if err != nil {
			return nil, fmt.Errorf("can default: %w", err)
		}
		if _, err := encodePayload(initial); err != nil {
			return nil, err
		}
		bus, err := pool.Get(d.Device)
		if err != nil {
			return nil, err
		}
		return &CANOutput{State: output.NewState(initial), id: id, oid: oid, bus: bus}, nil
	}
}

func (o *CANOutput) ControlOutput(v value.Value) error {
	next, overridden, err := o.Command(v)
	if err != nil || overridden {
		return err
	}
	return o.send(next)
}

func (o *CANOutput) OverrideWith(v value.Value) error {
	next, err := o.Override(v)
	if err != nil {
		return err
	}
	return o.send(next)
}

func (o *CANOutput) RestoreControl() error {
	return o.send(o.Restore())
}

func (o *CANOutput) IsOverridden() (value.Value, bool) { return o.Overridden() }

func (o *CANOutput) CurrentState() value.Value { return o.Current() }

func (o *CANOutput) send(v value.Value) error {
	data, err := encodePayload(v)
	if err != nil {
		return err
	}
	return o.bus.Write(can.Frame{ID: o.oid, Data: data})
}

// parseIdentifier accepts a JSON number or a string in any base strconv
// understands, e.g. "0x1A0".
func parseIdentifier(raw json.RawMessage) (uint32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("can description has no object_identifier")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("object_identifier: %w", err)
		}
	}
	n, err := strconv.ParseUint(text, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("object_identifier %s: %w", raw, err)
	}
	if n > 0x1FFFFFFF {
		return 0, fmt.Errorf("%w: 0x%X", can.ErrIdentifier, n)
	}
	return uint32(n), nil
}

// encodePayload lays a value out as frame data: switch and power commands
// as one byte, numbers as 8 bytes little endian, strings as raw bytes.
func encodePayload(v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.KindSwitch:
		s, _ := value.Get[value.SwitchState](v)
		if s == value.On {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case value.KindPowerCommand:
		p, _ := value.Get[value.PowerCommand](v)
		switch p {
		case value.PowerOn:
			return []byte{1}, nil
		case value.PowerToggle:
			return []byte{2}, nil
		default:
			return []byte{0}, nil
		}
	case value.KindSigned:
		i, _ := value.Get[int64](v)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(i))
		return buf, nil
	case value.KindUnsigned:
		u, _ := value.Get[uint64](v)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, u)
		return buf, nil
	case value.KindString:
		s, _ := value.Get[string](v)
		if len(s) > can.MaxData {
			return nil, fmt.Errorf("%w: %q", can.ErrFrameSize, s)
		}
		return []byte(s), nil
	}
	return nil, fmt.Errorf("%w: %s values cannot be sent over can", output.ErrIncompatibleValue, v.Kind())
}
