// Package value holds the typed values commanded to outputs: switch states,
// signed and unsigned numbers, tasmota power commands, strings and named
// collections of those. A value may carry an inclusive [min, max] range that
// constrains later writes through Set.
package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrRejected is returned by Set when the new value does not fit the range.
var ErrRejected = errors.New("value rejected")

type Kind int

const (
	KindInvalid Kind = iota
	KindSwitch
	KindSigned
	KindUnsigned
	KindPowerCommand
	KindString
	KindCollection
)

// kindNames maps kinds to the type names used in output descriptions.
var kindNames = map[Kind]string{
	KindSwitch:       "switch_output",
	KindSigned:       "int",
	KindUnsigned:     "unsigned int",
	KindPowerCommand: "tasmota_power_command",
	KindString:       "string",
	KindCollection:   "collection",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// KindFromName resolves a description type name such as "unsigned int".
func KindFromName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindInvalid, false
}

type SwitchState int

const (
	Off SwitchState = iota
	On
	Toggle
)

func (s SwitchState) String() string {
	switch s {
	case On:
		return "on"
	case Toggle:
		return "toggle"
	default:
		return "off"
	}
}

// ParseSwitch accepts on/off/toggle as well as boolean and 0/1 spellings.
func ParseSwitch(s string) (SwitchState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return On, nil
	case "off", "false", "0":
		return Off, nil
	case "toggle":
		return Toggle, nil
	}
	return Off, fmt.Errorf("invalid switch state %q", s)
}

// PowerCommand is the tasmota flavour of a switch state. It serializes to the
// URL-encoded command token expected by the device web endpoint.
type PowerCommand int

const (
	PowerOff PowerCommand = iota
	PowerOn
	PowerToggle
)

func (p PowerCommand) String() string {
	switch p {
	case PowerOn:
		return "Power On"
	case PowerToggle:
		return "Power Toggle"
	default:
		return "Power Off"
	}
}

// ParsePowerCommand accepts the bare state ("on") and the command form,
// escaped or not ("Power On", "Power%20On").
func ParsePowerCommand(s string) (PowerCommand, error) {
	token := s
	if unescaped, err := url.PathUnescape(s); err == nil {
		token = unescaped
	}
	token = strings.ToLower(strings.TrimSpace(token))
	token = strings.TrimSpace(strings.TrimPrefix(token, "power"))
	state, err := ParseSwitch(token)
	if err != nil {
		return PowerOff, fmt.Errorf("invalid power command %q", s)
	}
	return PowerCommand(state), nil
}

// Scalar lists the payload types reachable through Get, Min and Max.
type Scalar interface {
	SwitchState | PowerCommand | int64 | uint64 | string
}

type Value struct {
	kind   Kind
	sw     SwitchState
	pc     PowerCommand
	i      int64
	u      uint64
	s      string
	fields map[string]Value

	lo, hi *Value
}

func NewSwitch(s SwitchState) Value { return Value{kind: KindSwitch, sw: s} }
func NewSigned(i int64) Value { return Value{kind: KindSigned, i: i} }
func NewUnsigned(u uint64) Value { return Value{kind: KindUnsigned, u: u} }
func NewPower(p PowerCommand) Value { return Value{kind: KindPowerCommand, pc: p} }
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// NewCollection copies fields. Field ranges are dropped.
func NewCollection(fields map[string]Value) Value {
	copied := make(map[string]Value, len(fields))
	for name, f := range fields {
		copied[name] = f.payload()
	}
	return Value{kind: KindCollection, fields: copied}
}

// Zero returns the default payload of a kind.
func Zero(k Kind) Value {
	switch k {
	case KindCollection:
		return NewCollection(nil)
	default:
		return Value{kind: k}
	}
}

// WithRange returns a copy of v bounded by [lo, hi]. The bounds must share
// v's kind and v itself must lie inside them.
func (v Value) WithRange(lo, hi Value) (Value, error) {
	if v.kind == KindCollection {
		return v, fmt.Errorf("collections cannot carry a range")
	}
	if lo.kind != v.kind || hi.kind != v.kind {
		return v, fmt.Errorf("range of %s does not match %s value", lo.kind, v.kind)
	}
	if compare(lo, hi) > 0 {
		return v, fmt.Errorf("range lower bound %s exceeds upper bound %s", lo.Serialize(), hi.Serialize())
	}
	if compare(v, lo) < 0 || compare(v, hi) > 0 {
		return v, fmt.Errorf("%w: %s outside [%s, %s]", ErrRejected, v.Serialize(), lo.Serialize(), hi.Serialize())
	}
	l, h := lo.payload(), hi.payload()
	v.lo, v.hi = &l, &h
	return v, nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsZero() bool { return v.kind == KindInvalid }

func (v Value) HasRange() bool { return v.lo != nil }

// Field returns one member of a collection.
func (v Value) Field(name string) (Value, bool) {
	f, ok := v.fields[name]
	return f, ok
}

// FieldNames lists collection members in sorted order.
func (v Value) FieldNames() []string {
	names := make([]string, 0, len(v.fields))
	for name := range v.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Get[T Scalar](v Value) (T, bool) {
	return extract[T](v)
}

func Min[T Scalar](v Value) (T, bool) {
	if v.lo == nil {
		var zero T
		return zero, false
	}
	return extract[T](*v.lo)
}

func Max[T Scalar](v Value) (T, bool) {
	if v.hi == nil {
		var zero T
		return zero, false
	}
	return extract[T](*v.hi)
}

func extract[T Scalar](v Value) (T, bool) {
	var out T
	switch p := any(&out).(type) {
	case *SwitchState:
		if v.kind != KindSwitch {
			return out, false
		}
		*p = v.sw
	case *PowerCommand:
		if v.kind != KindPowerCommand {
			return out, false
		}
		*p = v.pc
	case *int64:
		if v.kind != KindSigned {
			return out, false
		}
		*p = v.i
	case *uint64:
		if v.kind != KindUnsigned {
			return out, false
		}
		*p = v.u
	case *string:
		if v.kind != KindString {
			return out, false
		}
		*p = v.s
	}
	return out, true
}

// Set replaces the payload of v with the payload of n. When v carries a
// range, n must have the range's kind and lie inside it; otherwise v is left
// untouched and ErrRejected is returned. The range itself is kept.
func (v *Value) Set(n Value) error {
	if v.lo != nil {
		if n.kind != v.lo.kind {
			return fmt.Errorf("%w: %s value for %s range", ErrRejected, n.kind, v.lo.kind)
		}
		if compare(n, *v.lo) < 0 || compare(n, *v.hi) > 0 {
			return fmt.Errorf("%w: %s outside [%s, %s]", ErrRejected, n.Serialize(), v.lo.Serialize(), v.hi.Serialize())
		}
	}
	lo, hi := v.lo, v.hi
	*v = n.payload()
	v.lo, v.hi = lo, hi
	return nil
}

// Equal compares active payloads only; ranges are not part of identity.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind != KindCollection {
		return compare(v, o) == 0
	}
	if len(v.fields) != len(o.fields) {
		return false
	}
	for name, f := range v.fields {
		of, ok := o.fields[name]
		if !ok || !f.Equal(of) {
			return false
		}
	}
	return true
}

// Serialize renders the lossless text form: on/off/toggle for switches,
// URL-encoded command tokens for power commands, decimal numbers, strings
// verbatim and a JSON object for collections.
func (v Value) Serialize() string {
	switch v.kind {
	case KindSwitch:
		return v.sw.String()
	case KindPowerCommand:
		return url.PathEscape(v.pc.String())
	case KindSigned:
		return strconv.FormatInt(v.i, 10)
	case KindUnsigned:
		return strconv.FormatUint(v.u, 10)
	case KindString:
		return v.s
	case KindCollection:
		b, _ := json.Marshal(v)
		return string(b)
	}
	return ""
}

func (v Value) String() string { return v.Serialize() }

// Float reports numeric and switch payloads as a float, for metrics.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindSigned:
		return float64(v.i), true
	case KindUnsigned:
		return float64(v.u), true
	case KindSwitch:
		return float64(v.sw), v.sw != Toggle
	case KindPowerCommand:
		return float64(v.pc), v.pc != PowerToggle
	}
	return 0, false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindSwitch:
		return json.Marshal(v.sw.String())
	case KindPowerCommand:
		return json.Marshal(SwitchState(v.pc).String())
	case KindSigned:
		return json.Marshal(v.i)
	case KindUnsigned:
		return json.Marshal(v.u)
	case KindString:
		return json.Marshal(v.s)
	case KindCollection:
		return json.Marshal(v.fields)
	}
	return []byte("null"), nil
}

func (v Value) payload() Value {
	v.lo, v.hi = nil, nil
	return v
}

// compare orders two values of the same kind. Collections are unordered and
// compare as 0.
func compare(a, b Value) int {
	switch a.kind {
	case KindSwitch:
		return int(a.sw) - int(b.sw)
	case KindPowerCommand:
		return int(a.pc) - int(b.pc)
	case KindSigned:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	case KindUnsigned:
		switch {
		case a.u < b.u:
			return -1
		case a.u > b.u:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(a.s, b.s)
	}
	return 0
}
