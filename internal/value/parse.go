package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ParseText parses the Serialize form of a value of the given kind.
func ParseText(text string, kind Kind) (Value, error) {
	switch kind {
	case KindSwitch:
		s, err := ParseSwitch(text)
		if err != nil {
			return Value{}, err
		}
		return NewSwitch(s), nil
	case KindPowerCommand:
		p, err := ParsePowerCommand(text)
		if err != nil {
			return Value{}, err
		}
		return NewPower(p), nil
	case KindSigned:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid int %q: %w", text, err)
		}
		return NewSigned(i), nil
	case KindUnsigned:
		u, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid unsigned int %q: %w", text, err)
		}
		return NewUnsigned(u), nil
	case KindString:
		return NewString(text), nil
	case KindCollection:
		return parseFields([]byte(text))
	}
	return Value{}, fmt.Errorf("cannot parse %q without a known type", text)
}

// Parse decodes a JSON value description. Either a bare scalar, whose kind is
// taken from hint when hint is not KindInvalid and inferred from the JSON
// token otherwise, or an object {type, default, range} naming the kind
// explicitly and optionally bounding it.
func Parse(data []byte, hint Kind) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Value{}, fmt.Errorf("empty value description")
	}
	if trimmed[0] == '{' {
		return parseDescription(trimmed)
	}
	return parseScalar(trimmed, hint)
}

func parseScalar(raw []byte, hint Kind) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var token any
	if err := dec.Decode(&token); err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}

	switch t := token.(type) {
	case bool:
		switch hint {
		case KindInvalid, KindSwitch:
			if t {
				return NewSwitch(On), nil
			}
			return NewSwitch(Off), nil
		case KindPowerCommand:
			if t {
				return NewPower(PowerOn), nil
			}
			return NewPower(PowerOff), nil
		case KindString:
			return NewString(strconv.FormatBool(t)), nil
		}
		return Value{}, fmt.Errorf("boolean cannot be used as %s", hint)
	case json.Number:
		if hint != KindInvalid {
			return ParseText(t.String(), hint)
		}
		text := t.String()
		if len(text) > 0 && text[0] == '-' {
			return ParseText(text, KindSigned)
		}
		return ParseText(text, KindUnsigned)
	case string:
		if hint != KindInvalid {
			return ParseText(t, hint)
		}
		return NewString(t), nil
	}
	return Value{}, fmt.Errorf("unsupported value token %s", string(raw))
}

func parseDescription(raw []byte) (Value, error) {
	var desc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &desc); err != nil {
		return Value{}, fmt.Errorf("decode value description: %w", err)
	}

	rawType, ok := desc["type"]
	if !ok {
		return Value{}, fmt.Errorf("value description has no type")
	}
	var typeName string
	if err := json.Unmarshal(rawType, &typeName); err != nil {
		return Value{}, fmt.Errorf("value description type is not a string")
	}
	kind, ok := KindFromName(typeName)
	if !ok {
		return Value{}, fmt.Errorf("unknown value type %q", typeName)
	}

	v := Zero(kind)
	if def, ok := desc["default"]; ok {
		var err error
		if kind == KindCollection {
			v, err = parseFields(def)
		} else {
			v, err = parseScalar(def, kind)
		}
		if err != nil {
			return Value{}, fmt.Errorf("default: %w", err)
		}
	}

	rawRange, ok := desc["range"]
	if !ok {
		return v, nil
	}
	var bounds []json.RawMessage
	if err := json.Unmarshal(rawRange, &bounds); err != nil || len(bounds) != 2 {
		return Value{}, fmt.Errorf("range must be an array of two entries")
	}
	if isNumber(bounds[0]) != isNumber(bounds[1]) {
		return Value{}, fmt.Errorf("range entries disagree on being numeric")
	}
	lo, err := parseScalar(bounds[0], kind)
	if err != nil {
		return Value{}, fmt.Errorf("range: %w", err)
	}
	hi, err := parseScalar(bounds[1], kind)
	if err != nil {
		return Value{}, fmt.Errorf("range: %w", err)
	}
	return v.WithRange(lo, hi)
}

// parseFields decodes a collection default: an object of bare scalars or
// scalar descriptions.
func parseFields(raw []byte) (Value, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return Value{}, fmt.Errorf("collection must be an object: %w", err)
	}
	fields := make(map[string]Value, len(members))
	for name, m := range members {
		f, err := Parse(m, KindInvalid)
		if err != nil {
			return Value{}, fmt.Errorf("field %s: %w", name, err)
		}
		if f.kind == KindCollection {
			return Value{}, fmt.Errorf("field %s: collections cannot nest", name)
		}
		fields[name] = f
	}
	return NewCollection(fields), nil
}

func isNumber(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return false
	}
	return t[0] == '-' || (t[0] >= '0' && t[0] <= '9')
}
