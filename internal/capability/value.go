package capability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedValue marks a capability state whose shape cannot be represented (arrays, null, missing).
var ErrMalformedValue = errors.New("malformed capability value")

type Kind int

const (
	KindNone Kind = iota
	KindNumber
	KindString
	KindBool
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindComposite:
		return "composite"
	default:
		return "none"
	}
}

// Value is the vendor representation of a capability state or option value.
type Value struct {
	kind   Kind
	num    float64
	str    string
	b      bool
	fields map[string]Value
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Composite(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindComposite, fields: cp}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsZero() bool { return v.kind == KindNone }
func (v Value) Str() string { return v.str }
func (v Value) Float() float64 { return v.num }

func (v Value) Int() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return int64(math.Round(v.num)), true
}

func (v Value) BoolValue() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Field returns a member of a composite value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindComposite {
		return Value{}, false
	}
	f, ok := v.fields[name]
	return f, ok
}

func (v Value) FieldNames() []string {
	names := make([]string, 0, len(v.fields))
	for k := range v.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (v Value) Equal(o Value) bool { return v.Key() == o.Key() }

// Key is a canonical encoding usable as a map key.
func (v Value) Key() string {
	switch v.kind {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return "s:" + v.str
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	case KindComposite:
		var sb strings.Builder
		sb.WriteString("c:{")
		for i, name := range v.FieldNames() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(name))
			sb.WriteByte('=')
			sb.WriteString(v.fields[name].Key())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return ""
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindComposite:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return "<none>"
	}
}

// Any converts the value back to plain JSON-compatible Go types.
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1<<53 {
			return int64(v.num)
		}
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindComposite:
		out := make(map[string]any, len(v.fields))
		for k, f := range v.fields {
			out[k] = f.Any()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON accepts null as an absent value; arrays are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts decoded JSON or host-supplied Go values.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, fmt.Errorf("%w: null", ErrMalformedValue)
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %s: %w", k, err)
			}
			fields[k] = fv
		}
		return Value{kind: KindComposite, fields: fields}, nil
	case []any:
		return Value{}, fmt.Errorf("%w: array", ErrMalformedValue)
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedValue, raw)
	}
}

// ParseState extracts the current value from a vendor state object.
// The value lives under "value"; some devices report it under the instance name.
func ParseState(raw json.RawMessage, instance string) (Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Value{}, fmt.Errorf("%w: empty state", ErrMalformedValue)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	field, ok := obj["value"]
	if !ok && instance != "" {
		field, ok = obj[instance]
	}
	if !ok {
		return Value{}, fmt.Errorf("%w: no value", ErrMalformedValue)
	}
	var v Value
	if err := json.Unmarshal(field, &v); err != nil {
		return Value{}, err
	}
	if v.IsZero() {
		return Value{}, fmt.Errorf("%w: null", ErrMalformedValue)
	}
	return v, nil
}
