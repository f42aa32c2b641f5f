package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidValueEncoding is returned when a write would populate more
// than one typed value slot, or none at all.
var ErrInvalidValueEncoding = errors.New("invalid value encoding")

type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueString
	ValueInt
	ValueDouble
	ValueJSON
)

// Value is the logical attribute/timeseries value: a tagged union over
// the five typed columns the store persists. Callers never see the
// column shape, only this type.
type Value struct {
	kind ValueKind
	b    bool
	s    string
	i    int64
	d    float64
	j    json.RawMessage
}

func BoolValue(b bool) Value      { return Value{kind: ValueBool, b: b} }
func StringValue(s string) Value  { return Value{kind: ValueString, s: s} }
func IntValue(i int64) Value      { return Value{kind: ValueInt, i: i} }
func DoubleValue(d float64) Value { return Value{kind: ValueDouble, d: d} }

func JSONValue(raw json.RawMessage) Value {
	return Value{kind: ValueJSON, j: raw}
}

// NewValue maps a runtime value onto the typed slot matching its
// dynamic type. Unsupported types are rejected before they reach the
// store.
func NewValue(v interface{}) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return BoolValue(val), nil
	case string:
		return StringValue(val), nil
	case int:
		return IntValue(int64(val)), nil
	case int32:
		return IntValue(int64(val)), nil
	case int64:
		return IntValue(val), nil
	case float32:
		return DoubleValue(float64(val)), nil
	case float64:
		return DoubleValue(val), nil
	case json.RawMessage:
		return JSONValue(val), nil
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(val)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s", ErrInvalidValueEncoding, err)
		}
		return JSONValue(raw), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidValueEncoding, v)
	}
}

// DecodeValue interprets a raw JSON scalar or object the way NewValue
// interprets runtime values. Numbers without a fraction become integer
// values so that a device writing `42` reads back `42`, not `42.0`.
func DecodeValue(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("%w: %s", ErrInvalidValueEncoding, err)
	}
	if num, ok := v.(json.Number); ok {
		if i, err := num.Int64(); err == nil {
			return IntValue(i), nil
		}
		d, err := num.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s", ErrInvalidValueEncoding, err)
		}
		return DoubleValue(d), nil
	}
	return NewValue(v)
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

// Any returns the decoded logical value for DTOs and JSON responses.
func (v Value) Any() interface{} {
	switch v.kind {
	case ValueBool:
		return v.b
	case ValueString:
		return v.s
	case ValueInt:
		return v.i
	case ValueDouble:
		return v.d
	case ValueJSON:
		return v.j
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == ValueJSON {
		return v.j, nil
	}
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeValue(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
