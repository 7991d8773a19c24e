package events

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PayloadKind tags the value held by a Payload.
type PayloadKind uint8

const (
	KindNone PayloadKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

func (k PayloadKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "none"
	}
}

// Payload is a closed union over the value kinds an event may carry.
// It has value semantics: copying an Event copies its payload.
type Payload struct {
	kind PayloadKind
	i    int64
	f    float64
	b    bool
	s    string
}

func None() Payload { return Payload{} }

func Int(v int64) Payload { return Payload{kind: KindInt, i: v} }

func Float(v float64) Payload { return Payload{kind: KindFloat, f: v} }

func Bool(v bool) Payload { return Payload{kind: KindBool, b: v} }

func String(v string) Payload { return Payload{kind: KindString, s: v} }

func (p Payload) Kind() PayloadKind { return p.kind }

// Int returns the integer value and whether the payload holds one.
func (p Payload) Int() (int64, bool) { return p.i, p.kind == KindInt }

// Float returns the float value; integers are widened.
func (p Payload) Float() (float64, bool) {
	switch p.kind {
	case KindFloat:
		return p.f, true
	case KindInt:
		return float64(p.i), true
	}
	return 0, false
}

func (p Payload) Bool() (bool, bool) { return p.b, p.kind == KindBool }

func (p Payload) Str() (string, bool) { return p.s, p.kind == KindString }

// Value returns the payload as a plain Go value, nil for KindNone.
func (p Payload) Value() any {
	switch p.kind {
	case KindInt:
		return p.i
	case KindFloat:
		return p.f
	case KindBool:
		return p.b
	case KindString:
		return p.s
	default:
		return nil
	}
}

// Size is the encoded size of the value in bytes.
func (p Payload) Size() int {
	switch p.kind {
	case KindInt, KindFloat:
		return 8
	case KindBool:
		return 1
	case KindString:
		return len(p.s)
	default:
		return 0
	}
}

func (p Payload) String() string {
	switch p.kind {
	case KindInt:
		return strconv.FormatInt(p.i, 10)
	case KindFloat:
		return strconv.FormatFloat(p.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(p.b)
	case KindString:
		return p.s
	default:
		return ""
	}
}

type payloadJSON struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// MarshalJSON keeps the kind so the value round-trips exactly.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadJSON{Kind: p.kind.String(), Value: p.Value()})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  string          `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "", "none":
		*p = None()
		return nil
	case "int":
		var v int64
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("int payload: %w", err)
		}
		*p = Int(v)
	case "float":
		var v float64
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("float payload: %w", err)
		}
		*p = Float(v)
	case "bool":
		var v bool
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("bool payload: %w", err)
		}
		*p = Bool(v)
	case "string":
		var v string
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("string payload: %w", err)
		}
		*p = String(v)
	default:
		return fmt.Errorf("unknown payload kind %q", raw.Kind)
	}
	return nil
}
