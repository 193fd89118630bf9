package value

import (
	"fmt"
	"math"
	"strings"
)

// Value is a sealed interface for parameter values.
// Only Null, Bool, Int, Float, String and List implement it.
type Value interface {
	// Str renders the value the way Python's str() does.
	Str() string
	// Repr renders the value the way Python's repr() does.
	Repr() string

	paramValue() // Sealed
}

// Null is the absent value ("None").
type Null struct{}

func (Null) paramValue() {}
func (Null) Str() string { return "None" }
func (Null) Repr() string { return "None" }

// Bool is a boolean value.
type Bool bool

func (Bool) paramValue() {}

func (b Bool) Str() string {
	if b {
		return "True"
	}
	return "False"
}

func (b Bool) Repr() string { return b.Str() }

// Int is an integer value.
type Int int64

func (Int) paramValue() {}
func (i Int) Str() string { return fmt.Sprintf("%d", int64(i)) }
func (i Int) Repr() string { return i.Str() }

// Float is a floating point value. NaN marks a real number that has not
// been set yet.
type Float float64

func (Float) paramValue() {}
func (f Float) Str() string { return FormatFloat(float64(f)) }
func (f Float) Repr() string { return f.Str() }

// IsNaN reports whether f is the "unset real" marker.
func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

// String is a text value.
type String string

func (String) paramValue() {}
func (s String) Str() string { return string(s) }
func (s String) Repr() string { return QuoteString(string(s)) }

// List is an ordered sequence of values.
type List []Value

func (List) paramValue() {}

func (l List) Str() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.Repr()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (l List) Repr() string { return l.Str() }

// NaN returns the unset real marker.
func NaN() Float { return Float(math.NaN()) }

// Equal compares two values structurally. Unlike IEEE comparison, two NaN
// floats are equal so that unset reals survive round trips in tests.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return false
		}
		if av.IsNaN() || bv.IsNaN() {
			return av.IsNaN() && bv.IsNaN()
		}
		return av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Kind returns a short type name used in diagnostics and snapshots.
func Kind(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "str"
	case List:
		return "list"
	default:
		return "unknown"
	}
}

// FromAny converts a decoded Go value (YAML, JSON or CUE export) into a Value.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", v)
		}
		return Int(v), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	case []any:
		out := make(List, 0, len(v))
		for i, elem := range v {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, ev)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", x)
	}
}

// ToAny converts a Value back into plain Go data.
func ToAny(v Value) any {
	switch tv := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(tv)
	case Int:
		return int64(tv)
	case Float:
		return float64(tv)
	case String:
		return string(tv)
	case List:
		out := make([]any, len(tv))
		for i, elem := range tv {
			out[i] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}
