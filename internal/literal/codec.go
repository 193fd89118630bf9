// Package literal converts parameter values to and from the textual
// literals understood by the solver's configuration file.
package literal

import (
	"slices"

	"github.com/roach88/snek/internal/value"
)

// Solver-specific literals.
const (
	Real = "<real>"
	None = "none"
	Yes  = "yes"
	No   = "no"
)

// toSolver is keyed by the printed form of a value, never by the value
// itself, so that Int(1) and Bool(true) cannot share an entry.
var toSolver = map[string]string{
	"None":  None,
	"True":  Yes,
	"False": No,
}

var fromSolver = map[string]value.Value{
	Real: value.NaN(),
	None: value.Null{},
	Yes:  value.Bool(true),
	No:   value.Bool(false),
}

// prunable literals are never written to a configuration file.
var prunable = []string{Real, "", "nan"}

// ToExternal renders v for the configuration file. Only a NaN float becomes
// "<real>"; the string "nan" stays as is (and is pruned on write).
func ToExternal(v value.Value) string {
	if f, ok := v.(value.Float); ok && f.IsNaN() {
		return Real
	}
	s := v.Str()
	if lit, ok := toSolver[s]; ok {
		return lit
	}
	return s
}

// ToNative parses a configuration file literal. It never fails: text that is
// neither a solver literal nor a valid Python-style literal is returned as a
// String.
func ToNative(s string) value.Value {
	if v, ok := fromSolver[s]; ok {
		return v
	}
	if v, err := Parse(s); err == nil {
		return v
	}
	return value.String(s)
}

// Prunable reports whether an external literal must be omitted from output.
func Prunable(external string) bool {
	return slices.Contains(prunable, external)
}
