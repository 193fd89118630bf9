package compiler

import (
	"fmt"
	"math"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/snek/internal/literal"
	"github.com/roach88/snek/internal/value"
)

// CompileSolvers compiles every field of the top-level "solver" struct.
func CompileSolvers(v cue.Value) ([]*SolverSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	solvers := v.LookupPath(cue.ParsePath("solver"))
	if !solvers.Exists() {
		return nil, nil
	}
	iter, err := solvers.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []*SolverSpec
	for iter.Next() {
		spec, err := CompileSolver(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// CompileSolver parses a CUE value into a SolverSpec. The value should be
// the solver struct itself:
//
//	solver: kth: {
//		extends: "nek"
//		doc:     "KTH framework toolbox"
//		params: children: nek: children: chkpoint: {
//			attrs: {read_chkpt: false, chkp_fnumber: 1}
//		}
//	}
//
// Attribute values map to parameter values; the string "<real>" stands for
// an unset real number.
func CompileSolver(v cue.Value) (*SolverSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &SolverSpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	var err error
	if spec.Doc, err = optionalString(v, "doc"); err != nil {
		return nil, err
	}
	if spec.Extends, err = optionalString(v, "extends"); err != nil {
		return nil, err
	}
	if ow := v.LookupPath(cue.ParsePath("overwrite_user_params")); ow.Exists() {
		if spec.OverwriteUserParams, err = ow.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, &CompileError{
			Field:   "params",
			Message: "params is required",
			Pos:     v.Pos(),
		}
	}
	spec.Params, err = parseNode(paramsVal, "params")
	if err != nil {
		return nil, err
	}
	spec.Params.Name = "params"
	return spec, nil
}

func parseNode(v cue.Value, field string) (NodeSpec, error) {
	var node NodeSpec
	if v.IncompleteKind() != cue.StructKind {
		return node, &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}

	var err error
	if node.Doc, err = optionalString(v, "doc"); err != nil {
		return node, err
	}
	if node.User, err = optionalBool(v, "user"); err != nil {
		return node, err
	}
	if node.Enabled, err = optionalBool(v, "enabled"); err != nil {
		return node, err
	}

	if attrs := v.LookupPath(cue.ParsePath("attrs")); attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return node, formatCUEError(err)
		}
		for iter.Next() {
			val, err := parseValue(iter.Value(), field+".attrs."+iter.Label())
			if err != nil {
				return node, err
			}
			node.Attrs = append(node.Attrs, Attr{Name: iter.Label(), Value: val})
		}
	}

	if ups := v.LookupPath(cue.ParsePath("user_params")); ups.Exists() {
		iter, err := ups.Fields()
		if err != nil {
			return node, formatCUEError(err)
		}
		for iter.Next() {
			slot, err := iter.Value().Int64()
			if err != nil {
				return node, &CompileError{
					Field:   field + ".user_params." + iter.Label(),
					Message: "slot must be an integer",
					Pos:     iter.Value().Pos(),
				}
			}
			node.UserParams = append(node.UserParams, UserParam{Name: iter.Label(), Slot: int(slot)})
		}
	}

	if children := v.LookupPath(cue.ParsePath("children")); children.Exists() {
		iter, err := children.Fields()
		if err != nil {
			return node, formatCUEError(err)
		}
		for iter.Next() {
			child, err := parseNode(iter.Value(), field+".children."+iter.Label())
			if err != nil {
				return node, err
			}
			child.Name = iter.Label()
			node.Children = append(node.Children, child)
		}
	}

	return node, nil
}

// parseValue converts a concrete CUE value into a parameter value.
func parseValue(v cue.Value, field string) (value.Value, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{Field: field, Message: "default must be concrete", Pos: v.Pos()}
	}
	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Int(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return nil, formatCUEError(err)
		}
		return value.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if s == literal.Real {
			return value.NaN(), nil
		}
		return value.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out value.List
		for i := 0; iter.Next(); i++ {
			elem, err := parseValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		if out == nil {
			out = value.List{}
		}
		return out, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (*bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	b, err := f.Bool()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
