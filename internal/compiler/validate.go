package compiler

import (
	"fmt"
	"regexp"
)

// Validation error codes (E100-E199)
const (
	// SolverSpec errors (E101-E109)
	ErrSolverNoName     = "E101" // solver name is required
	ErrInvalidName      = "E102" // node or attribute name is not an identifier
	ErrDuplicateName    = "E103" // attribute and child share a name
	ErrSlotRange        = "E104" // user parameter slot outside [1, 20]
	ErrDuplicateSlot    = "E105" // two user parameters share a slot
	ErrUnknownUserParam = "E106" // user parameter names an undeclared attribute
	ErrSelfExtends      = "E107" // solver extends itself

	// Solver set errors (E110-E119)
	ErrUnknownBase     = "E110" // extends names a solver that does not exist
	ErrDuplicateSolver = "E111" // two descriptions define the same solver
	ErrExtendsCycle    = "E112" // extends chain loops
)

// User-parameter slot bounds, mirrored from the solver's userParam01..20.
const (
	minSlot = 1
	maxSlot = 20
)

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks one compiled solver description.
// Returns all errors found (does not fail-fast).
func Validate(spec *SolverSpec) []ValidationError {
	var errs []ValidationError

	if spec.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "solver name is required",
			Code:    ErrSolverNoName,
		})
	}
	if spec.Extends != "" && spec.Extends == spec.Name {
		errs = append(errs, ValidationError{
			Field:   "extends",
			Message: fmt.Sprintf("solver %q extends itself", spec.Name),
			Code:    ErrSelfExtends,
		})
	}

	slots := make(map[int]string)
	errs = append(errs, validateNode(&spec.Params, "params", spec.Extends == "", slots)...)
	return errs
}

func validateNode(n *NodeSpec, path string, standalone bool, slots map[int]string) []ValidationError {
	var errs []ValidationError

	attrs := make(map[string]bool, len(n.Attrs))
	for _, a := range n.Attrs {
		if !identPattern.MatchString(a.Name) {
			errs = append(errs, ValidationError{
				Field:   path + ".attrs." + a.Name,
				Message: fmt.Sprintf("invalid attribute name %q", a.Name),
				Code:    ErrInvalidName,
			})
		}
		attrs[a.Name] = true
	}

	for _, c := range n.Children {
		if !identPattern.MatchString(c.Name) {
			errs = append(errs, ValidationError{
				Field:   path + ".children." + c.Name,
				Message: fmt.Sprintf("invalid section name %q", c.Name),
				Code:    ErrInvalidName,
			})
		}
		if attrs[c.Name] {
			errs = append(errs, ValidationError{
				Field:   path + ".children." + c.Name,
				Message: fmt.Sprintf("%q is both an attribute and a child", c.Name),
				Code:    ErrDuplicateName,
			})
		}
	}

	prefix := ""
	if path != "params" {
		prefix = path[len("params."):] + "."
	}
	for _, up := range n.UserParams {
		field := path + ".user_params." + up.Name
		if up.Slot < minSlot || up.Slot > maxSlot {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("slot %d outside [%d, %d]", up.Slot, minSlot, maxSlot),
				Code:    ErrSlotRange,
			})
			continue
		}
		if other, dup := slots[up.Slot]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("slot %d already used for %q", up.Slot, other),
				Code:    ErrDuplicateSlot,
			})
		}
		slots[up.Slot] = prefix + up.Name

		// A derived solver may publish attributes its base declares.
		if standalone && !attrs[up.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("attribute %q is not declared", up.Name),
				Code:    ErrUnknownUserParam,
			})
		}
	}

	for i := range n.Children {
		c := &n.Children[i]
		errs = append(errs, validateNode(c, path+"."+c.Name, standalone, slots)...)
	}
	return errs
}

// ValidateSet checks a set of solver descriptions together: unique names,
// known bases and no inheritance loops.
func ValidateSet(specs []*SolverSpec) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]bool, len(specs))
	for _, s := range specs {
		if byName[s.Name] {
			errs = append(errs, ValidationError{
				Field:   "solver." + s.Name,
				Message: fmt.Sprintf("solver %q defined more than once", s.Name),
				Code:    ErrDuplicateSolver,
			})
		}
		byName[s.Name] = true
	}

	for _, s := range specs {
		errs = append(errs, Validate(s)...)
		if s.Extends != "" && !byName[s.Extends] {
			errs = append(errs, ValidationError{
				Field:   "solver." + s.Name + ".extends",
				Message: fmt.Sprintf("unknown base solver %q", s.Extends),
				Code:    ErrUnknownBase,
			})
		}
	}

	for _, c := range AnalyzeExtends(specs) {
		errs = append(errs, ValidationError{
			Field:   "extends",
			Message: c.Message,
			Code:    ErrExtendsCycle,
		})
	}
	return errs
}
