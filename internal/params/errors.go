package params

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// NameError reports an invalid child or attribute name.
type NameError struct {
	Node   string
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	node := e.Node
	if node == "" {
		node = RootTag
	}
	return fmt.Sprintf("cannot use name %q in %s: %s", e.Name, node, e.Reason)
}

// PathError reports a dotted path that does not resolve.
type PathError struct {
	Path    string
	Missing string
}

func (e *PathError) Error() string {
	if e.Missing != e.Path {
		return fmt.Sprintf("path %q: %q does not exist", e.Path, e.Missing)
	}
	return fmt.Sprintf("path %q does not exist", e.Path)
}

// UnknownSectionError aborts a read when the file has a section the tree
// does not.
type UnknownSectionError struct {
	Section string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("section [%s] has no matching parameter child", e.Section)
}

// UnknownOptionError aborts a read when a section has a key its node does
// not declare.
type UnknownOptionError struct {
	Section string
	Key     string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("option %q in section [%s] is not a declared parameter", e.Key, e.Section)
}

// Slot error codes.
const (
	SlotRange      = "SLOT_RANGE"
	SlotCollision  = "SLOT_COLLISION"
	PathCollision  = "PATH_COLLISION"
	UnsafeRemap    = "UNSAFE_REMAP"
	UnrecordedPath = "UNRECORDED_PATH"
	MissingPath    = "MISSING_PATH"
	NotRoot        = "NOT_ROOT"
	NoGeneral      = "NO_GENERAL"
	NoRecord       = "NO_RECORD"
)

// SlotError reports a rejected user-parameter slot operation. No state is
// modified when one is returned.
type SlotError struct {
	Code    string
	Slot    int
	Path    string
	Message string
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("user parameter %s: %s", e.Code, e.Message)
}

// IsSlotError reports whether err is a SlotError with the given code. An
// empty code matches any SlotError.
func IsSlotError(err error, code string) bool {
	var se *SlotError
	if !errors.As(err, &se) {
		return false
	}
	return code == "" || se.Code == code
}

// Diagnostic is a recoverable problem found while loading. Diagnostics are
// logged at warning level and returned alongside a nil error.
type Diagnostic struct {
	Code    string
	Message string
	Attrs   map[string]any
}

// Diagnostic codes.
const (
	DiagUnknownSlot   = "unknown_slot"
	DiagNoSolverTree  = "no_solver_tree"
	DiagStaleSideFile = "stale_side_file"
	DiagParFallback   = "par_fallback"
	DiagBadSlotMap    = "bad_slot_map"
)

func (d Diagnostic) String() string {
	return d.Code + ": " + d.Message
}

// warn logs d and appends it to diags.
func warn(logger *slog.Logger, diags []Diagnostic, d Diagnostic) []Diagnostic {
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"code", d.Code}
	for _, k := range slices.Sorted(maps.Keys(d.Attrs)) {
		args = append(args, k, d.Attrs[k])
	}
	logger.Warn(d.Message, args...)
	return append(diags, d)
}
