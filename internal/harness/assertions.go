package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/snek/internal/restart"
	"github.com/roach88/snek/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", event.Step, event.Action)
		if event.Code != 0 {
			fmt.Fprintf(&buf, " %d", event.Code)
		}
		if event.Error != "" {
			fmt.Fprintf(&buf, " error=%q", event.Error)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// AssertionContext gives assertions access to the run directory, the
// registry and the last successful restart.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Run     string
	RunID   string
	Restart *restart.Result

	rel func(string) string
}

func (a *AssertionContext) path(p string) string {
	return filepath.Join(a.Run, p)
}

func assertStatus(trace []TraceEvent, actx *AssertionContext, assertion Assertion) error {
	st, err := restart.ClassifySession(actx.Run, 0)
	if err != nil {
		return err
	}
	if st.Code != assertion.Code {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("status %d", assertion.Code),
			Actual:   st.String(),
			Trace:    trace,
		}
	}
	return nil
}

func assertExists(trace []TraceEvent, actx *AssertionContext, assertion Assertion) error {
	_, err := os.Lstat(actx.path(assertion.Path))
	exists := err == nil
	want := assertion.Type == AssertExists
	if exists != want {
		actual := "missing"
		if exists {
			actual = "exists"
		}
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%s %s", assertion.Path, assertion.Type),
			Actual:   actual,
			Trace:    trace,
		}
	}
	return nil
}

func assertLink(trace []TraceEvent, actx *AssertionContext, assertion Assertion) error {
	target, err := os.Readlink(actx.path(assertion.Path))
	if err != nil {
		return &AssertionError{
			Type:     AssertLink,
			Expected: fmt.Sprintf("%s -> %s", assertion.Path, assertion.Target),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if got := actx.rel(target); got != assertion.Target {
		return &AssertionError{
			Type:     AssertLink,
			Expected: fmt.Sprintf("%s -> %s", assertion.Path, assertion.Target),
			Actual:   fmt.Sprintf("%s -> %s", assertion.Path, got),
			Trace:    trace,
		}
	}
	return nil
}

func assertParam(trace []TraceEvent, actx *AssertionContext, assertion Assertion) error {
	if actx.Restart == nil {
		return errors.New("param assertion needs a successful restart step")
	}
	v, err := actx.Restart.Params.GetPath(assertion.Path)
	if err != nil {
		return err
	}
	if got := actx.rel(v.Str()); got != *assertion.Value {
		return &AssertionError{
			Type:     AssertParam,
			Expected: fmt.Sprintf("%s = %q", assertion.Path, *assertion.Value),
			Actual:   fmt.Sprintf("%s = %q", assertion.Path, got),
			Trace:    trace,
		}
	}
	return nil
}

func assertError(trace []TraceEvent, result *Result, assertion Assertion) error {
	last := result.lastError()
	if !strings.Contains(last, assertion.Contains) {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("error containing %q", assertion.Contains),
			Actual:   fmt.Sprintf("%q", last),
			Trace:    trace,
		}
	}
	return nil
}

func assertHistory(trace []TraceEvent, actx *AssertionContext, assertion Assertion) error {
	history, err := actx.Store.StatusHistory(actx.Ctx, actx.RunID)
	if err != nil {
		return err
	}
	codes := make([]int, 0, len(history))
	for _, o := range history {
		codes = append(codes, o.Code)
	}
	if fmt.Sprint(codes) != fmt.Sprint(assertion.Codes) {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprint(assertion.Codes),
			Actual:   fmt.Sprint(codes),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatus:
			err = assertStatus(result.Trace, actx, assertion)
		case AssertExists, AssertMissing:
			err = assertExists(result.Trace, actx, assertion)
		case AssertLink:
			err = assertLink(result.Trace, actx, assertion)
		case AssertParam:
			err = assertParam(result.Trace, actx, assertion)
		case AssertError:
			err = assertError(result.Trace, result, assertion)
		case AssertHistory:
			err = assertHistory(result.Trace, actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
