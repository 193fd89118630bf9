package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a directory scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Run is the name of the run directory. Defaults to <solver>_run.
	Run string `yaml:"run,omitempty"`

	// Solver, when set, saves the solver's default parameters in the run
	// directory before the steps execute.
	Solver string `yaml:"solver,omitempty"`

	// Layout is materialised inside the run directory.
	Layout Layout `yaml:"layout"`

	// Steps are applied in order. A failing step is recorded in the
	// trace and does not stop the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final directory, trace and registry.
	Assertions []Assertion `yaml:"assertions"`
}

// Layout lists files, directories and symlinks relative to the run
// directory.
type Layout struct {
	Dirs     []string          `yaml:"dirs,omitempty"`
	Files    map[string]string `yaml:"files,omitempty"`
	Symlinks map[string]string `yaml:"symlinks,omitempty"`
}

// Step is one action applied to the run directory.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Path is used by touch, mkdir and remove, and by status to classify a
	// session other than session_00.
	Path string `yaml:"path,omitempty"`

	// Restart options.
	StartFrom  string `yaml:"start_from,omitempty"`
	Checkpoint int    `yaml:"checkpoint,omitempty"`
	Session    *int   `yaml:"session,omitempty"`
	NewDir     bool   `yaml:"new_dir,omitempty"`
	OnlyCheck  bool   `yaml:"only_check,omitempty"`
	SkipVerify bool   `yaml:"skip_verify,omitempty"`
	// From is the path restarted from, relative to the run directory.
	From string `yaml:"from,omitempty"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Code is the expected status code (status).
	Code int `yaml:"code,omitempty"`

	// Path is relative to the run directory (exists, missing, link) or a
	// dotted parameter path (param).
	Path string `yaml:"path,omitempty"`

	// Target is the expected symlink target (link).
	Target string `yaml:"target,omitempty"`

	// Value is the expected parameter value as printed (param).
	Value *string `yaml:"value,omitempty"`

	// Contains is a substring of the last step error (error).
	Contains string `yaml:"contains,omitempty"`

	// Codes are the recorded status codes (history).
	Codes []int `yaml:"codes,omitempty"`
}

// Step actions.
const (
	ActionStatus  = "status"
	ActionRestart = "restart"
	ActionTouch   = "touch"
	ActionMkdir   = "mkdir"
	ActionRemove  = "remove"
)

// Assertion types.
const (
	AssertStatus  = "status"
	AssertExists  = "exists"
	AssertMissing = "missing"
	AssertLink    = "link"
	AssertParam   = "param"
	AssertError   = "error"
	AssertHistory = "history"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file of dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []*Scenario
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// runName is the run directory name of s.
func (s *Scenario) runName() string {
	switch {
	case s.Run != "":
		return s.Run
	case s.Solver != "":
		return s.Solver + "_run"
	default:
		return "run"
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if strings.ContainsAny(s.Run, `/\`) {
		return fmt.Errorf("run must be a plain directory name, got %q", s.Run)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Action {
	case ActionStatus, ActionRestart:
	case ActionTouch, ActionMkdir, ActionRemove:
		if st.Path == "" {
			return fmt.Errorf("steps[%d]: path is required for %s", index, st.Action)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	if err := relative(st.Path); err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus:
		if a.Code == 0 {
			return fmt.Errorf("assertions[%d]: code is required for status", index)
		}
	case AssertExists, AssertMissing:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertLink:
		if a.Path == "" || a.Target == "" {
			return fmt.Errorf("assertions[%d]: path and target are required for link", index)
		}
	case AssertParam:
		if a.Path == "" || a.Value == nil {
			return fmt.Errorf("assertions[%d]: path and value are required for param", index)
		}
	case AssertError:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for error", index)
		}
	case AssertHistory:
		if a.Codes == nil {
			return fmt.Errorf("assertions[%d]: codes is required for history", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Type != AssertParam {
		if err := relative(a.Path); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	return nil
}

// relative rejects absolute paths so scenarios cannot touch anything
// outside their temporary directory.
func relative(p string) error {
	if filepath.IsAbs(p) {
		return fmt.Errorf("path %q must be relative", p)
	}
	return nil
}
