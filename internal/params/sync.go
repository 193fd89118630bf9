package params

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/snek/internal/literal"
	"github.com/roach88/snek/internal/parfile"
	"github.com/roach88/snek/internal/value"
)

// SolverTag is the child of the root holding one node per configuration
// file section.
const SolverTag = "nek"

// Internal section markers, present only between WriteSection and tidy.
const (
	enabledKey = "_enabled"
	userKey    = "_user"
)

var userParamKey = regexp.MustCompile(`(?i)^userparam(\d+)$`)

// SyncOptions controls how a tree is rendered to a configuration file.
type SyncOptions struct {
	// KeepPrunable writes "<real>", "" and "nan" values instead of skipping them.
	KeepPrunable bool
	// KeepAllSections keeps disabled sections.
	KeepAllSections bool
}

// SolverNode returns root.nek, checking that root really is a tree root.
func SolverNode(root *Node) (*Node, error) {
	if !root.IsRoot() {
		return nil, fmt.Errorf("expected the %q root, got %q", RootTag, root.tag)
	}
	nek := root.Child(SolverTag)
	if nek == nil {
		return nil, &PathError{Path: SolverTag, Missing: SolverTag}
	}
	return nek, nil
}

// SyncPar renders the children of n as sections, in order. A node without
// children becomes a single section of its own.
func SyncPar(n *Node, opts SyncOptions) (*parfile.File, error) {
	f := parfile.New()
	sections := n.Children()
	if len(sections) == 0 {
		sections = []*Node{n}
	}
	for _, child := range sections {
		if err := WriteSection(f, child, opts); err != nil {
			return nil, err
		}
	}
	tidy(f, opts.KeepAllSections)
	return f, nil
}

// WriteSection appends the section for n to f. Attribute names are
// camel-cased and values encoded with the literal codec; a value naming
// another attribute of the same node is camel-cased as well. Recorded user
// parameters become userParamNN keys whose values are read from the whole
// tree at call time. The section keeps its _enabled/_user markers until
// tidied.
func WriteSection(f *parfile.File, n *Node, opts SyncOptions) error {
	name := SectionName(n)
	sec := f.Section(name)
	if sec == nil {
		var err error
		if sec, err = f.AddSection(name); err != nil {
			return err
		}
	}

	for _, attr := range n.attrOrder {
		ext := literal.ToExternal(n.attrs[attr])
		if !opts.KeepPrunable && literal.Prunable(ext) {
			continue
		}
		if n.Has(ext) {
			ext = Camelize(ext)
		}
		sec.Set(Camelize(attr), ext)
	}
	sec.Set(enabledKey, literal.ToExternal(value.Bool(n.enabled)))
	sec.Set(userKey, literal.ToExternal(value.Bool(n.user)))

	if len(n.recorded) == 0 {
		return nil
	}
	root := n.Root()
	for _, slot := range slices.Sorted(maps.Keys(n.recorded)) {
		if err := checkSlot(slot); err != nil {
			return err
		}
		path := n.recorded[slot]
		v, err := root.GetPath(path)
		if err != nil {
			return fmt.Errorf("user parameter %d: %w", slot, err)
		}
		sec.Set(fmt.Sprintf("userParam%02d", slot), literal.ToExternal(v))
	}
	return nil
}

// tidy drops the internal markers and removes disabled sections.
func tidy(f *parfile.File, keepAll bool) {
	for _, sec := range slices.Clone(f.Sections()) {
		sec.Delete(userKey)
		enabled := keepAll
		if v, ok := sec.Get(enabledKey); ok && v == literal.Yes {
			enabled = true
		}
		if enabled {
			sec.Delete(enabledKey)
		} else {
			f.RemoveSection(sec.Name)
		}
	}
}

// ParString previews the configuration file for root.
func ParString(root *Node) (string, error) {
	nek, err := SolverNode(root)
	if err != nil {
		return "", err
	}
	f, err := SyncPar(nek, SyncOptions{})
	if err != nil {
		return "", err
	}
	return f.String(), nil
}

// SavePar writes the configuration file for root to path and, when user
// parameters are recorded, the slot map side file next to it.
func SavePar(root *Node, path string) error {
	nek, err := SolverNode(root)
	if err != nil {
		return err
	}
	f, err := SyncPar(nek, SyncOptions{})
	if err != nil {
		return err
	}
	if err := f.WriteFile(path); err != nil {
		return err
	}
	if m := RecordedUserParams(root); m != nil {
		return SaveSlotMap(filepath.Dir(path), m)
	}
	return nil
}

// ReadPar populates root from the configuration file at path. The slot map
// comes from the side file next to path when present, else from the map
// already recorded in root.
func ReadPar(root *Node, path string) ([]Diagnostic, error) {
	f, err := parfile.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	slots := RecordedUserParams(root)
	sidePath := filepath.Join(filepath.Dir(path), SlotMapFile)
	loaded, err := LoadSlotMap(sidePath)
	if err == nil {
		err = checkSlotMap(loaded)
	}
	switch {
	case err == nil:
		slots = loaded
	case errors.Is(err, fs.ErrNotExist):
	default:
		diags = warn(nil, diags, Diagnostic{
			Code:    DiagStaleSideFile,
			Message: "cannot read slot map, using the in-memory map",
			Attrs:   map[string]any{"path": sidePath, "error": err.Error()},
		})
	}

	more, err := CompleteFromPar(root, f, slots)
	return append(diags, more...), err
}

// CompleteFromPar sets the values found in f on root.nek's children.
//
// Every section must match a child (header lower-cased, leading "_"
// stripped) and every key a declared attribute; otherwise nothing is set and
// an error is returned. userParamNN keys are routed through slots to the
// attribute they were published from; a slot missing from slots, or mapped
// to a path that no longer resolves, yields a diagnostic and the value is
// dropped.
func CompleteFromPar(root *Node, f *parfile.File, slots map[int]string) ([]Diagnostic, error) {
	nek, err := SolverNode(root)
	if err != nil {
		return nil, err
	}

	type assignment struct {
		node *Node
		name string
		path string
		val  value.Value
	}
	var (
		plan  []assignment
		diags []Diagnostic
	)

	for _, sec := range f.Sections() {
		child := nek.Child(childName(sec.Name))
		if child == nil {
			return nil, &UnknownSectionError{Section: sec.Name}
		}
		for _, key := range sec.Keys() {
			raw, _ := sec.Get(key)
			val := literal.ToNative(raw)

			if m := userParamKey.FindStringSubmatch(key); m != nil {
				slot, _ := strconv.Atoi(m[1])
				if err := checkSlot(slot); err != nil {
					return nil, err
				}
				path, ok := slots[slot]
				if !ok {
					diags = warn(nil, diags, Diagnostic{
						Code:    DiagUnknownSlot,
						Message: "user parameter slot is not mapped, value discarded",
						Attrs:   map[string]any{"slot": slot, "section": sec.Name},
					})
					continue
				}
				if _, err := root.GetPath(path); err != nil {
					diags = warn(nil, diags, Diagnostic{
						Code:    DiagStaleSideFile,
						Message: "user parameter slot points to a missing attribute, value discarded",
						Attrs:   map[string]any{"slot": slot, "path": path},
					})
					continue
				}
				plan = append(plan, assignment{path: path, val: val})
				continue
			}

			name := optionName(key)
			if !child.Has(name) {
				return nil, &UnknownOptionError{Section: sec.Name, Key: key}
			}
			plan = append(plan, assignment{node: child, name: name, val: val})
		}
	}

	for _, a := range plan {
		if a.node != nil {
			err = a.node.Set(a.name, a.val)
		} else {
			err = root.SetPath(a.path, a.val)
		}
		if err != nil {
			return diags, err
		}
	}
	slog.Debug("parameters completed from par file", "sections", len(f.Sections()), "values", len(plan))
	return diags, nil
}

// AutodocPar appends an ini code block showing n's sections, disabled ones
// and unset reals included, to n's documentation.
func AutodocPar(n *Node, indent int) error {
	f, err := SyncPar(n, SyncOptions{KeepPrunable: true, KeepAllSections: true})
	if err != nil {
		return err
	}
	ini := f.String()
	if ini == "" {
		return nil
	}
	block := "\n.. code-block:: ini\n\n" + indentLines(ini, "   ")
	n.doc += indentLines(block, strings.Repeat(" ", indent))
	return nil
}

// indentLines prefixes every non-blank line of s.
func indentLines(s, prefix string) string {
	if prefix == "" {
		return s
	}
	lines := strings.SplitAfter(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "")
}

// saveFile writes data to path, creating parent directories.
func saveFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
