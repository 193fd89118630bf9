package solver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/snek/internal/compiler"
	"github.com/roach88/snek/internal/params"
	"github.com/roach88/snek/internal/rundir"
)

type pendingRecord struct {
	node      *params.Node
	names     map[string]int
	overwrite bool
}

// CreateDefaultParams builds the default parameter tree of solver name by
// applying its inheritance chain base first, then records the user
// parameters the descriptions publish.
func (r *Registry) CreateDefaultParams(name string) (*params.Node, error) {
	chain, err := r.Chain(name)
	if err != nil {
		return nil, err
	}

	root := params.New()
	var records []pendingRecord
	for _, spec := range chain {
		if err := applyNode(root, &spec.Params, spec.OverwriteUserParams, &records); err != nil {
			return nil, fmt.Errorf("solver %s: %w", spec.Name, err)
		}
	}

	// Slots are recorded once the whole tree exists, so that nek.general is
	// there whatever order the descriptions list their nodes in.
	for _, rec := range records {
		if _, err := rec.node.Record(rec.names, rec.overwrite); err != nil {
			return nil, fmt.Errorf("solver %s: %s: %w", name, rec.node.Path(), err)
		}
	}
	return root, nil
}

func applyNode(n *params.Node, spec *compiler.NodeSpec, overwrite bool, records *[]pendingRecord) error {
	if spec.Doc != "" {
		n.SetDoc(spec.Doc)
	}
	if spec.User != nil {
		n.SetUser(*spec.User)
	}
	if spec.Enabled != nil {
		n.SetEnabled(*spec.Enabled)
	}
	for _, a := range spec.Attrs {
		if err := n.Set(a.Name, a.Value); err != nil {
			return err
		}
	}
	if len(spec.UserParams) > 0 {
		names := make(map[string]int, len(spec.UserParams))
		for _, up := range spec.UserParams {
			names[up.Name] = up.Slot
		}
		*records = append(*records, pendingRecord{node: n, names: names, overwrite: overwrite})
	}
	for i := range spec.Children {
		child, err := n.SetChild(spec.Children[i].Name)
		if err != nil {
			return err
		}
		if err := applyNode(child, &spec.Children[i], overwrite, records); err != nil {
			return err
		}
	}
	return nil
}

// ApplyInternalFlags re-applies the user and enabled flags the descriptions
// of name set explicitly. A tree read back from disk may carry stale flags;
// nodes absent from the tree are skipped.
func (r *Registry) ApplyInternalFlags(root *params.Node, name string) error {
	chain, err := r.Chain(name)
	if err != nil {
		return err
	}
	var apply func(n *params.Node, spec *compiler.NodeSpec)
	apply = func(n *params.Node, spec *compiler.NodeSpec) {
		if spec.User != nil {
			n.SetUser(*spec.User)
		}
		if spec.Enabled != nil {
			n.SetEnabled(*spec.Enabled)
		}
		for i := range spec.Children {
			if child := n.Child(spec.Children[i].Name); child != nil {
				apply(child, &spec.Children[i])
			}
		}
	}
	for _, spec := range chain {
		apply(root, &spec.Params)
	}
	return nil
}

// Loaded is the result of LoadParams.
type Loaded struct {
	Params      *params.Node
	ShortName   string
	Diagnostics []params.Diagnostic
}

// LoadParams reads the parameters of a run directory. The structured
// snapshot is preferred, with the slot map side file applied on top when
// present. Without a snapshot the defaults of the detected solver are
// completed from <short>.par, which loses anything the .par file does not
// carry, and a par_fallback diagnostic is returned.
func (r *Registry) LoadParams(dir string) (*Loaded, error) {
	short, err := rundir.ShortName(dir)
	if err != nil {
		return nil, err
	}
	out := &Loaded{ShortName: short}

	root, diags, err := params.LoadSnapshot(filepath.Join(dir, params.SnapshotFile))
	switch {
	case err == nil:
		out.Diagnostics = append(out.Diagnostics, diags...)
		applySideFile(root, dir, out)
	case errors.Is(err, fs.ErrNotExist):
		parPath := filepath.Join(dir, short+".par")
		if _, statErr := os.Stat(parPath); statErr != nil {
			return nil, fmt.Errorf("load params: neither %s nor %s found in %s", params.SnapshotFile, short+".par", dir)
		}
		root, err = r.CreateDefaultParams(short)
		if err != nil {
			return nil, err
		}
		d := params.Diagnostic{
			Code:    params.DiagParFallback,
			Message: "loading from a par file will not have full details of the simulation",
			Attrs:   map[string]any{"path": parPath},
		}
		slog.Warn(d.Message, "path", parPath)
		out.Diagnostics = append(out.Diagnostics, d)

		diags, err := params.ReadPar(root, parPath)
		if err != nil {
			return nil, fmt.Errorf("load params: %w", err)
		}
		out.Diagnostics = append(out.Diagnostics, diags...)
	default:
		return nil, fmt.Errorf("load params: %w", err)
	}

	if _, known := r.Spec(short); known {
		if err := r.ApplyInternalFlags(root, short); err != nil {
			return nil, err
		}
	}
	out.Params = root
	return out, nil
}

// applySideFile replaces the snapshot's slot map with the side file's. A
// side file that cannot be read or holds an invalid map is reported and the
// snapshot's map is kept.
func applySideFile(root *params.Node, dir string, out *Loaded) {
	if params.General(root) == nil {
		return
	}
	path := filepath.Join(dir, params.SlotMapFile)
	side, err := params.LoadSlotMap(path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err == nil {
		err = params.SetRecordedUserParams(root, side)
	}
	if err != nil {
		d := params.Diagnostic{
			Code:    params.DiagStaleSideFile,
			Message: "invalid user parameter map, keeping the one from the snapshot",
			Attrs:   map[string]any{"path": path, "error": err.Error()},
		}
		slog.Warn(d.Message, "path", path, "error", err)
		out.Diagnostics = append(out.Diagnostics, d)
	}
}

// SaveParams writes the files describing the parameters of a run into dir:
// <short>.par, the structured snapshot, the slot map side file and the
// solver identification file.
func (r *Registry) SaveParams(root *params.Node, dir, short string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	if err := params.SavePar(root, filepath.Join(dir, short+".par")); err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	if err := params.SaveSnapshot(root, filepath.Join(dir, params.SnapshotFile)); err != nil {
		return fmt.Errorf("save params: %w", err)
	}

	info := rundir.InfoSolver{ShortName: short}
	if chain, err := r.Chain(short); err == nil {
		for _, spec := range chain[:len(chain)-1] {
			info.Extends = append(info.Extends, spec.Name)
		}
		if nek := root.Child(params.SolverTag); nek != nil {
			for _, c := range nek.Children() {
				if !c.User() {
					info.Sections = append(info.Sections, c.Tag())
				}
				if !c.Enabled() {
					info.Disabled = append(info.Disabled, c.Tag())
				}
			}
		}
	}
	if err := rundir.WriteInfoSolver(dir, info); err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	slog.Debug("params saved", "dir", dir, "solver", short)
	return nil
}
