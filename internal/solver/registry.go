// Package solver holds the solver descriptions and turns them into default
// parameter trees.
//
// Descriptions are CUE files. The built-in ones (nek, kth, cbox) are
// embedded; extra ones can be loaded from a directory. A description names
// the solver it extends and only lists what it adds or changes.
package solver

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/snek/internal/compiler"
)

//go:embed descriptions/*.cue
var builtin embed.FS

// Registry holds compiled solver descriptions by name.
type Registry struct {
	ctx   *cue.Context
	specs map[string]*compiler.SolverSpec
	order []string
}

// NewRegistry returns a registry loaded with the built-in descriptions.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		ctx:   cuecontext.New(),
		specs: make(map[string]*compiler.SolverSpec),
	}

	files, err := fs.Glob(builtin, "descriptions/*.cue")
	if err != nil {
		return nil, err
	}
	var specs []*compiler.SolverSpec
	for _, name := range files {
		src, err := builtin.ReadFile(name)
		if err != nil {
			return nil, err
		}
		v := r.ctx.CompileBytes(src, cue.Filename(path.Base(name)))
		compiled, err := compiler.CompileSolvers(v)
		if err != nil {
			return nil, fmt.Errorf("built-in solver %s: %w", name, err)
		}
		specs = append(specs, compiled...)
	}
	if err := r.add(specs); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadDir compiles the CUE package in dir and adds its solvers. A solver
// may extend a built-in one but not replace it.
func (r *Registry) LoadDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("solver descriptions: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("solver descriptions: not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("solver descriptions: no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return fmt.Errorf("solver descriptions: no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return fmt.Errorf("solver descriptions: loading CUE files: %w", inst.Err)
	}
	v := r.ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return fmt.Errorf("solver descriptions: building CUE value: %w", err)
	}

	specs, err := compiler.CompileSolvers(v)
	if err != nil {
		return err
	}
	return r.add(specs)
}

// add validates specs together with what is already registered, then
// registers them. Nothing is added when validation fails.
func (r *Registry) add(specs []*compiler.SolverSpec) error {
	all := make([]*compiler.SolverSpec, 0, len(r.order)+len(specs))
	for _, name := range r.order {
		all = append(all, r.specs[name])
	}
	all = append(all, specs...)

	if verrs := compiler.ValidateSet(all); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return errors.Join(errs...)
	}

	for _, s := range specs {
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return nil
}

// Names lists registered solvers in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(slices.Values(r.order))
}

// Spec returns the description of name.
func (r *Registry) Spec(name string) (*compiler.SolverSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Chain returns the inheritance chain of name, base first.
func (r *Registry) Chain(name string) ([]*compiler.SolverSpec, error) {
	return compiler.Linearize(r.specs, name)
}
