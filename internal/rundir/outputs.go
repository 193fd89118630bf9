package rundir

import (
	"fmt"
	"path/filepath"
	"sort"
)

func globNames(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return names, nil
}

// CheckpointFiles lists the multi-file checkpoint sets in dir, sorted.
func CheckpointFiles(dir string) ([]string, error) {
	return globNames(dir, CheckpointGlob)
}

// FieldFiles lists the ordinary field files in dir, checkpoints excluded,
// sorted.
func FieldFiles(dir string) ([]string, error) {
	all, err := globNames(dir, FieldGlob)
	if err != nil {
		return nil, err
	}
	chk, err := CheckpointFiles(dir)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(chk))
	for _, name := range chk {
		skip[name] = true
	}
	out := all[:0]
	for _, name := range all {
		if !skip[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// StartFiles lists the files a restart may start from in a session: every
// <short>0.* file, sorted by name.
func StartFiles(session, short string) ([]string, error) {
	return globNames(session, short+"0.*")
}
