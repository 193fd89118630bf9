// Package fsutil holds small filesystem helpers shared by the run-directory
// code: directory versioning and emptiness checks.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// IsEmptyDir reports whether path is an existing directory with no entries.
func IsEmptyDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = f.Readdirnames(1)
	return errors.Is(err, io.EOF)
}

// occupied reports whether path exists and is not an empty directory.
// Empty directories left behind by setup code count as free.
func occupied(path string) (bool, error) {
	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !IsEmptyDir(path), nil
}

// splitSuffixes splits a file name into its stem and the whole block of
// suffixes: "case.tar.gz" gives ("case", ".tar.gz"). Leading dots belong to
// the stem and a name ending in "." has no suffixes.
func splitSuffixes(name string) (stem, suffixes string) {
	if strings.HasSuffix(name, ".") {
		return name, ""
	}
	rest := strings.TrimLeft(name, ".")
	lead := name[:len(name)-len(rest)]
	i := strings.IndexByte(rest, '.')
	if i < 0 {
		return name, ""
	}
	return lead + rest[:i], rest[i:]
}

// WithIndex inserts "_NN" between the stem of path and its suffixes.
func WithIndex(path string, i int) string {
	dir, name := filepath.Split(path)
	stem, suffixes := splitSuffixes(name)
	return dir + fmt.Sprintf("%s_%02d%s", stem, i, suffixes)
}

// NextPath returns base itself when it is free, otherwise the first free
// base_NN (NN counting from 00). With forceSuffix base is never returned.
func NextPath(base string, forceSuffix bool) (string, error) {
	_, p, err := NextPathSuffix(base, forceSuffix)
	return p, err
}

// NextPathSuffix is NextPath that also returns the chosen index, -1 when
// base was returned unchanged.
func NextPathSuffix(base string, forceSuffix bool) (int, string, error) {
	if !forceSuffix {
		busy, err := occupied(base)
		if err != nil {
			return 0, "", err
		}
		if !busy {
			return -1, base, nil
		}
	}

	for i := 0; ; i++ {
		candidate := WithIndex(base, i)
		busy, err := occupied(candidate)
		if err != nil {
			return 0, "", err
		}
		if !busy {
			slog.Debug("next path available", "path", candidate)
			return i, candidate, nil
		}
		slog.Debug("path exists", "path", candidate)
	}
}
