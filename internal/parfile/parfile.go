// Package parfile reads and writes the INI-style parameter file consumed by
// the solver.
//
// The dialect matches what the solver expects:
//   - "[SECTION]" headers, kept in file order
//   - "key = value" pairs; "=" or ":" delimit, the first one wins
//   - case-sensitive keys
//   - "#" or ";" starts a full-line comment, or an inline comment when
//     preceded by a space
//   - indented lines continue the previous value; an indented blank line
//     keeps an empty line inside the value
//
// Reading goes through gopkg.in/ini.v1. Output is rendered here so that it
// stays byte-stable and free of ini.v1's quoting: sections and keys are
// written in insertion order, each section followed by one blank line.
package parfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

var loadOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	SpaceBeforeInlineComment:   true,
	PreserveSurroundedQuote:    true,
	IgnoreContinuation:         true,
	AllowShadows:               true,
	AllowDuplicateShadowValues: true,
	AllowNonUniqueSections:     true,
}

// ParseError reports malformed input.
type ParseError struct {
	Section string
	Message string
}

func (e *ParseError) Error() string {
	if e.Section == "" {
		return e.Message
	}
	return fmt.Sprintf("section %q: %s", e.Section, e.Message)
}

// File is an ordered collection of sections.
type File struct {
	ini *ini.File
}

// Section is an ordered list of key/value pairs under one header.
type Section struct {
	Name string
	sec  *ini.Section
}

// New returns an empty file.
func New() *File {
	return &File{ini: ini.Empty()}
}

// Sections returns the sections in order.
func (f *File) Sections() []*Section {
	var out []*Section
	for _, s := range f.ini.Sections() {
		if s.Name() == ini.DefaultSection {
			continue
		}
		out = append(out, &Section{Name: s.Name(), sec: s})
	}
	return out
}

// Section returns the named section or nil.
func (f *File) Section(name string) *Section {
	if name == ini.DefaultSection {
		return nil
	}
	s, err := f.ini.GetSection(name)
	if err != nil {
		return nil
	}
	return &Section{Name: name, sec: s}
}

// AddSection appends a new, empty section.
func (f *File) AddSection(name string) (*Section, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("section name must not be empty")
	case name == ini.DefaultSection:
		return nil, fmt.Errorf("section name %q is reserved", name)
	case f.Section(name) != nil:
		return nil, fmt.Errorf("section %q already exists", name)
	}
	s, err := f.ini.NewSection(name)
	if err != nil {
		return nil, err
	}
	return &Section{Name: name, sec: s}, nil
}

// RemoveSection deletes the named section, reporting whether it existed.
func (f *File) RemoveSection(name string) bool {
	if f.Section(name) == nil {
		return false
	}
	f.ini.DeleteSection(name)
	return true
}

// Set assigns key, appending it if new and keeping its position otherwise.
func (s *Section) Set(key, val string) {
	if s.sec.HasKey(key) {
		s.sec.Key(key).SetValue(val)
		return
	}
	// NewKey only fails on an empty name.
	_, _ = s.sec.NewKey(key, val)
}

// Get returns the value for key.
func (s *Section) Get(key string) (string, bool) {
	if !s.sec.HasKey(key) {
		return "", false
	}
	return s.sec.Key(key).Value(), true
}

// Keys returns the keys in order.
func (s *Section) Keys() []string {
	return s.sec.KeyStrings()
}

// Delete removes key, reporting whether it existed.
func (s *Section) Delete(key string) bool {
	if !s.sec.HasKey(key) {
		return false
	}
	s.sec.DeleteKey(key)
	return true
}

// WriteTo writes the file in the solver dialect.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, s := range f.Sections() {
		fmt.Fprintf(&buf, "[%s]\n", s.Name)
		for _, k := range s.sec.Keys() {
			v := strings.ReplaceAll(k.Value(), "\n", "\n\t")
			fmt.Fprintf(&buf, "%s = %s\n", k.Name(), v)
		}
		buf.WriteString("\n")
	}
	return buf.WriteTo(w)
}

// String renders the file as text.
func (f *File) String() string {
	var sb strings.Builder
	_, _ = f.WriteTo(&sb)
	return sb.String()
}

// WriteFile writes the file to path.
func (f *File) WriteFile(path string) error {
	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.WriteTo(fp); err != nil {
		fp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fp.Close()
}

// ReadFile parses the file at path.
func ReadFile(path string) (*File, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	f, err := Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse reads a file in the solver dialect. Keys outside a section,
// duplicate sections and duplicate keys within a section are errors.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	opts := loadOptions
	opts.ReaderBufferSize = len(data)
	src, err := ini.LoadSources(opts, data)
	if err != nil {
		return nil, &ParseError{Message: err.Error()}
	}

	f := New()
	for _, s := range src.Sections() {
		name := s.Name()
		if name == ini.DefaultSection {
			if len(s.Keys()) > 0 {
				return nil, &ParseError{Message: "key outside of any section"}
			}
			continue
		}
		dst, err := f.AddSection(name)
		if err != nil {
			return nil, &ParseError{Section: name, Message: err.Error()}
		}
		for _, k := range s.Keys() {
			if len(k.ValueWithShadows()) > 1 {
				return nil, &ParseError{Section: name, Message: fmt.Sprintf("duplicate key %q", k.Name())}
			}
			dst.Set(k.Name(), k.Value())
		}
	}
	return f, nil
}
