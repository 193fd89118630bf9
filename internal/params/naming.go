package params

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	wordBoundary    = regexp.MustCompile(`([a-z\d])([A-Z])`)
)

// Camelize converts an attribute name to the solver's key convention:
// "write_interval" becomes "writeInterval". The input is lower-cased first
// and its first character is kept as is, so "_enabled" stays "_enabled".
func Camelize(s string) string {
	runes := []rune(cases.Lower(language.Und).String(s))
	var b strings.Builder
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if i > 0 && r == '_' && i+1 < len(runes) {
			b.WriteRune(unicode.ToUpper(runes[i+1]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Underscore converts a solver key back to an attribute name:
// "writeInterval" becomes "write_interval".
func Underscore(s string) string {
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return cases.Lower(language.Und).String(s)
}

// SectionName is the configuration file header for node: the upper-cased
// tag, prefixed with "_" for user sections.
func SectionName(n *Node) string {
	name := strings.TrimLeft(cases.Upper(language.Und).String(n.tag), "_")
	if n.user {
		return "_" + name
	}
	return name
}

// childName maps a section header back to a child tag.
func childName(section string) string {
	return strings.TrimLeft(cases.Lower(language.Und).String(norm.NFC.String(section)), "_")
}

// optionName maps a solver key back to an attribute name.
func optionName(key string) string {
	return Underscore(norm.NFC.String(key))
}
