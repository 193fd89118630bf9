package params

import "github.com/roach88/snek/internal/value"

// Entry is one attribute of a flattened tree.
type Entry struct {
	Path  string
	Value value.Value
}

// Flatten lists every attribute below n with its dotted path, depth first in
// insertion order.
func Flatten(n *Node) []Entry {
	var out []Entry
	_ = n.Walk(func(cur *Node) error {
		prefix := cur.Path()
		if base := n.Path(); base != "" {
			prefix = prefix[len(base):]
			if len(prefix) > 0 && prefix[0] == '.' {
				prefix = prefix[1:]
			}
		}
		if prefix != "" {
			prefix += "."
		}
		for _, name := range cur.attrOrder {
			out = append(out, Entry{Path: prefix + name, Value: cur.attrs[name]})
		}
		return nil
	})
	return out
}
