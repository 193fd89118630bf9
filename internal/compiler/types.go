package compiler

import "github.com/roach88/snek/internal/value"

// SolverSpec is a compiled solver description: the default parameter tree
// a solver starts from, and which solver it builds on.
type SolverSpec struct {
	Name    string
	Doc     string
	Extends string

	// OverwriteUserParams lets this solver move user parameters its base
	// already placed.
	OverwriteUserParams bool

	// Params describes the root of the parameter tree.
	Params NodeSpec
}

// NodeSpec describes one node of the default parameter tree. Nil flags and
// an empty doc leave whatever a base solver set.
type NodeSpec struct {
	Name       string
	Doc        string
	User       *bool
	Enabled    *bool
	Attrs      []Attr
	UserParams []UserParam
	Children   []NodeSpec
}

// Attr is one default attribute value.
type Attr struct {
	Name  string
	Value value.Value
}

// UserParam publishes attribute Name of the enclosing node to a slot.
type UserParam struct {
	Name string
	Slot int
}

// Child returns the child named name, or nil.
func (n *NodeSpec) Child(name string) *NodeSpec {
	for i := range n.Children {
		if n.Children[i].Name == name {
			return &n.Children[i]
		}
	}
	return nil
}
