package params

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/snek/internal/value"
)

// RootTag is the tag of every parameter tree root.
const RootTag = "params"

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Node is one level of the parameter tree: an ordered set of named children
// and an ordered set of named attribute values.
//
// The parent field is a back reference used for path reconstruction; a node
// is only ever owned by its parent's children list.
type Node struct {
	tag    string
	parent *Node

	childOrder []string
	children   map[string]*Node

	attrOrder []string
	attrs     map[string]value.Value

	enabled bool
	user    bool
	doc     string

	// recorded is only ever set on nek.general.
	recorded map[int]string
}

// New creates a root node tagged "params".
func New() *Node {
	return newNode(RootTag, nil)
}

// NewDetached creates a root with an arbitrary tag. Used to build isolated
// subtrees (an output channel's defaults, for example).
func NewDetached(tag string) *Node {
	return newNode(tag, nil)
}

func newNode(tag string, parent *Node) *Node {
	return &Node{
		tag:      tag,
		parent:   parent,
		children: make(map[string]*Node),
		attrs:    make(map[string]value.Value),
		enabled:  true,
		user:     true,
	}
}

// Tag returns the node name.
func (n *Node) Tag() string { return n.tag }

// Parent returns the parent node, nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Root walks parent references up to the tree root.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// IsRoot reports whether n is the root of a full parameter tree.
func (n *Node) IsRoot() bool {
	return n.parent == nil && n.tag == RootTag
}

// Path returns the dotted path of n relative to the root, "" for the root.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.tag)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func (n *Node) Enabled() bool { return n.enabled }
func (n *Node) SetEnabled(enabled bool) { n.enabled = enabled }

// User reports whether the node is a user (non-core) section. User sections
// are written with a leading underscore.
func (n *Node) User() bool { return n.user }
func (n *Node) SetUser(user bool) { n.user = user }

func (n *Node) Doc() string { return n.doc }
func (n *Node) SetDoc(doc string) { n.doc = doc }

// SetChild returns the child named tag, creating it if needed.
func (n *Node) SetChild(tag string) (*Node, error) {
	if !namePattern.MatchString(tag) {
		return nil, &NameError{Node: n.Path(), Name: tag, Reason: "not a valid identifier"}
	}
	if _, ok := n.attrs[tag]; ok {
		return nil, &NameError{Node: n.Path(), Name: tag, Reason: "already used by an attribute"}
	}
	if c, ok := n.children[tag]; ok {
		return c, nil
	}
	c := newNode(tag, n)
	n.children[tag] = c
	n.childOrder = append(n.childOrder, tag)
	return c, nil
}

// MustChild is like SetChild but panics on an invalid tag. Used when building
// trees from compiled solver descriptions whose names are already checked.
func (n *Node) MustChild(tag string) *Node {
	c, err := n.SetChild(tag)
	if err != nil {
		panic(err)
	}
	return c
}

// Child returns the named child or nil.
func (n *Node) Child(tag string) *Node {
	return n.children[tag]
}

// Children returns the children in insertion order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.childOrder))
	for i, tag := range n.childOrder {
		out[i] = n.children[tag]
	}
	return out
}

// Set assigns an attribute, appending it to the attribute order if new.
func (n *Node) Set(name string, v value.Value) error {
	if !namePattern.MatchString(name) {
		return &NameError{Node: n.Path(), Name: name, Reason: "not a valid identifier"}
	}
	if _, ok := n.children[name]; ok {
		return &NameError{Node: n.Path(), Name: name, Reason: "already used by a child"}
	}
	if v == nil {
		v = value.Null{}
	}
	if _, ok := n.attrs[name]; !ok {
		n.attrOrder = append(n.attrOrder, name)
	}
	n.attrs[name] = v
	return nil
}

// Get returns an attribute value.
func (n *Node) Get(name string) (value.Value, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// Has reports whether name is an attribute of n.
func (n *Node) Has(name string) bool {
	_, ok := n.attrs[name]
	return ok
}

// Attrs returns attribute names in insertion order.
func (n *Node) Attrs() []string {
	return append([]string(nil), n.attrOrder...)
}

// Lookup resolves a dotted path from n to the node holding the final
// attribute, returning that node and the attribute name.
func (n *Node) Lookup(path string) (*Node, string, error) {
	parts := strings.Split(path, ".")
	cur := n
	for i, part := range parts[:len(parts)-1] {
		next := cur.children[part]
		if next == nil {
			return nil, "", &PathError{Path: path, Missing: strings.Join(parts[:i+1], ".")}
		}
		cur = next
	}
	return cur, parts[len(parts)-1], nil
}

// GetPath reads the attribute at a dotted path such as
// "output.history_points.write_interval".
func (n *Node) GetPath(path string) (value.Value, error) {
	holder, name, err := n.Lookup(path)
	if err != nil {
		return nil, err
	}
	v, ok := holder.attrs[name]
	if !ok {
		return nil, &PathError{Path: path, Missing: path}
	}
	return v, nil
}

// SetPath assigns an existing attribute at a dotted path.
func (n *Node) SetPath(path string, v value.Value) error {
	holder, name, err := n.Lookup(path)
	if err != nil {
		return err
	}
	if !holder.Has(name) {
		return &PathError{Path: path, Missing: path}
	}
	return holder.Set(name, v)
}

// Walk visits n and every descendant depth first, in insertion order.
func (n *Node) Walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, tag := range n.childOrder {
		if err := n.children[tag].Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the subtree rooted at n. The copy is detached
// from n's parent.
func (n *Node) Clone() *Node {
	return n.cloneInto(nil)
}

func (n *Node) cloneInto(parent *Node) *Node {
	c := newNode(n.tag, parent)
	c.enabled = n.enabled
	c.user = n.user
	c.doc = n.doc
	c.attrOrder = append([]string(nil), n.attrOrder...)
	for k, v := range n.attrs {
		c.attrs[k] = v
	}
	if n.recorded != nil {
		c.recorded = make(map[int]string, len(n.recorded))
		for k, v := range n.recorded {
			c.recorded[k] = v
		}
	}
	c.childOrder = append([]string(nil), n.childOrder...)
	for tag, child := range n.children {
		c.children[tag] = child.cloneInto(c)
	}
	return c
}

// Merge copies attributes and children of src into n. Existing attributes
// are overwritten; flags and docs of existing children are left alone.
func (n *Node) Merge(src *Node) error {
	for _, name := range src.attrOrder {
		if err := n.Set(name, src.attrs[name]); err != nil {
			return err
		}
	}
	for _, tag := range src.childOrder {
		srcChild := src.children[tag]
		existing := n.children[tag]
		child, err := n.SetChild(tag)
		if err != nil {
			return err
		}
		if existing == nil {
			child.enabled = srcChild.enabled
			child.user = srcChild.user
			child.doc = srcChild.doc
		}
		if err := child.Merge(srcChild); err != nil {
			return err
		}
	}
	return nil
}

// String renders a short description for logs.
func (n *Node) String() string {
	return fmt.Sprintf("<params %s: %d attrs, %d children>", n.tag, len(n.attrOrder), len(n.childOrder))
}
