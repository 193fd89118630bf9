package params

import (
	"bytes"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/snek/internal/value"
)

// SnapshotFile is the structured snapshot written next to the
// configuration file.
const SnapshotFile = "params_simul.yaml"

// Reserved snapshot keys. Attribute names cannot start with "_", so they
// never clash with these.
const (
	keyEnabled  = "_enabled"
	keyUser     = "_user"
	keyDoc      = "_doc"
	keyRecorded = "_recorded_user_params"
)

// EncodeSnapshot serialises the whole tree: attributes, children, flags,
// docs and the recorded user parameters. Mappings are children; scalars and
// sequences are attributes.
func EncodeSnapshot(root *Node) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content, strNode(root.tag), encodeNode(root))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeNode(n *Node) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add := func(k string, v *yaml.Node) {
		m.Content = append(m.Content, strNode(k), v)
	}
	add(keyEnabled, boolNode(n.enabled))
	add(keyUser, boolNode(n.user))
	if n.doc != "" {
		add(keyDoc, strNode(n.doc))
	}
	if n.recorded != nil {
		rec := &yaml.Node{Kind: yaml.MappingNode}
		for _, slot := range slices.Sorted(maps.Keys(n.recorded)) {
			rec.Content = append(rec.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(slot)},
				strNode(n.recorded[slot]))
		}
		add(keyRecorded, rec)
	}
	for _, name := range n.attrOrder {
		add(name, encodeValue(n.attrs[name]))
	}
	for _, tag := range n.childOrder {
		add(tag, encodeNode(n.children[tag]))
	}
	return m
}

func encodeValue(v value.Value) *yaml.Node {
	switch tv := v.(type) {
	case value.Null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case value.Bool:
		return boolNode(bool(tv))
	case value.Int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(int64(tv), 10)}
	case value.Float:
		f := float64(tv)
		s := value.FormatFloat(f)
		switch {
		case math.IsNaN(f):
			s = ".nan"
		case math.IsInf(f, 1):
			s = ".inf"
		case math.IsInf(f, -1):
			s = "-.inf"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}
	case value.String:
		return strNode(string(tv))
	case value.List:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, elem := range tv {
			seq.Content = append(seq.Content, encodeValue(elem))
		}
		return seq
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

// DecodeSnapshot rebuilds a tree from EncodeSnapshot output. A recorded
// slot map that is out of range, not injective or points to missing
// attributes is dropped with a DiagBadSlotMap diagnostic.
func DecodeSnapshot(data []byte) (*Node, []Diagnostic, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, nil, fmt.Errorf("parse snapshot: expected a single document")
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode || len(top.Content) != 2 {
		return nil, nil, fmt.Errorf("parse snapshot: expected a single root mapping")
	}
	root := newNode(top.Content[0].Value, nil)
	if err := decodeNode(root, top.Content[1]); err != nil {
		return nil, nil, err
	}
	return root, restoreRecorded(root), nil
}

// restoreRecorded re-applies the decoded slot map through
// SetRecordedUserParams once the whole tree exists.
func restoreRecorded(root *Node) []Diagnostic {
	g := General(root)
	if g == nil || g.recorded == nil {
		return nil
	}
	rec := g.recorded
	g.recorded = nil
	if err := SetRecordedUserParams(root, rec); err != nil {
		return warn(nil, nil, Diagnostic{
			Code:    DiagBadSlotMap,
			Message: "recorded user parameters of the snapshot are invalid, dropped",
			Attrs:   map[string]any{"error": err.Error()},
		})
	}
	return nil
}

func decodeNode(n *Node, m *yaml.Node) error {
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s: expected a mapping", m.Line, n.Path())
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		switch key {
		case keyEnabled:
			if err := val.Decode(&n.enabled); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
		case keyUser:
			if err := val.Decode(&n.user); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
		case keyDoc:
			n.doc = val.Value
		case keyRecorded:
			rec := make(map[int]string)
			if err := val.Decode(&rec); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
			n.recorded = rec
		default:
			if val.Kind == yaml.MappingNode {
				child, err := n.SetChild(key)
				if err != nil {
					return fmt.Errorf("line %d: %w", val.Line, err)
				}
				if err := decodeNode(child, val); err != nil {
					return err
				}
				continue
			}
			v, err := decodeValue(val)
			if err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
			if err := n.Set(key, v); err != nil {
				return fmt.Errorf("line %d: %w", val.Line, err)
			}
		}
	}
	return nil
}

func decodeValue(y *yaml.Node) (value.Value, error) {
	switch y.Kind {
	case yaml.SequenceNode:
		out := make(value.List, 0, len(y.Content))
		for _, elem := range y.Content {
			v, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		return decodeValue(y.Alias)
	case yaml.ScalarNode:
	default:
		return nil, fmt.Errorf("unsupported YAML node kind %v", y.Kind)
	}

	switch y.ShortTag() {
	case "!!null":
		return value.Null{}, nil
	case "!!bool":
		var b bool
		err := y.Decode(&b)
		return value.Bool(b), err
	case "!!int":
		var i int64
		err := y.Decode(&i)
		return value.Int(i), err
	case "!!float":
		var f float64
		err := y.Decode(&f)
		return value.Float(f), err
	default:
		return value.String(y.Value), nil
	}
}

// SaveSnapshot writes the snapshot of root to path.
func SaveSnapshot(root *Node, path string) error {
	data, err := EncodeSnapshot(root)
	if err != nil {
		return err
	}
	if err := saveFile(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Node, []Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	root, diags, err := DecodeSnapshot(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, diags, nil
}
