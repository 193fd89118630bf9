package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// User-parameter slot bounds. The solver exposes userParam01..userParam20.
const (
	MinSlot = 1
	MaxSlot = 20
)

// SlotMapFile is the side file mapping slots to dotted paths, written next
// to the configuration file.
const SlotMapFile = "map_user_params.json"

// General returns nek.general of a full tree, the only node allowed to carry
// recorded user parameters.
func General(root *Node) *Node {
	nek := root.Child("nek")
	if nek == nil {
		return nil
	}
	return nek.Child("general")
}

// RecordedUserParams returns a copy of the slot map, nil if nothing has been
// recorded.
func RecordedUserParams(root *Node) map[int]string {
	g := General(root)
	if g == nil || g.recorded == nil {
		return nil
	}
	return maps.Clone(g.recorded)
}

// SetRecordedUserParams replaces the slot map wholesale. Used when restoring
// a saved tree; the map must be in range, injective, and every path must
// name an attribute of root. The current map is kept when m is rejected.
func SetRecordedUserParams(root *Node, m map[int]string) error {
	g := General(root)
	if g == nil {
		return &SlotError{Code: NoGeneral, Message: "no nek.general node in tree"}
	}
	if err := checkSlotMap(m); err != nil {
		return err
	}
	for _, slot := range slices.Sorted(maps.Keys(m)) {
		if _, err := root.GetPath(m[slot]); err != nil {
			return &SlotError{Code: MissingPath, Slot: slot, Path: m[slot],
				Message: fmt.Sprintf("slot %d: %v", slot, err)}
		}
	}
	g.recorded = maps.Clone(m)
	return nil
}

// checkSlotMap verifies that every slot of m is in range and that no path
// appears twice.
func checkSlotMap(m map[int]string) error {
	seen := make(map[string]int, len(m))
	for _, slot := range slices.Sorted(maps.Keys(m)) {
		if err := checkSlot(slot); err != nil {
			return err
		}
		path := m[slot]
		if prev, dup := seen[path]; dup {
			return &SlotError{Code: PathCollision, Slot: slot, Path: path,
				Message: fmt.Sprintf("%q is mapped to both slot %d and slot %d", path, prev, slot)}
		}
		seen[path] = slot
	}
	return nil
}

func checkSlot(slot int) error {
	if slot < MinSlot || slot > MaxSlot {
		return &SlotError{Code: SlotRange, Slot: slot,
			Message: fmt.Sprintf("slot %d outside [%d, %d]", slot, MinSlot, MaxSlot)}
	}
	return nil
}

// Record publishes attributes of n into user-parameter slots. names maps an
// attribute name local to n to a slot; the stored path is qualified from
// the tree root, e.g. "output.history_points.write_interval".
//
// Without overwrite, a slot held by a different path or a path already held
// by a different slot is rejected before anything changes. Re-recording the
// same path to the same slot is a no-op. With overwrite, the new wiring
// replaces whatever held the slot and a moved path releases its old slot.
//
// A tree without nek.general (an isolated subtree built for one component)
// cannot hold the map: Record then returns a diagnostic and does nothing.
func (n *Node) Record(names map[string]int, overwrite bool) ([]Diagnostic, error) {
	return n.record(names, overwrite, nil)
}

func (n *Node) record(names map[string]int, overwrite bool, logger *slog.Logger) ([]Diagnostic, error) {
	prefix := n.Path()
	if prefix != "" {
		prefix += "."
	}

	staged := make(map[int]string, len(names))
	for _, name := range slices.Sorted(maps.Keys(names)) {
		slot := names[name]
		if err := checkSlot(slot); err != nil {
			return nil, err
		}
		path := prefix + name
		if other, dup := staged[slot]; dup {
			return nil, &SlotError{Code: SlotCollision, Slot: slot, Path: path,
				Message: fmt.Sprintf("slot %d requested for both %q and %q", slot, other, path)}
		}
		staged[slot] = path
	}

	root := n.Root()
	g := General(root)
	if !root.IsRoot() || g == nil {
		return warn(logger, nil, Diagnostic{
			Code:    DiagNoSolverTree,
			Message: "params.nek.general does not exist, skipping user parameters",
			Attrs:   map[string]any{"node": n.tag},
		}), nil
	}

	current := g.recorded
	if current == nil {
		current = make(map[int]string)
	}
	reverse := make(map[string]int, len(current))
	for slot, path := range current {
		reverse[path] = slot
	}

	if !overwrite {
		for _, slot := range slices.Sorted(maps.Keys(staged)) {
			path := staged[slot]
			if held, ok := current[slot]; ok && held != path {
				return nil, &SlotError{Code: SlotCollision, Slot: slot, Path: path,
					Message: fmt.Sprintf("slot %d already used for %q", slot, held)}
			}
			if at, ok := reverse[path]; ok && at != slot {
				return nil, &SlotError{Code: PathCollision, Slot: slot, Path: path,
					Message: fmt.Sprintf("%q already recorded at slot %d", path, at)}
			}
		}
	}

	next := maps.Clone(current)
	for slot, path := range staged {
		if at, ok := reverse[path]; ok && at != slot {
			delete(next, at)
		}
	}
	maps.Copy(next, staged)
	g.recorded = next
	return nil, nil
}

// ChangeIndex moves already-recorded paths to new slots. It must be called
// on the root. Every path displaced from a slot named in mapping must itself
// appear in mapping, and every path in mapping must already be recorded;
// otherwise nothing changes and a SlotError is returned.
func (n *Node) ChangeIndex(mapping map[int]string) error {
	if !n.IsRoot() {
		return &SlotError{Code: NotRoot, Message: "ChangeIndex must be called on the root params node"}
	}
	g := General(n)
	if g == nil {
		return &SlotError{Code: NoGeneral, Message: "no nek.general node in tree"}
	}
	if g.recorded == nil {
		return &SlotError{Code: NoRecord, Message: "no user parameters recorded yet"}
	}

	slots := slices.Sorted(maps.Keys(mapping))
	incoming := make(map[string]int, len(mapping))
	for _, slot := range slots {
		if err := checkSlot(slot); err != nil {
			return err
		}
		path := mapping[slot]
		if prev, dup := incoming[path]; dup {
			return &SlotError{Code: PathCollision, Slot: slot, Path: path,
				Message: fmt.Sprintf("%q requested at both slot %d and slot %d", path, prev, slot)}
		}
		incoming[path] = slot
	}

	for _, slot := range slots {
		held, ok := g.recorded[slot]
		if !ok {
			continue
		}
		if _, kept := incoming[held]; !kept {
			return &SlotError{Code: UnsafeRemap, Slot: slot, Path: held,
				Message: fmt.Sprintf("%q would be removed from the user parameters", held)}
		}
	}

	reverse := make(map[string]int, len(g.recorded))
	for slot, path := range g.recorded {
		reverse[path] = slot
	}
	for _, slot := range slots {
		path := mapping[slot]
		if _, ok := reverse[path]; !ok {
			return &SlotError{Code: UnrecordedPath, Slot: slot, Path: path,
				Message: fmt.Sprintf("%q is not a recorded user parameter", path)}
		}
	}

	next := maps.Clone(g.recorded)
	for _, path := range mapping {
		delete(next, reverse[path])
	}
	maps.Copy(next, mapping)
	g.recorded = next
	return nil
}

// SaveSlotMap writes m to dir/map_user_params.json as {"slot": "path"},
// slots in ascending order.
func SaveSlotMap(dir string, m map[int]string) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, slot := range slices.Sorted(maps.Keys(m)) {
		if i > 0 {
			buf.WriteString(", ")
		}
		path, err := json.Marshal(m[slot])
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "%q: %s", strconv.Itoa(slot), path)
	}
	buf.WriteString("}")

	path := filepath.Join(dir, SlotMapFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadSlotMap reads a side file, converting keys back to integers.
func LoadSlotMap(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		slot, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("parse %s: slot %q is not an integer", path, k)
		}
		out[slot] = v
	}
	return out, nil
}
