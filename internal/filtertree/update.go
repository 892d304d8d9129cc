package filtertree

import "github.com/roach88/flowfilter/internal/ir"

// Edit describes a value change for every filter on Property.
// Replace sets the values to Add and ignores Remove; otherwise Add is
// unioned in and Remove is subtracted.
type Edit struct {
	Property string
	Add      []string
	Remove   []string
	Replace  bool
}

// SetValues replaces the filter's values wholesale. The bool is false when
// nothing changed: the filter targets another property, is numeric, or
// already holds the same set (same length, same membership).
func SetValues(f ir.FlowFilter, property string, values []string) (ir.FlowFilter, bool) {
	if !editable(f, property) {
		return f, false
	}
	if sameSet(f.Operation.Values, values) {
		return f, false
	}
	out := f.Clone()
	out.Operation.Values = append(make([]string, 0, len(values)), values...)
	return out, true
}

// AddValues appends values not already present, keeping existing order and
// never introducing duplicates.
func AddValues(f ir.FlowFilter, property string, toAdd []string) (ir.FlowFilter, bool) {
	if !editable(f, property) || len(toAdd) == 0 {
		return f, false
	}
	seen := make(map[string]struct{}, len(f.Operation.Values)+len(toAdd))
	for _, v := range f.Operation.Values {
		seen[v] = struct{}{}
	}
	values := append(make([]string, 0, len(f.Operation.Values)+len(toAdd)), f.Operation.Values...)
	for _, v := range toAdd {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if len(values) == len(f.Operation.Values) {
		return f, false
	}
	out := f
	out.Operation.Values = values
	return out, true
}

// RemoveValues drops every value listed in toRemove.
func RemoveValues(f ir.FlowFilter, property string, toRemove []string) (ir.FlowFilter, bool) {
	if !editable(f, property) || len(toRemove) == 0 {
		return f, false
	}
	drop := make(map[string]struct{}, len(toRemove))
	for _, v := range toRemove {
		drop[v] = struct{}{}
	}
	values := make([]string, 0, len(f.Operation.Values))
	for _, v := range f.Operation.Values {
		if _, ok := drop[v]; !ok {
			values = append(values, v)
		}
	}
	if len(values) == len(f.Operation.Values) {
		return f, false
	}
	out := f
	out.Operation.Values = values
	return out, true
}

// UpdateLeafFilters applies edit to the node's own filters that target
// edit.Property. Children are carried over untouched.
func (e *Editor) UpdateLeafFilters(n ir.Node, edit Edit) ir.Node {
	switch v := n.(type) {
	case ir.Leaf:
		return ir.Leaf{Filter: e.editFilter(v.Filter, edit), Extra: v.Extra}
	case ir.Branch:
		out := ir.Branch{
			Children: append([]ir.Node(nil), v.Children...),
			Type:     v.Type,
			Operator: v.Operator,
			Extra:    v.Extra,
		}
		if v.Filters != nil {
			out.Filters = make([]ir.FlowFilter, len(v.Filters))
			for i, f := range v.Filters {
				out.Filters[i] = e.editFilter(f, edit)
			}
		}
		return out
	default:
		return n
	}
}

// UpdateTree applies edit to the node and then to every descendant,
// depth-first and pre-order. Every matching filter in the subtree is
// edited; the input tree is left as it was.
func (e *Editor) UpdateTree(n ir.Node, edit Edit) ir.Node {
	updated := e.UpdateLeafFilters(n, edit)
	b, ok := updated.(ir.Branch)
	if !ok {
		return updated
	}
	for i, child := range b.Children {
		b.Children[i] = e.UpdateTree(child, edit)
	}
	return b
}

func (e *Editor) editFilter(f ir.FlowFilter, edit Edit) ir.FlowFilter {
	if !editable(f, edit.Property) {
		return f
	}

	if edit.Replace {
		out, changed := SetValues(f, edit.Property, edit.Add)
		if !changed {
			e.emit(Diagnostic{
				Kind:     KindNoOp,
				Property: edit.Property,
				Message:  "replacement value set equals current set",
				Counts:   map[string]int{"values": len(f.Operation.Values)},
			})
		}
		return out
	}

	if len(edit.Add) == 0 && len(edit.Remove) == 0 {
		return f
	}
	out, added := AddValues(f, edit.Property, edit.Add)
	out, removed := RemoveValues(out, edit.Property, edit.Remove)
	if !added && !removed {
		e.emit(Diagnostic{
			Kind:     KindNoOp,
			Property: edit.Property,
			Message:  "add/remove left the value set unchanged",
			Counts:   map[string]int{"values": len(f.Operation.Values)},
		})
	}
	return out
}

// editable reports whether a value-list edit applies to f.
func editable(f ir.FlowFilter, property string) bool {
	return f.Matches(property) && !f.IsNumeric()
}

// sameSet reports equal length and equal membership.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := setA[v]; !ok {
			return false
		}
		setB[v] = struct{}{}
	}
	return len(setA) == len(setB)
}
