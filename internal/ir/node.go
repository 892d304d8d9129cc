package ir

import "encoding/json"

// Node is a sealed interface over the two shapes of a filter tree.
// Only Leaf and Branch implement it; switch on the concrete type.
type Node interface {
	node() // Sealed
}

// Leaf is a single filter with AND/AND logic and no children, the shape
// the factory produces for one value batch. Extra holds the unknown fields
// of the wire node.
type Leaf struct {
	Filter FlowFilter
	Extra  map[string]json.RawMessage
}

func (Leaf) node() {}

// Branch is an internal node. Filters combine via Operator; Children
// combine via Type with each other and with the node's own filters.
type Branch struct {
	Children []Node
	Filters  []FlowFilter
	Type     BranchLogic
	Operator BranchLogic
	Extra    map[string]json.RawMessage
}

func (Branch) node() {}

// NodeFromFilterBranch converts the wire form into a tree. A node with no
// children, exactly one filter and AND/AND logic becomes a Leaf; every
// other node becomes a Branch. Values and unknown fields are copied.
func NodeFromFilterBranch(fb FilterBranch) Node {
	if len(fb.FilterBranches) == 0 && len(fb.Filters) == 1 &&
		fb.FilterBranchType == LogicAnd && fb.FilterBranchOperator == LogicAnd {
		return Leaf{Filter: fb.Filters[0].Clone(), Extra: cloneRaw(fb.Extra)}
	}
	b := Branch{
		Type:     fb.FilterBranchType,
		Operator: fb.FilterBranchOperator,
		Extra:    cloneRaw(fb.Extra),
	}
	if len(fb.FilterBranches) > 0 {
		b.Children = make([]Node, len(fb.FilterBranches))
		for i, child := range fb.FilterBranches {
			b.Children[i] = NodeFromFilterBranch(child)
		}
	}
	if len(fb.Filters) > 0 {
		b.Filters = make([]FlowFilter, len(fb.Filters))
		for i, f := range fb.Filters {
			b.Filters[i] = f.Clone()
		}
	}
	return b
}

// ToFilterBranch converts a tree back to the wire form. It is the exact
// inverse of NodeFromFilterBranch. A nil node yields an empty AND/AND branch.
func ToFilterBranch(n Node) FilterBranch {
	switch v := n.(type) {
	case Leaf:
		return FilterBranch{
			FilterBranches:       []FilterBranch{},
			Filters:              []FlowFilter{v.Filter.Clone()},
			FilterBranchType:     LogicAnd,
			FilterBranchOperator: LogicAnd,
			Extra:                cloneRaw(v.Extra),
		}
	case Branch:
		fb := FilterBranch{
			FilterBranches:       make([]FilterBranch, len(v.Children)),
			Filters:              make([]FlowFilter, len(v.Filters)),
			FilterBranchType:     v.Type,
			FilterBranchOperator: v.Operator,
			Extra:                cloneRaw(v.Extra),
		}
		for i, child := range v.Children {
			fb.FilterBranches[i] = ToFilterBranch(child)
		}
		for i, f := range v.Filters {
			fb.Filters[i] = f.Clone()
		}
		return fb
	default:
		return FilterBranch{
			FilterBranches:       []FilterBranch{},
			Filters:              []FlowFilter{},
			FilterBranchType:     LogicAnd,
			FilterBranchOperator: LogicAnd,
		}
	}
}

// OwnFilters returns the filters attached directly to n.
func OwnFilters(n Node) []FlowFilter {
	switch v := n.(type) {
	case Leaf:
		return []FlowFilter{v.Filter}
	case Branch:
		return v.Filters
	default:
		return nil
	}
}

// ChildrenOf returns the child nodes of n; a Leaf has none.
func ChildrenOf(n Node) []Node {
	if b, ok := n.(Branch); ok {
		return b.Children
	}
	return nil
}

// CloneExtra returns a copy of a preserved-field map.
func CloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	return cloneRaw(m)
}

// References reports whether any filter in the subtree targets property.
func References(n Node, property string) bool {
	found := false
	Walk(n, func(f FlowFilter) bool {
		if f.Matches(property) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Walk visits every filter in the subtree depth-first, pre-order: a node's
// own filters, then each child in order. Returning false stops the walk.
func Walk(n Node, visit func(FlowFilter) bool) bool {
	for _, f := range OwnFilters(n) {
		if !visit(f) {
			return false
		}
	}
	for _, child := range ChildrenOf(n) {
		if !Walk(child, visit) {
			return false
		}
	}
	return true
}

// ValuesFor collects, in walk order, every value of every filter in the
// subtree that targets property. Duplicates are kept.
func ValuesFor(n Node, property string) []string {
	var out []string
	Walk(n, func(f FlowFilter) bool {
		if f.Matches(property) {
			out = append(out, f.Operation.Values...)
		}
		return true
	})
	return out
}
