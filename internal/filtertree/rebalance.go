package filtertree

import (
	"github.com/roach88/flowfilter/internal/ir"
	"github.com/roach88/flowfilter/internal/partition"
)

// Rebalance splits every oversized filter on property held by a direct
// child of the branch root into ceil(len/maxValues) sibling clauses. A
// leaf child becomes one leaf per batch; any other child is copied once
// per batch with only that filter's values swapped. Numeric, compliant and
// unrelated children pass through unchanged, and the union of matched
// values is preserved.
func (e *Editor) Rebalance(lb ir.ListBranch, property string, maxValues int) (ir.ListBranch, error) {
	if err := checkArgs(lb.BranchName, property, maxValues); err != nil {
		return lb, err
	}
	root := e.scoped(lb.BranchName).rebalanceRoot(ir.NodeFromFilterBranch(lb.FilterBranch), property, maxValues)
	out := lb.Clone()
	out.FilterBranch = ir.ToFilterBranch(root)
	return out, nil
}

// RebalanceNamedBranch rebalances the first list branch named name and
// returns the new flow. The input flow is not modified. A missing branch
// yields a BRANCH_NOT_FOUND error together with the flow as given.
func (e *Editor) RebalanceNamedBranch(flow ir.Flow, name, property string, maxValues int) (ir.Flow, error) {
	if maxValues == 0 {
		maxValues = e.maxValues
	}
	if err := checkArgs(name, property, maxValues); err != nil {
		return flow, err
	}
	lb, ok := FindBranch(flow, name)
	if !ok {
		e.scoped(name).emit(Diagnostic{Kind: KindBranchNotFound, Property: property, Message: "branch not found"})
		return flow, newNotFound(name)
	}
	updated, err := e.Rebalance(lb, property, maxValues)
	if err != nil {
		return flow, err
	}
	out, _ := ReplaceBranch(flow, updated)
	return out, nil
}

// EnforceCap rewrites the subtree so that no splittable filter on property
// holds more than maxValues values at any depth.
//
// Positive membership filters are split into OR-ed alternatives at the
// nearest OR ancestor; under an AND parent the alternatives are wrapped in
// a fresh OR branch. Negative membership filters are split in place into
// several AND-ed filters when the node's filters combine with AND. Anything
// else that is oversized is left intact and reported as cap_unenforceable.
func (e *Editor) EnforceCap(n ir.Node, property string, maxValues int) (ir.Node, error) {
	if err := checkArgs(e.branch, property, maxValues); err != nil {
		return n, err
	}
	return e.enforce(n, property, maxValues), nil
}

func (e *Editor) enforce(n ir.Node, property string, maxValues int) ir.Node {
	alts := e.expand(n, property, maxValues)
	if len(alts) == 1 {
		return alts[0]
	}
	return orOf(alts)
}

func (e *Editor) rebalanceRoot(root ir.Node, property string, maxValues int) ir.Node {
	b, ok := root.(ir.Branch)
	if !ok {
		return root
	}
	out := ir.Branch{Filters: b.Filters, Type: b.Type, Operator: b.Operator, Extra: b.Extra}
	for _, child := range b.Children {
		pieces := e.splitOwn(child, property, maxValues)
		out.Children = appendAlternatives(out.Children, pieces, b.Type)
	}
	return out
}

// expand returns nodes whose disjunction is equivalent to n and in which
// no splittable filter on property exceeds maxValues.
func (e *Editor) expand(n ir.Node, property string, maxValues int) []ir.Node {
	switch v := n.(type) {
	case ir.Leaf:
		if f := v.Filter; oversized(f, property, maxValues) && f.Operation.Operator.Polarity() == ir.PolarityNegative {
			return []ir.Node{ir.Branch{
				Filters:  e.splitNegative(f, maxValues),
				Type:     ir.LogicAnd,
				Operator: ir.LogicAnd,
				Extra:    v.Extra,
			}}
		}
		return e.splitOwn(v, property, maxValues)

	case ir.Branch:
		out := ir.Branch{Type: v.Type, Operator: v.Operator, Extra: v.Extra}
		for _, child := range v.Children {
			out.Children = appendAlternatives(out.Children, e.expand(child, property, maxValues), v.Type)
		}
		out.Filters = e.splitNegativeFilters(v, property, maxValues)
		if len(out.Filters) > 1 && len(v.Filters) == 1 {
			out.Operator = ir.LogicAnd
		}
		return e.splitOwn(out, property, maxValues)

	default:
		return []ir.Node{n}
	}
}

// splitOwn splits the node's own positive filters on property, returning
// one alternative per batch (or n itself when nothing is oversized).
// Children are not descended into.
func (e *Editor) splitOwn(n ir.Node, property string, maxValues int) []ir.Node {
	filters := ir.OwnFilters(n)
	for i, f := range filters {
		if !oversized(f, property, maxValues) {
			continue
		}
		if f.Operation.Operator.Polarity() != ir.PolarityPositive {
			e.reportUnsplittable(f, maxValues)
			continue
		}

		values := f.Operation.Values
		batches, err := partition.Partition(values, partition.CeilDiv(len(values), maxValues), maxValues)
		if err != nil {
			// maxValues was validated and CeilDiv of a non-empty list is > 0.
			panic(err)
		}
		e.emit(Diagnostic{
			Kind:     KindRebalance,
			Property: property,
			Message:  "split oversized filter into sibling clauses",
			Counts:   map[string]int{"values": len(values), "batches": len(batches), "max_values": maxValues},
		})
		e.emitSizes(property, batches)

		var out []ir.Node
		for _, batch := range batches {
			var piece ir.Node
			switch v := n.(type) {
			case ir.Leaf:
				leaf := LeafLike(v.Filter, batch)
				leaf.Extra = ir.CloneExtra(v.Extra)
				piece = *leaf
			case ir.Branch:
				piece = withFilterValues(v, i, batch)
			}
			// Later filters on the same node may be oversized too.
			out = append(out, e.splitOwn(piece, property, maxValues)...)
		}
		return out
	}
	return []ir.Node{n}
}

// splitNegativeFilters returns the node's filters with each oversized
// negative filter on property replaced by AND-ed chunks, when the node's
// filters combine with AND (or there is only one filter).
func (e *Editor) splitNegativeFilters(b ir.Branch, property string, maxValues int) []ir.FlowFilter {
	if b.Filters == nil {
		return nil
	}
	andable := b.Operator == ir.LogicAnd || len(b.Filters) == 1
	out := make([]ir.FlowFilter, 0, len(b.Filters))
	for _, f := range b.Filters {
		if andable && oversized(f, property, maxValues) && f.Operation.Operator.Polarity() == ir.PolarityNegative {
			out = append(out, e.splitNegative(f, maxValues)...)
			continue
		}
		out = append(out, f)
	}
	return out
}

func (e *Editor) splitNegative(f ir.FlowFilter, maxValues int) []ir.FlowFilter {
	values := f.Operation.Values
	batches, err := partition.Partition(values, partition.CeilDiv(len(values), maxValues), maxValues)
	if err != nil {
		panic(err)
	}
	e.emit(Diagnostic{
		Kind:     KindRebalance,
		Property: f.Property,
		Message:  "split oversized negative filter into AND-ed clauses",
		Counts:   map[string]int{"values": len(values), "batches": len(batches), "max_values": maxValues},
	})
	out := make([]ir.FlowFilter, len(batches))
	for i, batch := range batches {
		out[i] = f.Clone()
		out[i].Operation.Values = batch
	}
	return out
}

func (e *Editor) reportUnsplittable(f ir.FlowFilter, maxValues int) {
	e.emit(Diagnostic{
		Kind:     KindCapUnenforceable,
		Property: f.Property,
		Message:  "oversized filter cannot be split without changing its meaning",
		Counts:   map[string]int{"values": len(f.Operation.Values), "max_values": maxValues},
	})
}

func (e *Editor) emitSizes(property string, batches [][]string) {
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	e.emit(Diagnostic{Kind: KindPartition, Property: property, Sizes: sizes})
}

// appendAlternatives adds a child's alternatives to a parent whose
// children combine via logic. Under OR they become siblings; under AND
// more than one alternative must stay grouped in an OR branch.
func appendAlternatives(children, alts []ir.Node, logic ir.BranchLogic) []ir.Node {
	if logic == ir.LogicOr || len(alts) == 1 {
		return append(children, alts...)
	}
	return append(children, orOf(alts))
}

func orOf(alts []ir.Node) ir.Branch {
	return ir.Branch{Children: alts, Type: ir.LogicOr, Operator: ir.LogicOr}
}

// withFilterValues copies b with filter i holding values.
func withFilterValues(b ir.Branch, i int, values []string) ir.Branch {
	out := b
	out.Filters = append([]ir.FlowFilter(nil), b.Filters...)
	out.Filters[i] = b.Filters[i].Clone()
	out.Filters[i].Operation.Values = values
	out.Extra = ir.CloneExtra(b.Extra)
	out.Children = append([]ir.Node(nil), b.Children...)
	return out
}

// oversized reports a set-membership filter on property above the cap.
func oversized(f ir.FlowFilter, property string, maxValues int) bool {
	return f.Matches(property) && !f.IsNumeric() && len(f.Operation.Values) > maxValues
}

// exceedsCap reports whether any filter on property in the subtree is
// oversized.
func exceedsCap(n ir.Node, property string, maxValues int) bool {
	over := false
	ir.Walk(n, func(f ir.FlowFilter) bool {
		if oversized(f, property, maxValues) {
			over = true
			return false
		}
		return true
	})
	return over
}
