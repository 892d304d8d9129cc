package filtertree

import "github.com/roach88/flowfilter/internal/ir"

// LeafFor wraps one value batch in a CONTAINS/MULTISTRING leaf.
// Returns nil for an empty batch.
func LeafFor(property string, values []string) *ir.Leaf {
	return LeafLike(ir.FlowFilter{
		Property: property,
		Operation: ir.Operation{
			Operator:      ir.OperatorContains,
			OperationType: ir.OperationTypeMultiString,
		},
		FilterType: ir.FilterTypeProperty,
	}, values)
}

// LeafLike is LeafFor with the operator, operation type, filter type,
// include flag and unknown fields copied from template. Returns nil for an
// empty batch.
func LeafLike(template ir.FlowFilter, values []string) *ir.Leaf {
	if len(values) == 0 {
		return nil
	}
	f := template.Clone()
	f.Operation.Values = append(make([]string, 0, len(values)), values...)
	f.Operation.Value = ""
	return &ir.Leaf{Filter: f}
}

// LeavesFor builds one leaf per non-empty batch.
func LeavesFor(batches [][]string, property string) []ir.Node {
	out := make([]ir.Node, 0, len(batches))
	for _, batch := range batches {
		if leaf := LeafFor(property, batch); leaf != nil {
			out = append(out, *leaf)
		}
	}
	return out
}
