package filtertree

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flowfilter/internal/ir"
)

func containsFilter(property string, values ...string) ir.FlowFilter {
	return ir.FlowFilter{
		Property: property,
		Operation: ir.Operation{
			Operator:      ir.OperatorContains,
			Values:        values,
			OperationType: ir.OperationTypeMultiString,
		},
		FilterType: ir.FilterTypeProperty,
	}
}

func numericFilter(property, value string) ir.FlowFilter {
	return ir.FlowFilter{
		Property: property,
		Operation: ir.Operation{
			Operator:      ir.OperatorIsGreaterThan,
			Value:         json.Number(value),
			OperationType: ir.OperationTypeNumber,
		},
		FilterType: ir.FilterTypeProperty,
	}
}

func leafBranch(f ir.FlowFilter) ir.FilterBranch {
	return ir.FilterBranch{
		FilterBranches:       []ir.FilterBranch{},
		Filters:              []ir.FlowFilter{f},
		FilterBranchType:     ir.LogicAnd,
		FilterBranchOperator: ir.LogicAnd,
	}
}

func orRoot(children ...ir.FilterBranch) ir.FilterBranch {
	return ir.FilterBranch{
		FilterBranches:       children,
		Filters:              []ir.FlowFilter{},
		FilterBranchType:     ir.LogicOr,
		FilterBranchOperator: ir.LogicOr,
	}
}

func listBranch(name string, root ir.FilterBranch) ir.ListBranch {
	return ir.ListBranch{BranchName: name, FilterBranch: root}
}

func branchAction(id string, branches ...ir.ListBranch) ir.Action {
	return ir.Action{ActionID: id, Type: ir.ActionTypeListBranch, ListBranches: branches}
}

func flowOf(actions ...ir.Action) ir.Flow {
	return ir.Flow{ID: "flow-1", Actions: actions}
}

func seq(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return out
}

// filtersOn collects every filter on property in the branch tree.
func filtersOn(fb ir.FilterBranch, property string) []ir.FlowFilter {
	var out []ir.FlowFilter
	ir.Walk(ir.NodeFromFilterBranch(fb), func(f ir.FlowFilter) bool {
		if f.Matches(property) {
			out = append(out, f)
		}
		return true
	})
	return out
}

// unionOn returns the sorted distinct values of every filter on property.
func unionOn(fb ir.FilterBranch, property string) []string {
	set := map[string]struct{}{}
	for _, v := range ir.ValuesFor(ir.NodeFromFilterBranch(fb), property) {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func requireBranch(t *testing.T, flow ir.Flow, name string) ir.ListBranch {
	t.Helper()
	lb, ok := FindBranch(flow, name)
	require.True(t, ok, "branch %q not found", name)
	return lb
}

func assertCap(t *testing.T, fb ir.FilterBranch, property string, maxValues int) {
	t.Helper()
	for _, f := range filtersOn(fb, property) {
		require.LessOrEqual(t, len(f.Operation.Values), maxValues, "filter on %s exceeds cap", property)
	}
}
