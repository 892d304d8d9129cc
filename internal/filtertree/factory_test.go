package filtertree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowfilter/internal/ir"
)

func TestLeafFor(t *testing.T) {
	leaf := LeafFor("zip", []string{"98101", "98102"})
	require.NotNil(t, leaf)

	assert.Equal(t, "zip", leaf.Filter.Property)
	assert.Equal(t, ir.OperatorContains, leaf.Filter.Operation.Operator)
	assert.Equal(t, ir.OperationTypeMultiString, leaf.Filter.Operation.OperationType)
	assert.Equal(t, ir.FilterTypeProperty, leaf.Filter.FilterType)
	assert.False(t, leaf.Filter.Operation.IncludeObjectsWithNoValueSet)
	assert.Equal(t, []string{"98101", "98102"}, leaf.Filter.Operation.Values)

	fb := ir.ToFilterBranch(*leaf)
	assert.Empty(t, fb.FilterBranches)
	assert.Len(t, fb.Filters, 1)
	assert.Equal(t, ir.LogicAnd, fb.FilterBranchType)
	assert.Equal(t, ir.LogicAnd, fb.FilterBranchOperator)
}

func TestLeafFor_EmptyBatch(t *testing.T) {
	assert.Nil(t, LeafFor("zip", nil))
	assert.Nil(t, LeafFor("zip", []string{}))
}

func TestLeafFor_CopiesValues(t *testing.T) {
	values := []string{"a"}
	leaf := LeafFor("zip", values)
	values[0] = "b"
	assert.Equal(t, []string{"a"}, leaf.Filter.Operation.Values)
}

func TestLeafLike_KeepsTemplateOperation(t *testing.T) {
	tmpl := containsFilter("zip", "1")
	tmpl.Operation.Operator = ir.OperatorIsAnyOf
	tmpl.Operation.OperationType = ir.OperationTypeEnumeration
	tmpl.Operation.IncludeObjectsWithNoValueSet = true

	leaf := LeafLike(tmpl, []string{"2", "3"})
	require.NotNil(t, leaf)
	assert.Equal(t, ir.OperatorIsAnyOf, leaf.Filter.Operation.Operator)
	assert.Equal(t, ir.OperationTypeEnumeration, leaf.Filter.Operation.OperationType)
	assert.True(t, leaf.Filter.Operation.IncludeObjectsWithNoValueSet)
	assert.Equal(t, []string{"2", "3"}, leaf.Filter.Operation.Values)
}

func TestLeafLike_KeepsTemplateUnknownFields(t *testing.T) {
	tmpl := containsFilter("zip", "1")
	tmpl.Extra = map[string]json.RawMessage{"propertyObjectType": json.RawMessage(`"CONTACT"`)}
	tmpl.Operation.Extra = map[string]json.RawMessage{"propertyParser": json.RawMessage(`"ZIP5"`)}

	leaf := LeafLike(tmpl, []string{"2"})
	require.NotNil(t, leaf)
	assert.Equal(t, tmpl.Extra, leaf.Filter.Extra)
	assert.Equal(t, tmpl.Operation.Extra, leaf.Filter.Operation.Extra)

	leaf.Filter.Extra["propertyObjectType"] = json.RawMessage(`"DEAL"`)
	assert.JSONEq(t, `"CONTACT"`, string(tmpl.Extra["propertyObjectType"]))
}

func TestLeavesFor_SkipsEmptyBatches(t *testing.T) {
	leaves := LeavesFor([][]string{{"a"}, {}, {"b", "c"}}, "zip")
	require.Len(t, leaves, 2)
	assert.Equal(t, []string{"a"}, leaves[0].(ir.Leaf).Filter.Operation.Values)
	assert.Equal(t, []string{"b", "c"}, leaves[1].(ir.Leaf).Filter.Operation.Values)
}
