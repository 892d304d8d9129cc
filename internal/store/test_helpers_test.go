package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/flowfilter/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFlow creates a flow with one list branch holding zips.
func createTestFlow(id string, zips ...string) ir.Flow {
	return ir.Flow{
		ID: id,
		Actions: []ir.Action{{
			ActionID: "1",
			Type:     ir.ActionTypeListBranch,
			ListBranches: []ir.ListBranch{{
				BranchName: "West",
				FilterBranch: ir.FilterBranch{
					Filters: []ir.FlowFilter{{
						Property: "zip",
						Operation: ir.Operation{
							Operator:      ir.OperatorIsAnyOf,
							Values:        zips,
							OperationType: ir.OperationTypeMultiString,
						},
						FilterType: ir.FilterTypeProperty,
					}},
					FilterBranchType:     ir.LogicAnd,
					FilterBranchOperator: ir.LogicAnd,
				},
			}},
		}},
	}
}
