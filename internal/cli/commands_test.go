package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowfilter/internal/filtertree"
	"github.com/roach88/flowfilter/internal/ir"
)

const testFlowID = "587624318"

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeData unmarshals the data of an ok JSON response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func readFlow(t *testing.T, path string) ir.Flow {
	t.Helper()
	flow, err := readFlowFile(path)
	require.NoError(t, err)
	return flow
}

func zipValues(t *testing.T, flow ir.Flow, branch string) []string {
	t.Helper()
	lb, ok := filtertree.FindBranch(flow, branch)
	require.True(t, ok, "branch %q", branch)
	return ir.ValuesFor(ir.NodeFromFilterBranch(lb.FilterBranch), "zip")
}

func importTestFlow(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "flows.db")
	_, _, err := execute(t, "import", testFlowID, "testdata/flow.json", "--db", db)
	require.NoError(t, err)
	return db
}

func TestBranches_JSONGolden(t *testing.T) {
	out, _, err := execute(t, "branches", "testdata/flow.json", "--format", "json")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "branches_json", []byte(out))
}

func TestBranches_Text(t *testing.T) {
	out, _, err := execute(t, "branches", "testdata/flow.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Flow 587624318: 2 branches")
	assert.Contains(t, out, "Branch names are unique.")
	assert.NotContains(t, out, "Ignored")
}

func TestBranches_FromStore(t *testing.T) {
	db := importTestFlow(t)

	out, _, err := execute(t, "branches", testFlowID, "--db", db, "--format", "json")
	require.NoError(t, err)

	var res BranchesResult
	decodeData(t, out, &res)
	assert.Equal(t, testFlowID, res.FlowID)
	assert.Len(t, res.Branches, 2)

	_, _, err = execute(t, "branches", "unknown", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRebalance_WritesOut(t *testing.T) {
	out := filepath.Join(t.TempDir(), "flow.json")

	stdout, _, err := execute(t, "rebalance", "testdata/flow.json",
		"--branch", "West", "--property", "zip", "--max", "2", "--out", out, "--format", "json")
	require.NoError(t, err)

	var res RebalanceResult
	decodeData(t, stdout, &res)
	assert.Equal(t, 2, res.MaxValues)
	assert.Equal(t, 3, res.Before.LargestFilter)
	assert.Equal(t, 2, res.After.LargestFilter)
	assert.Equal(t, res.Before.Filters+1, res.After.Filters)
	require.NotNil(t, res.Saved)
	assert.Equal(t, out, res.Saved.Out)

	flow := readFlow(t, out)
	assert.ElementsMatch(t, []string{"98101", "98102", "98103"}, zipValues(t, flow, "West"))
	assert.Equal(t, res.Hash, ir.MustFlowHash(flow))

	original := readFlow(t, "testdata/flow.json")
	assert.Equal(t, original.Extra, flow.Extra, "unknown fields survive")
}

func TestRebalance_Errors(t *testing.T) {
	_, _, err := execute(t, "rebalance", "testdata/flow.json", "--branch", "West", "--property", "zip")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "file source without --out")

	_, _, err = execute(t, "rebalance", "testdata/flow.json", "--branch", "Nowhere", "--property", "zip", "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, CodeNotFound, ErrorCode(err))

	_, _, err = execute(t, "rebalance", "testdata/flow.json", "--property", "zip", "--dry-run")
	require.Error(t, err, "--branch is required")
}

func TestRebalance_StoreDryRun(t *testing.T) {
	db := importTestFlow(t)

	stdout, _, err := execute(t, "rebalance", testFlowID, "--db", db,
		"--branch", "West", "--property", "zip", "--max", "1", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Dry run: nothing written.")

	out, _, err := execute(t, "history", testFlowID, "--db", db, "--format", "json")
	require.NoError(t, err)
	var hist HistoryResult
	decodeData(t, out, &hist)
	assert.Len(t, hist.Revisions, 1)
}

func TestApply_FlowFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "flow.json")

	stdout, _, err := execute(t, "apply", "testdata/west.yaml", "--out", out, "--format", "json")
	require.NoError(t, err)

	var res ApplyResult
	decodeData(t, stdout, &res)
	assert.Equal(t, testFlowID, res.FlowID)
	assert.Equal(t, 3, res.Updates)
	assert.Equal(t, 2, res.Report.Applied)
	require.Len(t, res.Report.Dropped, 1)
	assert.Equal(t, "North", res.Report.Dropped[0].BranchName)
	assert.NotEqual(t, res.HashBefore, res.HashAfter)

	var notFound int
	for _, d := range res.Diagnostics {
		if d.Kind == filtertree.KindBranchNotFound {
			notFound++
		}
	}
	assert.Equal(t, 1, notFound)

	flow := readFlow(t, out)
	assert.ElementsMatch(t, []string{"98101", "98102", "97201"}, zipValues(t, flow, "West"))
	assert.ElementsMatch(t, []string{"10002", "10003"}, zipValues(t, flow, "East"))
	assert.Equal(t, res.HashAfter, ir.MustFlowHash(flow))
}

func TestApply_DryRunWritesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "flow.json")

	stdout, _, err := execute(t, "apply", "testdata/west.yaml", "--out", out, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 applied, 0 unchanged, 1 dropped")
	assert.Contains(t, stdout, "Dry run: nothing written.")
	assert.Contains(t, stdout, "branch_not_found")

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestApply_StoreFlow(t *testing.T) {
	db := importTestFlow(t)
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`name: east refresh
flow: "587624318"
updates:
  - branch: East
    property: zip
    add: ["10002"]
`), 0o644))

	_, _, err := execute(t, "apply", planPath, "--db", db)
	require.NoError(t, err)

	// Same plan again: nothing changes, nothing is stored.
	stdout, _, err := execute(t, "apply", planPath, "--db", db, "--format", "json")
	require.NoError(t, err)
	var res ApplyResult
	decodeData(t, stdout, &res)
	assert.Equal(t, 1, res.Report.Unchanged)
	require.NotNil(t, res.Saved)
	assert.True(t, res.Saved.Skipped)

	out, _, err := execute(t, "history", testFlowID, "--db", db, "--format", "json")
	require.NoError(t, err)
	var hist HistoryResult
	decodeData(t, out, &hist)
	require.Len(t, hist.Revisions, 2)
	assert.Equal(t, int64(2), hist.Revisions[1].Version)
	assert.Equal(t, "east refresh", hist.Revisions[1].Note)
}

func TestApply_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	flow := readFlow(t, "testdata/flow.json")
	flow.Actions[0].ListBranches[1].BranchName = "West"
	flowPath := filepath.Join(dir, "flow.json")
	require.NoError(t, writeFlowFile(flowPath, flow))

	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`flow_file: flow.json
updates:
  - branch: West
    property: zip
    add: ["98104"]
`), 0o644))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"apply", planPath, "--out", filepath.Join(dir, "out.json"), "--format", "json"}, &stdout, &stderr)
	assert.Equal(t, ExitFailure, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeDuplicateNames, resp.Error.Code)

	_, _, err := execute(t, "apply", planPath, "--out", filepath.Join(dir, "out.json"), "--allow-duplicates")
	require.NoError(t, err)
	assert.Contains(t, zipValues(t, readFlow(t, filepath.Join(dir, "out.json")), "West"), "98104")
}

func TestApply_InvalidPlan(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte("flow_file: flow.json\nupdates: []\n"), 0o644))

	_, _, err := execute(t, "apply", planPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, CodeInvalidInput, ErrorCode(err))
}

func TestImportExport_RoundTrip(t *testing.T) {
	db := importTestFlow(t)

	stdout, _, err := execute(t, "export", testFlowID, "--db", db)
	require.NoError(t, err)
	exported, err := ir.ParseFlow([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, ir.MustFlowHash(readFlow(t, "testdata/flow.json")), ir.MustFlowHash(exported))

	out, _, err := execute(t, "import", testFlowID, "testdata/flow.json", "--db", db, "--format", "json")
	require.NoError(t, err)
	var res ImportResult
	decodeData(t, out, &res)
	assert.False(t, res.Result.Changed)
	assert.Equal(t, int64(1), res.Result.Version)
}

func TestExport_RevisionToFile(t *testing.T) {
	db := importTestFlow(t)
	dir := t.TempDir()

	edited := readFlow(t, "testdata/flow.json")
	edited.Actions[0].ListBranches[1].FilterBranch.Filters[0].Operation.Values = []string{"10009"}
	editedPath := filepath.Join(dir, "edited.json")
	require.NoError(t, writeFlowFile(editedPath, edited))
	_, _, err := execute(t, "import", testFlowID, editedPath, "--db", db)
	require.NoError(t, err)

	v1 := filepath.Join(dir, "v1.json")
	stdout, _, err := execute(t, "export", testFlowID, "--db", db, "--revision", "1", "--out", v1)
	require.NoError(t, err)
	assert.Contains(t, stdout, "version 1")
	assert.Equal(t, []string{"10001"}, zipValues(t, readFlow(t, v1), "East"))

	latest, _, err := execute(t, "export", testFlowID, "--db", db)
	require.NoError(t, err)
	flow, err := ir.ParseFlow([]byte(latest))
	require.NoError(t, err)
	assert.Equal(t, []string{"10009"}, zipValues(t, flow, "East"))

	_, _, err = execute(t, "export", "missing", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestHistory_Text(t *testing.T) {
	db := importTestFlow(t)

	out, _, err := execute(t, "history", testFlowID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Flow 587624318: 1 revisions")
	assert.Contains(t, out, "import testdata/flow.json")
}

func TestFlows_ListsStoredFlows(t *testing.T) {
	db := importTestFlow(t)
	_, _, err := execute(t, "import", "other", "testdata/flow.json", "--db", db)
	require.NoError(t, err)

	out, _, err := execute(t, "flows", "--db", db, "--format", "json")
	require.NoError(t, err)
	var res FlowsResult
	decodeData(t, out, &res)
	require.Len(t, res.Flows, 2)
	assert.Equal(t, testFlowID, res.Flows[0].ID)
	assert.Equal(t, "other", res.Flows[1].ID)
	assert.Equal(t, int64(1), res.Flows[0].Version)
	assert.Equal(t, ir.MustFlowHash(readFlow(t, "testdata/flow.json")), res.Flows[0].Hash)

	text, _, err := execute(t, "flows", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, text, "2 stored flows")
	assert.Contains(t, text, testFlowID)
}

func TestFlows_EmptyStore(t *testing.T) {
	out, _, err := execute(t, "flows", "--db", filepath.Join(t.TempDir(), "flows.db"), "--format", "json")
	require.NoError(t, err)
	var res FlowsResult
	decodeData(t, out, &res)
	assert.Empty(t, res.Flows)
}

func TestExport_ByHash(t *testing.T) {
	db := importTestFlow(t)
	dir := t.TempDir()
	original := readFlow(t, "testdata/flow.json")
	hash := ir.MustFlowHash(original)

	edited := original.Clone()
	edited.Actions[0].ListBranches[1].FilterBranch.Filters[0].Operation.Values = []string{"10009"}
	editedPath := filepath.Join(dir, "edited.json")
	require.NoError(t, writeFlowFile(editedPath, edited))
	_, _, err := execute(t, "import", testFlowID, editedPath, "--db", db)
	require.NoError(t, err)

	stdout, _, err := execute(t, "export", "--db", db, "--hash", hash)
	require.NoError(t, err)
	flow, err := ir.ParseFlow([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, []string{"10001"}, zipValues(t, flow, "East"))

	// Same content stored later under a second id still resolves per id.
	_, _, err = execute(t, "import", "copy", "testdata/flow.json", "--db", db)
	require.NoError(t, err)
	v1 := filepath.Join(dir, "copy.json")
	out, _, err := execute(t, "export", "copy", "--db", db, "--hash", hash, "--out", v1, "--format", "json")
	require.NoError(t, err)
	var res ExportResult
	decodeData(t, out, &res)
	assert.Equal(t, "copy", res.FlowID)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, hash, ir.MustFlowHash(readFlow(t, v1)))
}

func TestExport_ByHashErrors(t *testing.T) {
	db := importTestFlow(t)

	_, _, err := execute(t, "export", "--db", db, "--hash", "0000")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, _, err = execute(t, "export", testFlowID, "--db", db, "--hash", "0000", "--revision", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "export", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
