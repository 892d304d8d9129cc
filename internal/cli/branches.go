package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flowfilter/internal/filtertree"
	"github.com/roach88/flowfilter/internal/ir"
)

// BranchesOptions holds flags for the branches command.
type BranchesOptions struct {
	*RootOptions
	Database string
}

// BranchInfo summarizes one list branch.
type BranchInfo struct {
	ActionID      string `json:"action_id"`
	Name          string `json:"name"`
	Filters       int    `json:"filters"`
	Values        int    `json:"values"`
	LargestFilter int    `json:"largest_filter"`
}

// BranchesResult is the output of the branches command.
type BranchesResult struct {
	FlowID     string       `json:"flow_id"`
	Branches   []BranchInfo `json:"branches"`
	Unique     bool         `json:"unique"`
	Duplicates []string     `json:"duplicates,omitempty"`
	maxValues  int
}

// NewBranchesCommand creates the branches command.
func NewBranchesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BranchesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "branches <flow>",
		Short: "List the named branches of a flow",
		Long: `List every list branch of a flow with its filter and value counts,
and report whether branch names are unique.

<flow> is a flow JSON file, or a flow id when --db is given.

Examples:
  flowfilter branches ./flow.json
  flowfilter branches 587624318 --db ./flows.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranches(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "read the flow from this SQLite database")

	return cmd
}

func runBranches(opts *BranchesOptions, ref string, cmd *cobra.Command) error {
	flow, src, err := openFlow(commandContext(cmd), ref, opts.Database)
	if err != nil {
		return err
	}
	defer src.close()

	result := BranchesResult{
		FlowID:     flow.ID,
		Branches:   []BranchInfo{},
		Unique:     filtertree.HasUniqueNames(flow),
		Duplicates: filtertree.DuplicateNames(flow),
		maxValues:  opts.settings().MaxValuesPerFilter,
	}
	for _, br := range filtertree.Branches(flow) {
		result.Branches = append(result.Branches, summarize(br))
	}

	opts.logger().Debug("listed branches", "source", src.describe(), "count", len(result.Branches))
	return opts.formatter(cmd).Success(result)
}

func summarize(ref filtertree.BranchRef) BranchInfo {
	info := BranchInfo{ActionID: ref.ActionID, Name: ref.Branch.BranchName}
	ir.Walk(ir.NodeFromFilterBranch(ref.Branch.FilterBranch), func(f ir.FlowFilter) bool {
		info.Filters++
		n := len(f.Operation.Values)
		info.Values += n
		info.LargestFilter = max(info.LargestFilter, n)
		return true
	})
	return info
}

// RenderText implements TextRenderer.
func (r BranchesResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Flow %s: %d branches\n", r.FlowID, len(r.Branches))
	for _, b := range r.Branches {
		marker := ""
		if r.maxValues > 0 && b.LargestFilter > r.maxValues {
			marker = "  (over cap)"
		}
		fmt.Fprintf(w, "  %-24s action=%s filters=%d values=%d largest=%d%s\n",
			b.Name, b.ActionID, b.Filters, b.Values, b.LargestFilter, marker)
	}
	if r.Unique {
		fmt.Fprintln(w, "Branch names are unique.")
		return
	}
	fmt.Fprintf(w, "Duplicate branch names: %v\n", r.Duplicates)
}
