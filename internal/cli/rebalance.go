package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flowfilter/internal/filtertree"
	"github.com/roach88/flowfilter/internal/ir"
)

// RebalanceOptions holds flags for the rebalance command.
type RebalanceOptions struct {
	*RootOptions
	Branch    string
	Property  string
	MaxValues int
	Out       string
	Database  string
	DryRun    bool
}

// RebalanceResult is the output of the rebalance command.
type RebalanceResult struct {
	FlowID      string                  `json:"flow_id"`
	Branch      string                  `json:"branch"`
	Property    string                  `json:"property"`
	MaxValues   int                     `json:"max_values"`
	Before      BranchInfo              `json:"before"`
	After       BranchInfo              `json:"after"`
	Hash        string                  `json:"hash"`
	DryRun      bool                    `json:"dry_run,omitempty"`
	Saved       *saveResult             `json:"saved,omitempty"`
	Diagnostics []filtertree.Diagnostic `json:"diagnostics"`
}

// NewRebalanceCommand creates the rebalance command.
func NewRebalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebalance <flow>",
		Short: "Split oversized filters of one branch",
		Long: `Split every filter on --property in the named branch that holds more
than the cap into sibling clauses, keeping the matched values unchanged.

<flow> is a flow JSON file (requires --out), or a flow id when --db is given.

Examples:
  flowfilter rebalance ./flow.json --branch West --property zip --out ./flow.new.json
  flowfilter rebalance 587624318 --db ./flows.db --branch West --property zip --max 500`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebalance(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Branch, "branch", "", "name of the list branch to rebalance (required)")
	cmd.Flags().StringVar(&opts.Property, "property", "", "property whose filters are split (required)")
	cmd.Flags().IntVar(&opts.MaxValues, "max", 0, "values per filter (default from config)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the rebalanced flow to this file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "read and store the flow in this SQLite database")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report without writing")
	_ = cmd.MarkFlagRequired("branch")
	_ = cmd.MarkFlagRequired("property")

	return cmd
}

func runRebalance(opts *RebalanceOptions, ref string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	log := opts.logger()

	if opts.MaxValues < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--max must be > 0, got %d", opts.MaxValues))
	}

	flow, src, err := openFlow(ctx, ref, opts.Database)
	if err != nil {
		return err
	}
	defer src.close()

	rec := &filtertree.Recorder{}
	editor := opts.newEditor(rec, opts.MaxValues)
	updated, err := editor.RebalanceNamedBranch(flow, opts.Branch, opts.Property, 0)
	if err != nil {
		code := ExitFailure
		if filtertree.IsInvalidArgument(err) {
			code = ExitCommandError
		}
		return WrapExitError(code, "cannot rebalance", err)
	}
	before, _ := filtertree.FindBranch(flow, opts.Branch)
	after, _ := filtertree.FindBranch(updated, opts.Branch)

	hash, err := ir.FlowHash(updated)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash flow", err)
	}

	result := RebalanceResult{
		FlowID:      updated.ID,
		Branch:      opts.Branch,
		Property:    opts.Property,
		MaxValues:   editor.MaxValues(),
		Before:      summarize(filtertree.BranchRef{Branch: before}),
		After:       summarize(filtertree.BranchRef{Branch: after}),
		Hash:        hash,
		DryRun:      opts.DryRun,
		Diagnostics: diagnosticsOf(rec),
	}

	if !opts.DryRun {
		saved, err := src.save(ctx, updated, opts.Out, "rebalance "+opts.Branch)
		if err != nil {
			return err
		}
		result.Saved = &saved
	}

	log.Info("rebalanced branch",
		"source", src.describe(),
		"branch", opts.Branch,
		"property", opts.Property,
		"filters_before", result.Before.Filters,
		"filters_after", result.After.Filters,
	)
	return opts.formatter(cmd).Success(result)
}

// diagnosticsOf returns the recorded diagnostics, never nil.
func diagnosticsOf(rec *filtertree.Recorder) []filtertree.Diagnostic {
	if events := rec.Events(); events != nil {
		return events
	}
	return []filtertree.Diagnostic{}
}

// RenderText implements TextRenderer.
func (r RebalanceResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Rebalanced %q on %s (cap %d)\n", r.Branch, r.Property, r.MaxValues)
	fmt.Fprintf(w, "  before: filters=%d largest=%d\n", r.Before.Filters, r.Before.LargestFilter)
	fmt.Fprintf(w, "  after:  filters=%d largest=%d\n", r.After.Filters, r.After.LargestFilter)
	renderSaved(w, r.DryRun, r.Saved)
	if verbose {
		renderDiagnostics(w, r.Diagnostics)
	}
}

func renderSaved(w io.Writer, dryRun bool, s *saveResult) {
	switch {
	case dryRun:
		fmt.Fprintln(w, "Dry run: nothing written.")
	case s == nil:
	default:
		if s.Out != "" {
			fmt.Fprintf(w, "Wrote %s\n", s.Out)
		}
		if s.Stored != nil {
			if s.Skipped {
				fmt.Fprintf(w, "Store unchanged at version %d\n", s.Stored.Version)
			} else {
				fmt.Fprintf(w, "Stored version %d (%s)\n", s.Stored.Version, s.Stored.RevisionID)
			}
		}
	}
}

func renderDiagnostics(w io.Writer, diags []filtertree.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(w, "Diagnostics:")
	for _, d := range diags {
		fmt.Fprintf(w, "  [%s] %s %s", d.Kind, d.Branch, d.Property)
		if d.Message != "" {
			fmt.Fprintf(w, ": %s", d.Message)
		}
		if len(d.Sizes) > 0 {
			fmt.Fprintf(w, " sizes=%v", d.Sizes)
		}
		fmt.Fprintln(w)
	}
}
