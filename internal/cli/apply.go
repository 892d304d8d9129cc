package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flowfilter/internal/filtertree"
	"github.com/roach88/flowfilter/internal/ir"
	"github.com/roach88/flowfilter/internal/plan"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database        string
	Out             string
	DryRun          bool
	AllowDuplicates bool
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Plan        string                  `json:"plan"`
	FlowID      string                  `json:"flow_id"`
	Source      string                  `json:"source"`
	Updates     int                     `json:"updates"`
	Report      filtertree.Report       `json:"report"`
	HashBefore  string                  `json:"hash_before"`
	HashAfter   string                  `json:"hash_after"`
	DryRun      bool                    `json:"dry_run,omitempty"`
	Saved       *saveResult             `json:"saved,omitempty"`
	Diagnostics []filtertree.Diagnostic `json:"diagnostics"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <plan.yaml>",
		Short: "Apply an update plan to a flow",
		Long: `Apply the branch updates listed in a plan file, in order, and save the
result.

A plan names its flow either by store id (flow:, read from --db or the
configured database) or by file (flow_file:, written to --out). Updates
whose branch does not exist are dropped and reported.

The plan is refused when branch names in the flow are not unique, unless
--allow-duplicates is given; updates then target the first branch with
each name.

Examples:
  flowfilter apply ./west.yaml --out ./flow.new.json
  flowfilter apply ./west.yaml --db ./flows.db --dry-run --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for plans that name a flow id (default from config)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the updated flow to this file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report without writing")
	cmd.Flags().BoolVar(&opts.AllowDuplicates, "allow-duplicates", false, "apply even when branch names repeat")

	return cmd
}

func runApply(opts *ApplyOptions, planPath string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	log := opts.logger()

	p, err := plan.Load(planPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid plan", err)
	}
	updates, err := p.Resolve()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve plan values", err)
	}

	ref, db := p.FlowPath(), ""
	if p.Flow != "" {
		ref, db = p.Flow, opts.Database
		if db == "" {
			db = opts.settings().Database
		}
	}
	flow, src, err := openFlow(ctx, ref, db)
	if err != nil {
		return err
	}
	defer src.close()

	if dups := filtertree.DuplicateNames(flow); len(dups) > 0 {
		if !opts.AllowDuplicates {
			return WrapExitError(ExitFailure, fmt.Sprintf("flow %s has repeated branch names %v", flow.ID, dups), errDuplicateNames)
		}
		log.Warn("branch names repeat; updates target the first match", "duplicates", dups)
	}

	rec := &filtertree.Recorder{}
	editor := opts.newEditor(rec, p.MaxValues)
	updated, report, err := editor.BatchUpdate(flow, updates)
	if err != nil {
		return WrapExitError(ExitCommandError, "plan rejected", err)
	}

	result := ApplyResult{
		Plan:        planPath,
		FlowID:      flow.ID,
		Source:      src.describe(),
		Updates:     len(updates),
		Report:      report,
		DryRun:      opts.DryRun,
		Diagnostics: diagnosticsOf(rec),
	}
	if result.HashBefore, err = ir.FlowHash(flow); err != nil {
		return WrapExitError(ExitCommandError, "failed to hash flow", err)
	}
	if result.HashAfter, err = ir.FlowHash(updated); err != nil {
		return WrapExitError(ExitCommandError, "failed to hash flow", err)
	}

	if !opts.DryRun {
		note := p.Name
		if note == "" {
			note = "apply " + planPath
		}
		saved, err := src.save(ctx, updated, opts.Out, note)
		if err != nil {
			return err
		}
		result.Saved = &saved
	}

	log.Info("applied plan",
		"plan", planPath,
		"source", result.Source,
		"applied", report.Applied,
		"unchanged", report.Unchanged,
		"dropped", len(report.Dropped),
		"dry_run", opts.DryRun,
	)
	return opts.formatter(cmd).Success(result)
}

// RenderText implements TextRenderer.
func (r ApplyResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Applied %s to flow %s (%s)\n", r.Plan, r.FlowID, r.Source)
	fmt.Fprintf(w, "  updates: %d applied, %d unchanged, %d dropped\n",
		r.Report.Applied, r.Report.Unchanged, len(r.Report.Dropped))
	for _, d := range r.Report.Dropped {
		fmt.Fprintf(w, "  dropped #%d %q: %s\n", d.Index, d.BranchName, d.Reason)
	}
	if r.HashBefore == r.HashAfter {
		fmt.Fprintln(w, "  flow content unchanged")
	}
	renderSaved(w, r.DryRun, r.Saved)
	if verbose || r.DryRun {
		renderDiagnostics(w, r.Diagnostics)
	}
}
