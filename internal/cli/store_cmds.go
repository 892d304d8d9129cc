package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flowfilter/internal/ir"
	"github.com/roach88/flowfilter/internal/store"
)

// StoreOptions holds flags shared by the flows, import, export and history
// commands.
type StoreOptions struct {
	*RootOptions
	Database string
}

func (o *StoreOptions) open() (*store.Store, error) {
	db := o.Database
	if db == "" {
		db = o.settings().Database
	}
	st, err := store.Open(db)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func (o *StoreOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "SQLite database (default from config)")
}

// FlowsResult is the output of the flows command.
type FlowsResult struct {
	Flows []store.FlowInfo `json:"flows"`
}

// NewFlowsCommand creates the flows command.
func NewFlowsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flows",
		Short: "List the flows held in the database",
		Long: `List every stored flow with its current version and content hash.

Examples:
  flowfilter flows --db ./flows.db
  flowfilter flows --db ./flows.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlows(opts, cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runFlows(opts *StoreOptions, cmd *cobra.Command) error {
	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	flows, err := st.List(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list flows", err)
	}
	opts.logger().Debug("listed flows", "count", len(flows))
	return opts.formatter(cmd).Success(FlowsResult{Flows: flows})
}

// RenderText implements TextRenderer.
func (r FlowsResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "%d stored flows\n", len(r.Flows))
	for _, f := range r.Flows {
		hash := f.Hash
		if !verbose && len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(w, "  %-16s v%-4d %s\n", f.ID, f.Version, hash)
	}
}

// ImportResult is the output of the import command.
type ImportResult struct {
	FlowID string          `json:"flow_id"`
	File   string          `json:"file"`
	Result store.PutResult `json:"result"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <flow-id> <flow.json>",
		Short: "Store a flow JSON file under an id",
		Long: `Store a flow JSON file in the database, creating the flow or recording a
new version of it. Importing identical content writes nothing.

Examples:
  flowfilter import 587624318 ./flow.json --db ./flows.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], args[1], cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runImport(opts *StoreOptions, id, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	flow, err := readFlowFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow", err)
	}

	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	_, version, err := st.Get(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "failed to load flow", err)
	}

	put, err := st.Put(ctx, id, flow, version, store.WithNote("import "+path))
	if err != nil {
		code := ExitCommandError
		if errors.Is(err, store.ErrVersionConflict) {
			code = ExitFailure
		}
		return WrapExitError(code, "failed to store flow", err)
	}

	opts.logger().Info("imported flow", "flow_id", id, "version", put.Version, "changed", put.Changed)
	return opts.formatter(cmd).Success(ImportResult{FlowID: id, File: path, Result: put})
}

// RenderText implements TextRenderer.
func (r ImportResult) RenderText(w io.Writer, verbose bool) {
	if !r.Result.Changed {
		fmt.Fprintf(w, "Flow %s unchanged at version %d\n", r.FlowID, r.Result.Version)
		return
	}
	fmt.Fprintf(w, "Imported %s as flow %s version %d\n", r.File, r.FlowID, r.Result.Version)
	if verbose {
		fmt.Fprintf(w, "  revision: %s\n  hash: %s\n", r.Result.RevisionID, r.Result.Hash)
	}
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	StoreOptions
	Out      string
	Revision int64
	Hash     string
}

// ExportResult is reported when export writes to a file.
type ExportResult struct {
	FlowID  string `json:"flow_id"`
	Version int64  `json:"version"`
	Out     string `json:"out"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "export [flow-id]",
		Short: "Write a stored flow as JSON",
		Long: `Write a stored flow as JSON, to stdout or to --out. --revision selects an
earlier version; --hash selects the revision with that content hash (as
shown by history --verbose), in which case the flow id may be omitted.

Examples:
  flowfilter export 587624318 --db ./flows.db > flow.json
  flowfilter export 587624318 --db ./flows.db --revision 1 --out ./flow.v1.json
  flowfilter export --db ./flows.db --hash 3f1c...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runExport(opts, id, cmd)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Out, "out", "", "write to this file instead of stdout")
	cmd.Flags().Int64Var(&opts.Revision, "revision", 0, "version to export (default latest)")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "export the revision with this content hash")
	return cmd
}

func runExport(opts *ExportOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	switch {
	case opts.Hash != "" && opts.Revision > 0:
		return NewExitError(ExitCommandError, "--hash and --revision are mutually exclusive")
	case opts.Hash == "" && id == "":
		return NewExitError(ExitCommandError, "a flow id is required unless --hash is given")
	}

	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	var flow ir.Flow
	version := opts.Revision
	switch {
	case opts.Hash != "":
		var rev store.Revision
		if rev, err = revisionByHash(ctx, st, id, opts.Hash); err == nil {
			id, version = rev.FlowID, rev.Version
			flow, err = st.RevisionBody(ctx, id, version)
		}
	case version > 0:
		flow, err = st.RevisionBody(ctx, id, version)
	default:
		flow, version, err = st.Get(ctx, id)
	}
	if err != nil {
		code := ExitCommandError
		if errors.Is(err, store.ErrNotFound) {
			code = ExitFailure
		}
		return WrapExitError(code, "failed to load flow", err)
	}

	if opts.Out == "" {
		// Raw flow JSON, so the output can be piped back into import.
		data, err := marshalFlow(flow)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode flow", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := writeFlowFile(opts.Out, flow); err != nil {
		return WrapExitError(ExitCommandError, "failed to write flow", err)
	}
	opts.logger().Debug("exported flow", "flow_id", id, "version", version, "out", opts.Out)
	return opts.formatter(cmd).Success(ExportResult{FlowID: id, Version: version, Out: opts.Out})
}

// revisionByHash finds the revision whose content hash is hash, limited to
// flow id when id is set.
func revisionByHash(ctx context.Context, st *store.Store, id, hash string) (store.Revision, error) {
	rev, err := st.RevisionByHash(ctx, hash)
	if err != nil || id == "" || rev.FlowID == id {
		return rev, err
	}
	// Identical content stored under several ids; look in id's own history.
	revs, err := st.Revisions(ctx, id)
	if err != nil {
		return store.Revision{}, err
	}
	for _, r := range revs {
		if r.Hash == hash {
			return r, nil
		}
	}
	return store.Revision{}, fmt.Errorf("flow %q has no revision with hash %s: %w", id, hash, store.ErrNotFound)
}

// RenderText implements TextRenderer.
func (r ExportResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Exported flow %s version %d to %s\n", r.FlowID, r.Version, r.Out)
}

// HistoryResult is the output of the history command.
type HistoryResult struct {
	FlowID    string           `json:"flow_id"`
	Revisions []store.Revision `json:"revisions"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <flow-id>",
		Short: "List the stored revisions of a flow",
		Long: `List every accepted write of a flow, oldest first, with its version,
content hash and note.

Examples:
  flowfilter history 587624318 --db ./flows.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runHistory(opts *StoreOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	revs, err := st.Revisions(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list revisions", err)
	}
	if len(revs) == 0 {
		return WrapExitError(ExitFailure, "no history", fmt.Errorf("flow %q: %w", id, store.ErrNotFound))
	}
	return opts.formatter(cmd).Success(HistoryResult{FlowID: id, Revisions: revs})
}

// RenderText implements TextRenderer.
func (r HistoryResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Flow %s: %d revisions\n", r.FlowID, len(r.Revisions))
	for _, rev := range r.Revisions {
		hash := rev.Hash
		if !verbose && len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(w, "  v%-4d %s  %s  %s\n", rev.Version, hash, rev.ID, rev.Note)
	}
}
