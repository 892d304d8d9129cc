package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/flowfilter/internal/filtertree"
	"github.com/roach88/flowfilter/internal/ir"
	"github.com/roach88/flowfilter/internal/store"
)

// flowSource remembers where a flow was read from so the edited flow can
// be written back the same way.
type flowSource struct {
	id      string // store id when st != nil
	path    string // file path otherwise
	version int64
	st      *store.Store
}

// openFlow reads a flow from the store when db is set (ref is a flow id)
// or from the JSON file ref otherwise. The caller must close the source.
func openFlow(ctx context.Context, ref, db string) (ir.Flow, *flowSource, error) {
	if db == "" {
		flow, err := readFlowFile(ref)
		if err != nil {
			return ir.Flow{}, nil, WrapExitError(ExitCommandError, "failed to read flow", err)
		}
		return flow, &flowSource{path: ref}, nil
	}

	st, err := store.Open(db)
	if err != nil {
		return ir.Flow{}, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	flow, version, err := st.Get(ctx, ref)
	if err != nil {
		st.Close()
		code := ExitCommandError
		if errors.Is(err, store.ErrNotFound) {
			code = ExitFailure
		}
		return ir.Flow{}, nil, WrapExitError(code, "failed to load flow", err)
	}
	return flow, &flowSource{id: ref, version: version, st: st}, nil
}

func (s *flowSource) close() {
	if s != nil && s.st != nil {
		s.st.Close()
	}
}

// describe names the source for logs and results.
func (s *flowSource) describe() string {
	if s.st != nil {
		return "store:" + s.id
	}
	return s.path
}

// saveResult reports where an edited flow went.
type saveResult struct {
	Out     string           `json:"out,omitempty"`
	Stored  *store.PutResult `json:"stored,omitempty"`
	Skipped bool             `json:"skipped,omitempty"`
}

// save writes flow to out when set and back to the store when the flow
// came from one. A file-sourced flow needs out.
func (s *flowSource) save(ctx context.Context, flow ir.Flow, out, note string) (saveResult, error) {
	var res saveResult
	if s.st == nil && out == "" {
		return res, NewExitError(ExitCommandError, "--out is required when the flow is read from a file")
	}
	if out != "" {
		if err := writeFlowFile(out, flow); err != nil {
			return res, WrapExitError(ExitCommandError, "failed to write flow", err)
		}
		res.Out = out
	}
	if s.st != nil {
		put, err := s.st.Put(ctx, s.id, flow, s.version, store.WithNote(note))
		if err != nil {
			code := ExitCommandError
			if errors.Is(err, store.ErrVersionConflict) {
				code = ExitFailure
			}
			return res, WrapExitError(code, "failed to store flow", err)
		}
		res.Stored = &put
		res.Skipped = !put.Changed
	}
	return res, nil
}

// newEditor builds an editor whose diagnostics go to rec and to the
// command logger.
func (o *RootOptions) newEditor(rec *filtertree.Recorder, maxValues int) *filtertree.Editor {
	if maxValues <= 0 {
		maxValues = o.settings().MaxValuesPerFilter
	}
	return filtertree.New(
		filtertree.WithMaxValues(maxValues),
		filtertree.WithSink(filtertree.Tee(rec, filtertree.SlogSink{Logger: o.logger()})),
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func readFlowFile(path string) (ir.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Flow{}, err
	}
	flow, err := ir.ParseFlow(data)
	if err != nil {
		return ir.Flow{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return flow, nil
}

func writeFlowFile(path string, flow ir.Flow) error {
	data, err := marshalFlow(flow)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// marshalFlow renders a flow as indented JSON with a trailing newline.
func marshalFlow(flow ir.Flow) ([]byte, error) {
	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode flow: %w", err)
	}
	return append(data, '\n'), nil
}
