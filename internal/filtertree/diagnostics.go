package filtertree

import (
	"context"
	"log/slog"
	"sync"
)

// Kind names a diagnostic event.
type Kind string

const (
	// KindNoOp: a filter edit left the value set unchanged.
	KindNoOp Kind = "no_op"
	// KindBranchNotFound: an update targeted a name no branch carries.
	KindBranchNotFound Kind = "branch_not_found"
	// KindDistribution: a replace was spread across owner children.
	KindDistribution Kind = "distribution_triggered"
	// KindPartition: sizes of the batches a value list was cut into.
	KindPartition Kind = "partition_sizes"
	// KindRebalance: an oversized filter was split into sibling clauses.
	KindRebalance Kind = "rebalanced"
	// KindCapUnenforceable: an oversized filter could not be split soundly.
	KindCapUnenforceable Kind = "cap_unenforceable"
	// KindBranchUnchanged: an update produced an identical branch.
	KindBranchUnchanged Kind = "branch_unchanged"
	// KindSurplusUnscoped: redistribution added leaves without the other
	// filters its owners carry.
	KindSurplusUnscoped Kind = "surplus_unscoped"
)

// Diagnostic is a structured, non-fatal event emitted by the editor.
type Diagnostic struct {
	Kind     Kind           `json:"kind"`
	Branch   string         `json:"branch,omitempty"`
	Property string         `json:"property,omitempty"`
	Message  string         `json:"message,omitempty"`
	Counts   map[string]int `json:"counts,omitempty"`
	Sizes    []int          `json:"sizes,omitempty"`
}

// Sink receives diagnostics. Implementations must not modify the tree.
type Sink interface {
	Emit(Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

// Emit calls f(d).
func (f SinkFunc) Emit(d Diagnostic) { f(d) }

// Recorder collects diagnostics in emission order.
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Diagnostic
}

// Emit appends d.
func (r *Recorder) Emit(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, d)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.events...)
}

// OfKind returns the recorded diagnostics of kind k.
func (r *Recorder) OfKind(k Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Events() {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Reset discards recorded diagnostics.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// SlogSink forwards diagnostics to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
}

// Emit logs d at a level chosen by its kind.
func (s SlogSink) Emit(d Diagnostic) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{slog.String("kind", string(d.Kind))}
	if d.Branch != "" {
		attrs = append(attrs, slog.String("branch", d.Branch))
	}
	if d.Property != "" {
		attrs = append(attrs, slog.String("property", d.Property))
	}
	for k, v := range d.Counts {
		attrs = append(attrs, slog.Int(k, v))
	}
	if len(d.Sizes) > 0 {
		attrs = append(attrs, slog.Any("sizes", d.Sizes))
	}

	msg := d.Message
	if msg == "" {
		msg = string(d.Kind)
	}
	logger.LogAttrs(context.Background(), levelFor(d.Kind), msg, attrs...)
}

func levelFor(k Kind) slog.Level {
	switch k {
	case KindNoOp, KindBranchUnchanged, KindPartition:
		return slog.LevelDebug
	case KindBranchNotFound, KindCapUnenforceable:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// multiSink fans a diagnostic out to several sinks.
type multiSink []Sink

func (m multiSink) Emit(d Diagnostic) {
	for _, s := range m {
		s.Emit(d)
	}
}

// Tee returns a Sink that forwards to every non-nil sink given.
func Tee(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
