package filtertree

import (
	"fmt"

	"github.com/roach88/flowfilter/internal/ir"
	"github.com/roach88/flowfilter/internal/partition"
)

// Editor applies value updates to the filter trees of a flow.
//
// An Editor holds only configuration, so one value may serve any number
// of flows. Thread-safety: methods do not mutate the Editor; concurrent
// use is safe as long as the Sink is.
type Editor struct {
	maxValues int
	sink      Sink
	branch    string // set on scoped copies to stamp diagnostics
}

// Option configures an Editor.
type Option func(*Editor)

// WithMaxValues sets the default cap on values per filter.
//
// Default: 5000 (ir.DefaultMaxValuesPerFilter)
// Use WithMaxValues(5) in tests to exercise splitting with small inputs.
func WithMaxValues(n int) Option {
	return func(e *Editor) {
		e.maxValues = n
	}
}

// WithSink sets the diagnostics sink. A nil sink discards diagnostics.
func WithSink(s Sink) Option {
	return func(e *Editor) {
		e.sink = s
	}
}

// New creates an Editor. A non-positive cap is reported when the Editor
// is used, before any tree is touched.
func New(opts ...Option) *Editor {
	e := &Editor{maxValues: ir.DefaultMaxValuesPerFilter}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxValues returns the default cap.
func (e *Editor) MaxValues() int {
	return e.maxValues
}

// Update is one requested change to a named branch.
type Update struct {
	BranchName string
	Property   string
	Add        []string
	Remove     []string
	Replace    bool
	// EnforceCap keeps every filter on Property at or under the cap.
	EnforceCap bool
	// MaxValues overrides the editor's cap for this update when > 0.
	MaxValues int
}

func (u Update) edit() Edit {
	return Edit{Property: u.Property, Add: u.Add, Remove: u.Remove, Replace: u.Replace}
}

// Dropped records an update BatchUpdate skipped.
type Dropped struct {
	Index      int    `json:"index"`
	BranchName string `json:"branch_name"`
	Reason     string `json:"reason"`
}

// Report summarizes a batch.
type Report struct {
	Applied   int       `json:"applied"`
	Unchanged int       `json:"unchanged"`
	Dropped   []Dropped `json:"dropped,omitempty"`
}

// UpdateNamedBranch applies u to the first list branch named u.BranchName
// and returns the new flow. The input flow is not modified.
//
// A missing branch yields a BRANCH_NOT_FOUND error together with the
// flow as given; callers decide whether to abort or skip.
func (e *Editor) UpdateNamedBranch(flow ir.Flow, u Update) (ir.Flow, error) {
	limit, err := e.resolveCap(u)
	if err != nil {
		return flow, err
	}
	out := flow.Clone()
	if _, err := e.apply(&out, u, limit); err != nil {
		return flow, err
	}
	return out, nil
}

// BatchUpdate validates every update, drops those whose branch does not
// exist (with a diagnostic), and applies the rest in order. Later updates
// see earlier ones' results. An invalid argument anywhere aborts the batch
// and the original flow is returned.
func (e *Editor) BatchUpdate(flow ir.Flow, updates []Update) (ir.Flow, Report, error) {
	var report Report

	limits := make([]int, len(updates))
	for i, u := range updates {
		limit, err := e.resolveCap(u)
		if err != nil {
			return flow, report, fmt.Errorf("update %d: %w", i, err)
		}
		limits[i] = limit
	}

	known := make(map[string]struct{})
	for _, name := range AllBranchNames(flow) {
		known[name] = struct{}{}
	}

	out := flow.Clone()
	for i, u := range updates {
		if _, ok := known[u.BranchName]; !ok {
			e.scoped(u.BranchName).emit(Diagnostic{
				Kind:     KindBranchNotFound,
				Property: u.Property,
				Message:  "update dropped: branch not found",
				Counts:   map[string]int{"index": i},
			})
			report.Dropped = append(report.Dropped, Dropped{Index: i, BranchName: u.BranchName, Reason: string(ErrCodeBranchNotFound)})
			continue
		}

		changed, err := e.apply(&out, u, limits[i])
		if err != nil {
			return flow, Report{}, fmt.Errorf("update %d: %w", i, err)
		}
		report.Applied++
		if !changed {
			report.Unchanged++
		}
	}
	return out, report, nil
}

// apply rewrites the named branch of flow in place. flow must already be
// a private copy. It reports whether the branch content changed.
func (e *Editor) apply(flow *ir.Flow, u Update, limit int) (bool, error) {
	s := e.scoped(u.BranchName)

	pos, ok := locate(*flow, u.BranchName)
	if !ok {
		s.emit(Diagnostic{Kind: KindBranchNotFound, Property: u.Property, Message: "branch not found"})
		return false, newNotFound(u.BranchName)
	}
	lb := flow.Actions[pos.action].ListBranches[pos.branch]
	root := ir.NodeFromFilterBranch(lb.FilterBranch)

	if u.EnforceCap && exceedsCap(root, u.Property, limit) {
		root = s.rebalanceRoot(root, u.Property, limit)
	}

	if s.shouldRedistribute(root, u, limit) {
		root = s.redistribute(root.(ir.Branch), u, limit)
	} else {
		root = s.UpdateTree(root, u.edit())
	}

	if u.EnforceCap {
		root = s.enforce(root, u.Property, limit)
	}

	updated := lb
	updated.FilterBranch = ir.ToFilterBranch(root)

	before, err := ir.BranchHash(lb)
	if err != nil {
		return false, err
	}
	after, err := ir.BranchHash(updated)
	if err != nil {
		return false, err
	}
	if before == after {
		s.emit(Diagnostic{Kind: KindBranchUnchanged, Property: u.Property, Message: "update produced an identical branch"})
		return false, nil
	}

	flow.Actions[pos.action].ListBranches[pos.branch] = updated
	return true, nil
}

// shouldRedistribute reports whether a replace must be spread across the
// root's children instead of written into each matching filter. That is
// the case for a capped replace under an OR root that has several
// children or receives more values than one filter may hold.
func (e *Editor) shouldRedistribute(root ir.Node, u Update, limit int) bool {
	b, ok := root.(ir.Branch)
	if !ok {
		return false
	}
	return u.EnforceCap &&
		(len(b.Children) > 1 || len(u.Add) > limit) &&
		u.Replace &&
		b.Type == ir.LogicOr
}

// redistribute spreads u.Add across the children holding an editable
// filter on the property ("owners"), creating new leaves for surplus
// batches. Children with no such filter, numeric comparisons included, keep
// their place after the owners.
//
// Surplus leaves are bare CONTAINS leaves: they do not inherit the other
// filters of an owner (a sibling state = WA, say), so they match more
// widely than the owners do. KindSurplusUnscoped reports when that happens.
func (e *Editor) redistribute(root ir.Branch, u Update, limit int) ir.Branch {
	var owners, bystanders []ir.Node
	for _, child := range root.Children {
		if ownsProperty(child, u.Property) {
			owners = append(owners, child)
		} else {
			bystanders = append(bystanders, child)
		}
	}

	batches, err := partition.Partition(u.Add, max(len(owners), 1), limit)
	if err != nil {
		// Both arguments are positive here.
		panic(err)
	}
	e.emit(Diagnostic{
		Kind:     KindDistribution,
		Property: u.Property,
		Message:  "replacement spread across owner branches",
		Counts: map[string]int{
			"owners":     len(owners),
			"bystanders": len(bystanders),
			"batches":    len(batches),
			"values":     len(u.Add),
		},
	})
	e.emitSizes(u.Property, batches)

	updated := make([]ir.Node, 0, max(len(owners), len(batches)))
	for i, owner := range owners {
		batch := []string{}
		if i < len(batches) {
			batch = batches[i]
		}
		updated = append(updated, e.UpdateTree(owner, Edit{Property: u.Property, Add: batch, Replace: true}))
	}
	surplus := 0
	for i := len(owners); i < len(batches); i++ {
		if leaf := LeafFor(u.Property, batches[i]); leaf != nil {
			updated = append(updated, *leaf)
			surplus++
		}
	}
	if scoped := scopedOwners(owners, u.Property); surplus > 0 && scoped > 0 {
		e.emit(Diagnostic{
			Kind:     KindSurplusUnscoped,
			Property: u.Property,
			Message:  "surplus leaves carry only the property filter; owners' other filters are not copied",
			Counts:   map[string]int{"surplus_leaves": surplus, "scoped_owners": scoped},
		})
	}
	updated = pruneEmptyLeaves(updated, u.Property, len(bystanders))

	out := ir.Branch{Filters: root.Filters, Type: root.Type, Operator: root.Operator, Extra: root.Extra}
	out.Children = append(updated, bystanders...)
	return out
}

// ownsProperty reports whether the subtree holds a filter that a value-list
// edit on property would change.
func ownsProperty(n ir.Node, property string) bool {
	found := false
	ir.Walk(n, func(f ir.FlowFilter) bool {
		if editable(f, property) {
			found = true
			return false
		}
		return true
	})
	return found
}

// scopedOwners counts owners that also filter on some other property.
func scopedOwners(owners []ir.Node, property string) int {
	n := 0
	for _, owner := range owners {
		other := false
		ir.Walk(owner, func(f ir.FlowFilter) bool {
			other = !f.Matches(property)
			return !other
		})
		if other {
			n++
		}
	}
	return n
}

// pruneEmptyLeaves drops leaves whose positive filter on property ended up
// with no values; under an OR parent such a leaf matches nothing. At least
// one child is kept so the root never becomes empty.
func pruneEmptyLeaves(nodes []ir.Node, property string, others int) []ir.Node {
	kept := make([]ir.Node, 0, len(nodes))
	var dropped []ir.Node
	for _, n := range nodes {
		if leaf, ok := n.(ir.Leaf); ok && leaf.Filter.Matches(property) &&
			len(leaf.Filter.Operation.Values) == 0 &&
			leaf.Filter.Operation.Operator.Polarity() == ir.PolarityPositive {
			dropped = append(dropped, n)
			continue
		}
		kept = append(kept, n)
	}
	if len(kept)+others == 0 && len(dropped) > 0 {
		kept = append(kept, dropped[0])
	}
	return kept
}

func (e *Editor) resolveCap(u Update) (int, error) {
	if u.MaxValues < 0 {
		return 0, newInvalidArgument(u.BranchName, u.Property, fmt.Sprintf("max values must be > 0, got %d", u.MaxValues))
	}
	limit := e.maxValues
	if u.MaxValues > 0 {
		limit = u.MaxValues
	}
	return limit, checkArgs(u.BranchName, u.Property, limit)
}

func checkArgs(branch, property string, maxValues int) error {
	if property == "" {
		return newInvalidArgument(branch, property, "property must not be empty")
	}
	if maxValues <= 0 {
		return newInvalidArgument(branch, property, fmt.Sprintf("max values must be > 0, got %d", maxValues))
	}
	return nil
}

// scoped returns a copy of e that stamps diagnostics with branch.
func (e *Editor) scoped(branch string) *Editor {
	c := *e
	c.branch = branch
	return &c
}

func (e *Editor) emit(d Diagnostic) {
	if e.sink == nil {
		return
	}
	if d.Branch == "" {
		d.Branch = e.branch
	}
	e.sink.Emit(d)
}
