package filtertree

import "github.com/roach88/flowfilter/internal/ir"

// position addresses a list branch inside a flow.
type position struct {
	action, branch int
}

// locate returns the position of the first list branch named name.
func locate(flow ir.Flow, name string) (position, bool) {
	for ai, action := range flow.Actions {
		if !action.IsListBranch() {
			continue
		}
		for bi, lb := range action.ListBranches {
			if lb.BranchName == name {
				return position{action: ai, branch: bi}, true
			}
		}
	}
	return position{}, false
}

// FindBranch returns a copy of the first list branch named name. Actions
// that are not LIST_BRANCH, carry no branches, or are set-property actions
// tagged as LIST_BRANCH are skipped.
func FindBranch(flow ir.Flow, name string) (ir.ListBranch, bool) {
	pos, ok := locate(flow, name)
	if !ok {
		return ir.ListBranch{}, false
	}
	return flow.Actions[pos.action].ListBranches[pos.branch].Clone(), true
}

// AllBranchNames lists every branch name in action/branch order.
func AllBranchNames(flow ir.Flow) []string {
	var names []string
	for _, action := range flow.Actions {
		if !action.IsListBranch() {
			continue
		}
		for _, lb := range action.ListBranches {
			names = append(names, lb.BranchName)
		}
	}
	return names
}

// HasUniqueNames reports whether no branch name repeats. Callers use it
// as a gate before updating by name.
func HasUniqueNames(flow ir.Flow) bool {
	return len(DuplicateNames(flow)) == 0
}

// DuplicateNames returns each repeated branch name once, in the order its
// second occurrence appears.
func DuplicateNames(flow ir.Flow) []string {
	seen := make(map[string]int)
	var dups []string
	for _, name := range AllBranchNames(flow) {
		seen[name]++
		if seen[name] == 2 {
			dups = append(dups, name)
		}
	}
	return dups
}

// BranchRef is a list branch together with the action that holds it.
type BranchRef struct {
	ActionID string
	Branch   ir.ListBranch
}

// Branches returns copies of every list branch in action/branch order.
func Branches(flow ir.Flow) []BranchRef {
	var out []BranchRef
	for _, action := range flow.Actions {
		if !action.IsListBranch() {
			continue
		}
		for _, lb := range action.ListBranches {
			out = append(out, BranchRef{ActionID: action.ActionID, Branch: lb.Clone()})
		}
	}
	return out
}

// ReplaceBranch returns a copy of flow with the first list branch named
// lb.BranchName replaced by lb. It reports false, and returns flow as
// given, when no branch carries that name.
func ReplaceBranch(flow ir.Flow, lb ir.ListBranch) (ir.Flow, bool) {
	pos, ok := locate(flow, lb.BranchName)
	if !ok {
		return flow, false
	}
	out := flow.Clone()
	out.Actions[pos.action].ListBranches[pos.branch] = lb.Clone()
	return out, true
}
