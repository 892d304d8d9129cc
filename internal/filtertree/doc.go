// Package filtertree rewrites the membership-filter trees attached to
// workflow list branches.
//
// The platform caps how many values one filter clause may hold. When a
// value set outgrows the cap it is fragmented across sibling clauses that
// are OR-ed together, and later edits are re-applied across the fragments
// without breaking the cap or losing values.
//
// Components, leaf first:
//   - factory.go: leaf nodes for value batches
//   - locate.go: find list branches by name
//   - update.go: add/remove/replace values on matching filters
//   - rebalance.go: split oversized filters into sibling clauses
//   - editor.go: choose between redistribution and direct update, and
//     apply single or batched updates to a flow
//
// All work is synchronous and pure: every transform builds new nodes and
// the Flow handed in is never mutated. Argument problems are detected
// before any change is made. Diagnostics go to an injected Sink; a nil
// Sink is valid.
//
// The store that reads and writes flows must serialize writes per flow;
// two concurrent read-modify-write cycles would silently lose one update.
package filtertree
