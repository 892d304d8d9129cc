// Package ir provides the workflow types that flowfilter reads and rewrites.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Two views of the same data live here:
//   - The wire view (Flow, Action, ListBranch, FilterBranch, FlowFilter,
//     Operation) mirrors the automation platform's JSON schema. Field names
//     and enum strings are preserved exactly, and unknown fields on Flow and
//     Action survive a read-modify-write cycle untouched.
//   - The tree view (Node, Leaf, Branch) is a sealed sum type used by every
//     transform. NodeFromFilterBranch and ToFilterBranch convert between the
//     two without loss.
//
// Transforms never mutate a Node they were given. Conversions copy value
// slices so a tree built from a Flow shares no memory with it.
package ir
