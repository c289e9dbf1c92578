// Package nav implements the navigation state machine over an attempt's
// activity tree.
//
// A single Navigator type is parameterized by mode rather than
// subclassed: Execute runs the full sequencing/rollup process, Review
// restricts traversal to deliverable content and never persists, and
// RandomAccess steps the plain preorder with no rule enforcement.
//
// The sequencing process itself (seqnav.go, rollup.go) is a set of
// functions over navigator data; navigation validity checks run the same
// process against a deep clone so predicates never mutate state.
package nav
