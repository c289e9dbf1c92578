// Package model defines the core data types shared across the sequencing
// engine: activities and their sequencing metadata, the mutable runtime
// data model written by content and rollup, attempts, and navigation
// commands.
//
// Types in this package carry no behavior beyond small accessors. Tree
// structure (parent/child links, preorder traversal) lives in
// internal/tree; sequencing semantics live in internal/nav.
package model
