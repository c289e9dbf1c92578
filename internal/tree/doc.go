// Package tree materializes an attempt's activity tree from a flat row
// set and maintains its traversal structure.
//
// The tree is an arena: nodes are addressed by small int handles, parent
// and child links are index slices, and preorder Previous/Next links are
// recomputed whenever sibling order changes. Activities reference but do
// not own their parents, so rebuilding after selection/randomization is
// pure slice mutation.
//
// Randomness (selection and reordering) flows through the Source
// interface so tests can inject a seeded or scripted generator.
package tree
