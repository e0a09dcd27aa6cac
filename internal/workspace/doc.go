// Package workspace manages the persistent build directory (build_tdrDiff by
// default) that holds the document clones and the per-revision exports.
// Nothing in it is removed automatically; reuse across runs is the point.
package workspace
