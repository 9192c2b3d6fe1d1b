// Package plan parses unified diffs into per-file change units and groups
// them into size-bounded chunks for analysis. Files matching skip patterns
// are dropped and recorded; oversized files split on hunk boundaries.
package plan
