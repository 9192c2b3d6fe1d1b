// Package review defines the finding and verdict model shared by the
// pipeline stages, and the consolidation pass that deduplicates, orders,
// and budgets findings before delivery.
package review
