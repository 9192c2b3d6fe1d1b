// Package gateway maps a consolidated finding set to a review decision
// and delivers it: an idempotent marker-tagged summary comment plus a
// batch review of inline comments, with a per-comment fallback when the
// batch is rejected. Delivery is best-effort and reports a Receipt.
package gateway
