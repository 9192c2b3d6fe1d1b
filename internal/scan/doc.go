// Package scan holds the deterministic analyses: regex signatures for
// hardcoded secrets and language-specific unsafe constructs, applied to
// added diff lines only, plus secret redaction for text that leaves the
// process. Scanners are pure and never fail a chunk.
package scan
