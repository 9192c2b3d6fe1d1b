// Package collect runs per-chunk analysis on a bounded worker pool:
// deterministic scanners first, then one model call per chunk with
// transient-only retries and strict validation of the JSON response.
// A chunk failure degrades that chunk, never the run.
package collect
