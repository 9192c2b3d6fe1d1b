// Package cli wires together the Cobra command tree for the redline binary.
//
// It defines the root command and subcommands (review, config, version),
// binds flags, reads configuration, assembles the run pipeline, and
// returns deterministic exit codes for CI gating.
package cli
