// Redline is a CLI that reviews pull requests with deterministic scanners
// and LLM-assisted analysis, then posts a single idempotent review.
//
// It fetches a PR diff, splits it into bounded chunks, runs secret and
// unsafe-pattern scanners plus optional external linters, analyzes each
// chunk with a configured model provider, consolidates the findings under
// a hard comment budget, and delivers one review verdict to the PR. Re-runs
// update the previous summary in place instead of duplicating it.
//
// Usage:
//
//	redline review 42 --repo owner/name        # review a pull request
//	redline review 42 --repo owner/name --dry-run  # compute verdict, post nothing
//	redline config show                        # inspect configuration
//
// Exit codes are deterministic and suitable for CI gating; see
// redline review --help.
package main
