// Package orch drives one review run through an explicit stage machine:
// fetch, plan, lint, review, critique, deliver, summarize, with a
// degraded path for terminal failures. Transitions are explicit, stage
// retries are bounded, and a wall-clock budget can cut the pipeline
// short while still shipping a verdict from whatever was collected.
package orch
