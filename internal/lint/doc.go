// Package lint shells out to external linters (shellcheck, yamllint,
// ansible-lint, ruff, tflint) for files present in the local working
// tree. Missing tools are skipped, never fatal, and parsed messages feed
// both the finding stream and the analysis prompts.
package lint
