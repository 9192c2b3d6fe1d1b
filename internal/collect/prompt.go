package collect

import (
	"fmt"
	"strings"

	"redline/internal/plan"
)

const systemPrompt = `You are a strict, expert code reviewer. Your job is to review code diffs and produce structured findings in JSON format.

Rules:
1. Only review the changes shown in the diff. Do not comment on unchanged code.
2. Focus on bugs, security issues, performance problems, and correctness. Avoid bikeshedding on style unless it impacts readability significantly.
3. Be concise and actionable. Include a concrete suggestion whenever you can.
4. Use line numbers from the NEW side of the diff hunks.
5. Rate severity as "error", "warn", or "info".
6. Categorize each finding as one of: bug, security, performance, correctness, style, maintainability, testing, docs.

You MUST respond with ONLY a JSON array of findings. No markdown, no explanation, no preamble. Just the JSON array.

Each finding must have this exact structure:
{
  "file": "relative/file/path",
  "line": 1,
  "severity": "error|warn|info",
  "category": "bug|security|performance|correctness|style|maintainability|testing|docs",
  "message": "What is wrong and why it matters",
  "suggestion": "How to fix it, with code if helpful"
}

If there are no issues, respond with an empty array: []`

// SystemPrompt returns the system prompt for analysis calls.
func SystemPrompt() string {
	return systemPrompt
}

// buildUserPrompt renders one chunk into the user prompt. The diff text is
// already redacted by the caller; lintLines carry raw linter messages for
// the chunk's file.
func buildUserPrompt(c *plan.Chunk, diff string, lintLines []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the following diff for %s.\n", c.Path)
	if c.ContentType != "" && c.ContentType != "generic" {
		fmt.Fprintf(&b, "Content type: %s\n", c.ContentType)
	}

	if len(lintLines) > 0 {
		b.WriteString("\nLinter output for this file (verify, do not repeat verbatim):\n")
		for _, line := range lintLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n--- BEGIN DIFF ---\n")
	b.WriteString(diff)
	b.WriteString("\n--- END DIFF ---\n")

	return b.String()
}
