package gateway

import (
	"fmt"
	"strings"
	"time"

	"redline/internal/review"
)

// SummaryInput carries everything the summary needs. Rendering is pure
// and deterministic: the same input always yields the same markdown.
type SummaryInput struct {
	RunID            string
	Decision         review.Decision
	Findings         []review.Finding
	Notes            []review.ContradictionNote
	SkippedFiles     []string
	AnalysisFailures []string
	SkippedLinters   []string
	Truncated        bool
	Degraded         bool
	Reason           string
	Elapsed          time.Duration
}

// RenderSummary produces the marker-carrying summary comment body.
func RenderSummary(in SummaryInput, marker string) string {
	if marker == "" {
		marker = DefaultMarker
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\n## Automated Review\n\n")

	if in.Degraded {
		b.WriteString("**Status: degraded.** ")
		b.WriteString(in.Reason)
		b.WriteString("\n\nResults below are incomplete; only deterministic checks may have run.\n\n")
	}

	fmt.Fprintf(&b, "**Verdict:** %s\n\n", decisionLabel(in.Decision))

	errs, warns, infos := review.CountBySeverity(in.Findings)
	b.WriteString("| Severity | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| error | %d |\n| warn | %d |\n| info | %d |\n\n", errs, warns, infos)

	if in.Truncated {
		b.WriteString("Some findings were consolidated into the rollup below to stay within the comment budget.\n\n")
	}

	writeGeneralFindings(&b, in.Findings)
	writeRollups(&b, in.Findings)

	if len(in.Notes) > 0 {
		b.WriteString("### Possibly conflicting feedback\n\n")
		for _, n := range in.Notes {
			fmt.Fprintf(&b, "- `%s:%d`: %q vs %q\n", n.File, n.Line, n.MessageA, n.MessageB)
		}
		b.WriteString("\n")
	}

	if len(in.SkippedFiles) > 0 {
		fmt.Fprintf(&b, "### Skipped files (%d)\n\n", len(in.SkippedFiles))
		for _, f := range in.SkippedFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
		b.WriteString("\n")
	}

	if len(in.AnalysisFailures) > 0 {
		fmt.Fprintf(&b, "### Analysis gaps (%d chunks)\n\n", len(in.AnalysisFailures))
		b.WriteString("Model analysis did not complete for: ")
		b.WriteString(strings.Join(backtickAll(in.AnalysisFailures), ", "))
		b.WriteString(". Deterministic checks still ran.\n\n")
	}

	if len(in.SkippedLinters) > 0 {
		fmt.Fprintf(&b, "Linters unavailable: %s.\n\n", strings.Join(in.SkippedLinters, ", "))
	}

	fmt.Fprintf(&b, "---\n_run `%s`, %s_\n", in.RunID, in.Elapsed.Round(time.Second))
	return b.String()
}

// writeGeneralFindings lists file-level findings, which have no line to
// anchor an inline comment to.
func writeGeneralFindings(b *strings.Builder, findings []review.Finding) {
	var general []review.Finding
	for _, f := range findings {
		if f.Line == 0 && f.Category != review.CategoryRollup {
			general = append(general, f)
		}
	}
	if len(general) == 0 {
		return
	}
	b.WriteString("### File-level findings\n\n")
	for _, f := range general {
		fmt.Fprintf(b, "- **%s** `%s`: %s\n", f.Severity, f.File, f.Message)
	}
	b.WriteString("\n")
}

func writeRollups(b *strings.Builder, findings []review.Finding) {
	for _, f := range findings {
		if f.Category != review.CategoryRollup {
			continue
		}
		b.WriteString("<details><summary>Additional minor findings</summary>\n\n")
		b.WriteString(f.Message)
		b.WriteString("\n\n</details>\n\n")
	}
}

func decisionLabel(d review.Decision) string {
	switch d {
	case review.DecisionRequestChanges:
		return "changes requested"
	case review.DecisionComment:
		return "comments only"
	case review.DecisionApprove:
		return "approved"
	default:
		return string(d)
	}
}

func backtickAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "`" + s + "`"
	}
	return out
}
