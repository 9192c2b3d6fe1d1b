package output

import (
	"fmt"
	"io"
	"strings"

	"redline/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("Redline Review: %s\n", report.Target)
	ew.println(strings.Repeat("─", 60))
	if report.Degraded {
		ew.printf("DEGRADED: %s\n", report.Reason)
		ew.println(strings.Repeat("─", 60))
	}

	errs, warns, infos := review.CountBySeverity(report.Findings)
	total := errs + warns + infos
	ew.printf("Decision: %s\n", report.Decision)
	ew.printf("Findings: %d total", total)
	if total > 0 {
		ew.printf(" (%d error, %d warn, %d info)", errs, warns, infos)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if total == 0 && !report.Degraded {
		ew.println("\nNo issues found. Looks good!")
	}

	for _, sev := range []review.Severity{review.SeverityError, review.SeverityWarn, review.SeverityInfo} {
		printed := false
		for _, f := range report.Findings {
			if f.Severity != sev || f.Category == review.CategoryRollup {
				continue
			}
			if !printed {
				ew.printf("\n%s %s\n", severityIcon(sev), strings.ToUpper(string(sev)))
				ew.println(strings.Repeat("─", 40))
				printed = true
			}
			if f.Line > 0 {
				ew.printf("\n  %s:%d  [%s]\n", f.File, f.Line, f.Category)
			} else {
				ew.printf("\n  %s  [%s]\n", f.File, f.Category)
			}
			for _, line := range wrapText(f.Message, 70) {
				ew.printf("    %s\n", line)
			}
			if f.Suggestion != "" {
				ew.println("  Suggestion:")
				for _, line := range wrapText(f.Suggestion, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	for _, f := range report.Findings {
		if f.Category != review.CategoryRollup {
			continue
		}
		ew.println("\nConsolidated minor findings:")
		for _, line := range strings.Split(f.Message, "\n") {
			ew.printf("  %s\n", line)
		}
	}

	if len(report.Notes) > 0 {
		ew.println("\nPossibly conflicting feedback:")
		for _, n := range report.Notes {
			ew.printf("  %s:%d: %q vs %q\n", n.File, n.Line, n.MessageA, n.MessageB)
		}
	}

	if len(report.SkippedFiles) > 0 {
		ew.printf("\nSkipped files: %s\n", strings.Join(report.SkippedFiles, ", "))
	}
	if len(report.AnalysisFailures) > 0 {
		ew.printf("Analysis gaps: %s\n", strings.Join(report.AnalysisFailures, ", "))
	}

	if report.Receipt != nil {
		ew.println(strings.Repeat("─", 60))
		switch {
		case report.Receipt.DryRun:
			ew.println("Dry run: nothing was posted.")
		default:
			ew.printf("Posted: %d comment(s), summary %s\n",
				report.Receipt.Comments, summaryState(report))
			if report.Receipt.Fallback {
				ew.println("Batch review was rejected; comments posted individually.")
			}
			if report.Receipt.SkippedDupes > 0 {
				ew.printf("Skipped %d already-posted comment(s).\n", report.Receipt.SkippedDupes)
			}
			for _, f := range report.Receipt.Failures {
				ew.printf("Delivery failure: %s\n", f)
			}
		}
	}

	ew.printf("\nCompleted in %dms\n", report.ElapsedMs)
	return ew.err
}

func summaryState(report *Report) string {
	switch {
	case report.Receipt.SummaryUpdated:
		return "updated"
	case report.Receipt.SummaryPosted:
		return "created"
	default:
		return "not posted"
	}
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func severityIcon(s review.Severity) string {
	switch s {
	case review.SeverityError:
		return "[!!]"
	case review.SeverityWarn:
		return "[!]"
	case review.SeverityInfo:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
