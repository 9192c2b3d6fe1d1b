package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"redline/internal/gateway"
	"redline/internal/review"
)

func sampleReport() *Report {
	return &Report{
		RunID:    "run-abc",
		Target:   "acme/widgets#7",
		Decision: review.DecisionRequestChanges,
		Findings: []review.Finding{
			{
				File: "app/settings.py", Line: 11,
				Severity: review.SeverityError, Category: review.CategorySecurity,
				Message:    "hardcoded credential assigned to API_KEY",
				Suggestion: "load the value from the environment instead",
			},
			{
				File: "app/util.py", Line: 0,
				Severity: review.SeverityWarn, Category: review.CategoryStyle,
				Message: "file mixes tabs and spaces",
			},
			{
				Severity: review.SeverityInfo, Category: review.CategoryRollup,
				Message: "app/util.py:9 minor naming nit",
			},
		},
		SkippedFiles: []string{"package-lock.json"},
		Receipt:      &gateway.Receipt{SummaryPosted: true, Comments: 1},
		ElapsedMs:    4200,
	}
}

func TestGetWriter(t *testing.T) {
	for _, format := range []string{"text", "json", "markdown"} {
		if _, err := GetWriter(format); err != nil {
			t.Errorf("GetWriter(%q): %v", format, err)
		}
	}
	if _, err := GetWriter("sarif"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, sampleReport()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"acme/widgets#7",
		"Decision: request_changes",
		"3 total",
		"app/settings.py:11",
		"hardcoded credential",
		"Suggestion:",
		"Consolidated minor findings:",
		"package-lock.json",
		"Posted: 1 comment(s), summary created",
		"4200ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q\n%s", want, out)
		}
	}

	// File-level finding renders without a line number.
	if strings.Contains(out, "app/util.py:0") {
		t.Error("file-level finding must not show line 0")
	}
}

func TestTextWriter_CleanRun(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{
		RunID:    "run-clean",
		Target:   "acme/widgets#8",
		Decision: review.DecisionApprove,
	}
	if err := (&TextWriter{}).Write(&buf, report); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No issues found") {
		t.Errorf("expected clean-run message, got:\n%s", buf.String())
	}
}

func TestTextWriter_Degraded(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{
		Target:   "acme/widgets#9",
		Decision: review.DecisionComment,
		Degraded: true,
		Reason:   "malformed diff: no file headers found",
	}
	if err := (&TextWriter{}).Write(&buf, report); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "DEGRADED: malformed diff") {
		t.Errorf("expected degraded banner, got:\n%s", buf.String())
	}
}

func TestTextWriter_DryRunReceipt(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Receipt = &gateway.Receipt{DryRun: true}
	if err := (&TextWriter{}).Write(&buf, report); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Dry run: nothing was posted.") {
		t.Errorf("expected dry-run notice, got:\n%s", buf.String())
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, sampleReport()); err != nil {
		t.Fatal(err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RunID != "run-abc" {
		t.Errorf("RunID = %q", decoded.RunID)
	}
	if len(decoded.Findings) != 3 {
		t.Errorf("Findings = %d, want 3", len(decoded.Findings))
	}
	if strings.Contains(buf.String(), "\"summary\"") {
		t.Error("summary field must not appear in JSON output")
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Summary = "<!-- marker -->\n## Automated Review\nbody"
	if err := (&MarkdownWriter{}).Write(&buf, report); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "## Automated Review") {
		t.Errorf("markdown output should be the summary body, got:\n%s", buf.String())
	}
}

func TestWriteReport_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReport(sampleReport(), "json", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "run-abc") {
		t.Error("file report missing run id")
	}
}

func TestWrapText(t *testing.T) {
	short := wrapText("short", 70)
	if len(short) != 1 || short[0] != "short" {
		t.Errorf("short text should be a single line: %v", short)
	}

	long := wrapText(strings.Repeat("word ", 40), 20)
	if len(long) < 2 {
		t.Error("long text should wrap into multiple lines")
	}
	for _, line := range long {
		if len(line) > 25 {
			t.Errorf("line too long: %q", line)
		}
	}
}
