package output

import (
	"fmt"
	"io"
	"os"

	"redline/internal/gateway"
	"redline/internal/review"
)

// Report is the local rendering of one run: the verdict plus the delivery
// receipt and run metadata.
type Report struct {
	RunID            string                     `json:"runId"`
	Target           string                     `json:"target"`
	Decision         review.Decision            `json:"decision"`
	Findings         []review.Finding           `json:"findings"`
	Notes            []review.ContradictionNote `json:"notes,omitempty"`
	SkippedFiles     []string                   `json:"skippedFiles,omitempty"`
	AnalysisFailures []string                   `json:"analysisFailures,omitempty"`
	Receipt          *gateway.Receipt           `json:"receipt,omitempty"`
	Degraded         bool                       `json:"degraded,omitempty"`
	Reason           string                     `json:"reason,omitempty"`
	Summary          string                     `json:"-"`
	ElapsedMs        int64                      `json:"elapsedMs"`
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the specified output (file path or stdout).
func WriteReport(report *Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, report)
}
