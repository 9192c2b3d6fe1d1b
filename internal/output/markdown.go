package output

import (
	"fmt"
	"io"
)

// MarkdownWriter outputs the summary comment body as it would be posted.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	_, err := fmt.Fprintln(w, report.Summary)
	return err
}
