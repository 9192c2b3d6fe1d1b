package review

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// MeetsThreshold returns true if severity is at or above the threshold.
// An empty threshold keeps everything.
func MeetsThreshold(s, threshold Severity) bool {
	if threshold == "" {
		return true
	}
	return SeverityRank(s) >= SeverityRank(threshold)
}

// Origin identifies which kind of stage produced a finding.
type Origin string

const (
	OriginDeterministic Origin = "deterministic"
	OriginModel         Origin = "model"
)

// Common finding categories. Scanners and the analysis schema may emit
// others; categories are advisory except where config marks them blocking.
const (
	CategorySecurity    Category = "security"
	CategoryBug         Category = "bug"
	CategoryCorrectness Category = "correctness"
	CategoryPerformance Category = "performance"
	CategoryStyle       Category = "style"
	CategoryLint        Category = "lint"
	// CategoryRollup marks the synthetic entry that stands in for
	// findings collapsed by budget truncation. Rollup entries are exempt
	// from budgeting so consolidation stays idempotent.
	CategoryRollup Category = "rollup"
)

// Category classifies a finding.
type Category string

// Finding is a single reviewable issue. Findings are value objects: stages
// return new batches and never share mutable state.
type Finding struct {
	File       string   `json:"file"`
	Line       int      `json:"line,omitempty"` // 0 = file-level
	Severity   Severity `json:"severity"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Origin     Origin   `json:"origin"`
}

// Signature returns the normalized dedup key: file, line, category, and a
// trimmed lower-cased message prefix, so near-duplicate phrasing collapses
// to one entry.
func (f Finding) Signature() string {
	msg := normalizeMessage(f.Message)
	payload := fmt.Sprintf("%s|%d|%s|%s", f.File, f.Line, f.Category, msg)
	h := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", h[:8])
}

func normalizeMessage(msg string) string {
	msg = strings.ToLower(strings.TrimSpace(msg))
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return msg
}

// Decision is the review verdict for a run.
type Decision string

const (
	DecisionRequestChanges Decision = "request_changes"
	DecisionComment        Decision = "comment"
	DecisionApprove        Decision = "approve"
)

// ContradictionNote flags a pair of findings on the same region with
// opposing suggestions. Advisory only; never auto-resolved.
type ContradictionNote struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	MessageA string `json:"messageA"`
	MessageB string `json:"messageB"`
}

// Verdict is the terminal output of a run: the decision, the rendered
// summary, and the bounded finding list. Produced exactly once per run.
type Verdict struct {
	Decision Decision            `json:"decision"`
	Summary  string              `json:"summary"`
	Findings []Finding           `json:"findings"`
	Notes    []ContradictionNote `json:"notes,omitempty"`
}

// CountBySeverity returns (errors, warns, infos) for a finding list.
// Rollup entries are not counted.
func CountBySeverity(findings []Finding) (errs, warns, infos int) {
	for _, f := range findings {
		if f.Category == CategoryRollup {
			continue
		}
		switch f.Severity {
		case SeverityError:
			errs++
		case SeverityWarn:
			warns++
		case SeverityInfo:
			infos++
		}
	}
	return errs, warns, infos
}
