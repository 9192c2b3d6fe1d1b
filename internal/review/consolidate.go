package review

import (
	"fmt"
	"sort"
	"strings"
)

// ConsolidateOptions controls filtering, deduplication, and budgeting.
type ConsolidateOptions struct {
	// Threshold drops findings below this severity. Empty keeps all.
	Threshold Severity
	// Budget caps the number of delivered findings. Error findings are
	// retained even past the budget; zero or negative means unlimited.
	Budget int
}

// ConsolidateResult is the bounded, ordered output of a consolidation pass.
type ConsolidateResult struct {
	Findings  []Finding
	Notes     []ContradictionNote
	Truncated int // findings collapsed into the rollup entry
}

// Consolidate filters, deduplicates, sorts, and budgets findings. The pass
// is idempotent: running it on its own output yields the same output, and
// ordering depends only on finding content, never on collection order.
func Consolidate(findings []Finding, opts ConsolidateOptions) ConsolidateResult {
	kept := filterThreshold(findings, opts.Threshold)
	kept = deduplicate(kept)
	sortFindings(kept)
	kept, truncated := applyBudget(kept, opts.Budget)

	return ConsolidateResult{
		Findings:  kept,
		Notes:     detectContradictions(kept),
		Truncated: truncated,
	}
}

func filterThreshold(findings []Finding, threshold Severity) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Category == CategoryRollup || MeetsThreshold(f.Severity, threshold) {
			out = append(out, f)
		}
	}
	return out
}

// deduplicate collapses findings with equal signatures. The highest-severity
// instance wins; if it has no suggestion it inherits the first-seen one.
func deduplicate(findings []Finding) []Finding {
	index := make(map[string]int)
	var out []Finding
	for _, f := range findings {
		sig := f.Signature()
		i, seen := index[sig]
		if !seen {
			index[sig] = len(out)
			out = append(out, f)
			continue
		}
		if SeverityRank(f.Severity) > SeverityRank(out[i].Severity) {
			if f.Suggestion == "" {
				f.Suggestion = out[i].Suggestion
			}
			out[i] = f
		}
	}
	return out
}

// sortFindings orders by severity descending, then file path, then line,
// then message, so output is deterministic across runs on identical input.
func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := SeverityRank(findings[i].Severity), SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		return findings[i].Message < findings[j].Message
	})
}

// applyBudget truncates the sorted list. All error findings survive even
// past the budget; remaining slots are filled by warn then info in sorted
// order. Truncated findings collapse into a single rollup entry rather
// than disappearing. Pre-existing rollup entries pass through untouched.
func applyBudget(findings []Finding, budget int) ([]Finding, int) {
	if budget <= 0 {
		return findings, 0
	}

	var rollups, rest []Finding
	for _, f := range findings {
		if f.Category == CategoryRollup {
			rollups = append(rollups, f)
		} else {
			rest = append(rest, f)
		}
	}

	if len(rest) <= budget {
		return append(rest, rollups...), 0
	}

	var kept, dropped []Finding
	for _, f := range rest {
		// rest is sorted by severity, so errors come first
		if f.Severity == SeverityError || len(kept) < budget {
			kept = append(kept, f)
		} else {
			dropped = append(dropped, f)
		}
	}

	if len(dropped) > 0 {
		kept = append(kept, rollupEntry(dropped))
	}
	return append(kept, rollups...), len(dropped)
}

func rollupEntry(dropped []Finding) Finding {
	var b strings.Builder
	fmt.Fprintf(&b, "%d additional minor issues were found but omitted to keep this review readable:", len(dropped))
	for _, f := range dropped {
		fmt.Fprintf(&b, "\n- %s:%d %s", f.File, f.Line, normalizeMessage(f.Message))
	}
	return Finding{
		Severity: SeverityInfo,
		Category: CategoryRollup,
		Message:  b.String(),
		Origin:   OriginDeterministic,
	}
}

// opposing verb pairs used by the contradiction heuristic
var opposingVerbs = [][2]string{
	{"add", "remove"},
	{"remove", "add"},
	{"enable", "disable"},
	{"disable", "enable"},
	{"increase", "decrease"},
	{"decrease", "increase"},
}

// detectContradictions scans for pairs of findings on the same file and
// line whose suggestions both exist, differ, and open with opposing verbs.
// Best-effort advisory signal only.
func detectContradictions(findings []Finding) []ContradictionNote {
	byLoc := make(map[string][]Finding)
	for _, f := range findings {
		if f.Suggestion == "" || f.Category == CategoryRollup {
			continue
		}
		key := fmt.Sprintf("%s:%d", f.File, f.Line)
		byLoc[key] = append(byLoc[key], f)
	}

	keys := make([]string, 0, len(byLoc))
	for k := range byLoc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var notes []ContradictionNote
	for _, k := range keys {
		group := byLoc[k]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if suggestionsOppose(group[i].Suggestion, group[j].Suggestion) {
					notes = append(notes, ContradictionNote{
						File:     group[i].File,
						Line:     group[i].Line,
						MessageA: group[i].Message,
						MessageB: group[j].Message,
					})
				}
			}
		}
	}
	return notes
}

func suggestionsOppose(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" || a == b {
		return false
	}
	for _, pair := range opposingVerbs {
		if strings.HasPrefix(a, pair[0]) && strings.HasPrefix(b, pair[1]) {
			return true
		}
	}
	return false
}
