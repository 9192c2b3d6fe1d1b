package review

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFinding(file string, line int, sev Severity, cat Category, msg string) Finding {
	return Finding{File: file, Line: line, Severity: sev, Category: cat, Message: msg, Origin: OriginModel}
}

func TestConsolidate_Dedup(t *testing.T) {
	findings := []Finding{
		mkFinding("a.go", 10, SeverityWarn, CategoryBug, "Possible nil dereference"),
		mkFinding("a.go", 10, SeverityWarn, CategoryBug, "possible  NIL dereference"),
		mkFinding("a.go", 10, SeverityError, CategoryBug, "Possible nil dereference"),
	}

	res := Consolidate(findings, ConsolidateOptions{})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, SeverityError, res.Findings[0].Severity)
}

func TestConsolidate_DedupInheritsSuggestion(t *testing.T) {
	first := mkFinding("a.go", 10, SeverityWarn, CategoryBug, "nil deref")
	first.Suggestion = "guard against nil"
	second := mkFinding("a.go", 10, SeverityError, CategoryBug, "nil deref")

	res := Consolidate([]Finding{first, second}, ConsolidateOptions{})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, SeverityError, res.Findings[0].Severity)
	assert.Equal(t, "guard against nil", res.Findings[0].Suggestion)
}

func TestConsolidate_Threshold(t *testing.T) {
	findings := []Finding{
		mkFinding("a.go", 1, SeverityError, CategoryBug, "e"),
		mkFinding("a.go", 2, SeverityWarn, CategoryStyle, "w"),
		mkFinding("a.go", 3, SeverityInfo, CategoryStyle, "i"),
	}

	res := Consolidate(findings, ConsolidateOptions{Threshold: SeverityWarn})
	require.Len(t, res.Findings, 2)
	for _, f := range res.Findings {
		assert.NotEqual(t, SeverityInfo, f.Severity)
	}
}

func TestConsolidate_OrderIndependent(t *testing.T) {
	var findings []Finding
	for i := 0; i < 30; i++ {
		sev := []Severity{SeverityError, SeverityWarn, SeverityInfo}[i%3]
		findings = append(findings, mkFinding(fmt.Sprintf("f%d.go", i%5), i, sev, CategoryBug, fmt.Sprintf("issue %d", i)))
	}

	base := Consolidate(findings, ConsolidateOptions{Budget: 10})

	shuffled := make([]Finding, len(findings))
	copy(shuffled, findings)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	again := Consolidate(shuffled, ConsolidateOptions{Budget: 10})
	assert.Equal(t, base.Findings, again.Findings)
	assert.Equal(t, base.Notes, again.Notes)
}

func TestConsolidate_Idempotent(t *testing.T) {
	var findings []Finding
	for i := 0; i < 40; i++ {
		sev := SeverityInfo
		if i < 3 {
			sev = SeverityError
		} else if i < 15 {
			sev = SeverityWarn
		}
		findings = append(findings, mkFinding("big.go", i+1, sev, CategoryBug, fmt.Sprintf("issue %d", i)))
	}

	once := Consolidate(findings, ConsolidateOptions{Budget: 10})
	twice := Consolidate(once.Findings, ConsolidateOptions{Budget: 10})
	assert.Equal(t, once.Findings, twice.Findings)
	assert.Zero(t, twice.Truncated)
}

func TestConsolidate_BudgetKeepsAllErrors(t *testing.T) {
	var findings []Finding
	for i := 0; i < 5; i++ {
		findings = append(findings, mkFinding("a.go", i+1, SeverityError, CategoryBug, fmt.Sprintf("error %d", i)))
	}
	for i := 0; i < 35; i++ {
		findings = append(findings, mkFinding("b.go", i+1, SeverityWarn, CategoryStyle, fmt.Sprintf("warn %d", i)))
	}

	res := Consolidate(findings, ConsolidateOptions{Budget: 3})

	var errs, rollups int
	for _, f := range res.Findings {
		switch {
		case f.Category == CategoryRollup:
			rollups++
		case f.Severity == SeverityError:
			errs++
		}
	}
	assert.Equal(t, 5, errs, "all errors survive the budget")
	assert.Equal(t, 1, rollups)
	assert.Equal(t, 35, res.Truncated)
}

func TestConsolidate_BudgetScenario(t *testing.T) {
	// 3 errors and 10 warn/info against a budget of 10: the 3 errors plus
	// 7 others are delivered, the rest collapse into one rollup.
	var findings []Finding
	for i := 0; i < 3; i++ {
		findings = append(findings, mkFinding("a.go", i+1, SeverityError, CategoryBug, fmt.Sprintf("error %d", i)))
	}
	for i := 0; i < 10; i++ {
		findings = append(findings, mkFinding("b.go", i+1, SeverityWarn, CategoryStyle, fmt.Sprintf("warn %d", i)))
	}

	res := Consolidate(findings, ConsolidateOptions{Budget: 10})

	real, rollups := 0, 0
	for _, f := range res.Findings {
		if f.Category == CategoryRollup {
			rollups++
		} else {
			real++
		}
	}
	assert.Equal(t, 10, real)
	assert.Equal(t, 1, rollups)
	assert.Equal(t, 3, res.Truncated)

	errs, _, _ := CountBySeverity(res.Findings)
	assert.Equal(t, 3, errs)
}

func TestConsolidate_SortOrder(t *testing.T) {
	findings := []Finding{
		mkFinding("z.go", 5, SeverityInfo, CategoryStyle, "info"),
		mkFinding("a.go", 9, SeverityWarn, CategoryStyle, "warn a9"),
		mkFinding("a.go", 2, SeverityWarn, CategoryStyle, "warn a2"),
		mkFinding("m.go", 1, SeverityError, CategoryBug, "boom"),
	}

	res := Consolidate(findings, ConsolidateOptions{})
	require.Len(t, res.Findings, 4)
	assert.Equal(t, "boom", res.Findings[0].Message)
	assert.Equal(t, "warn a2", res.Findings[1].Message)
	assert.Equal(t, "warn a9", res.Findings[2].Message)
	assert.Equal(t, "info", res.Findings[3].Message)
}

func TestConsolidate_Contradictions(t *testing.T) {
	add := mkFinding("a.go", 7, SeverityWarn, CategoryStyle, "missing lock")
	add.Suggestion = "Add a mutex around this access."
	rem := mkFinding("a.go", 7, SeverityWarn, CategoryPerformance, "lock contention")
	rem.Suggestion = "Remove the mutex, use atomics instead."

	res := Consolidate([]Finding{add, rem}, ConsolidateOptions{})
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "a.go", res.Notes[0].File)
	assert.Equal(t, 7, res.Notes[0].Line)
	// Both findings stay; contradictions are advisory.
	assert.Len(t, res.Findings, 2)
}

func TestConsolidate_NoContradictionDifferentLines(t *testing.T) {
	a := mkFinding("a.go", 7, SeverityWarn, CategoryStyle, "x")
	a.Suggestion = "Add a check."
	b := mkFinding("a.go", 8, SeverityWarn, CategoryStyle, "y")
	b.Suggestion = "Remove the check."

	res := Consolidate([]Finding{a, b}, ConsolidateOptions{})
	assert.Empty(t, res.Notes)
}

func TestConsolidate_Empty(t *testing.T) {
	res := Consolidate(nil, ConsolidateOptions{Budget: 10})
	assert.Empty(t, res.Findings)
	assert.Empty(t, res.Notes)
	assert.Zero(t, res.Truncated)
}

func TestSignature_NormalizesMessage(t *testing.T) {
	a := mkFinding("a.go", 1, SeverityWarn, CategoryBug, "  Unchecked   ERROR ")
	b := mkFinding("a.go", 1, SeverityError, CategoryBug, "unchecked error")
	assert.Equal(t, a.Signature(), b.Signature())

	c := mkFinding("a.go", 2, SeverityWarn, CategoryBug, "unchecked error")
	assert.NotEqual(t, a.Signature(), c.Signature())
}

func TestMeetsThreshold(t *testing.T) {
	assert.True(t, MeetsThreshold(SeverityError, SeverityWarn))
	assert.True(t, MeetsThreshold(SeverityWarn, SeverityWarn))
	assert.False(t, MeetsThreshold(SeverityInfo, SeverityWarn))
	assert.True(t, MeetsThreshold(SeverityInfo, ""))
}
