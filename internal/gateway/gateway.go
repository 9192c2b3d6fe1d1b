package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"redline/internal/review"
)

// Target identifies one pull request on the remote.
type Target struct {
	Owner  string
	Repo   string
	Number int
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s#%d", t.Owner, t.Repo, t.Number)
}

// InlineComment is one line-anchored review comment.
type InlineComment struct {
	Path string
	Line int
	Body string
}

// Poster abstracts the remote delivery surface. Implementations classify
// their failures so the gateway can distinguish transient trouble from
// credential problems.
type Poster interface {
	// FindSummaryComment returns the ID of the existing summary comment
	// carrying marker, or 0 if none exists.
	FindSummaryComment(ctx context.Context, t Target, marker string) (int64, error)
	CreateSummaryComment(ctx context.Context, t Target, body string) error
	UpdateSummaryComment(ctx context.Context, t Target, id int64, body string) error
	// SubmitReview posts the verdict with a batch of inline comments.
	SubmitReview(ctx context.Context, t Target, decision review.Decision, body string, comments []InlineComment) error
	// CreateInlineComment posts a single comment; the fallback path when
	// the batch review is rejected.
	CreateInlineComment(ctx context.Context, t Target, c InlineComment) error
	// ExistingSignatures returns the finding signatures already posted on
	// the pull request, read back from comment trailers.
	ExistingSignatures(ctx context.Context, t Target) (map[string]bool, error)
}

// Receipt records what delivery actually did. Returned even when parts of
// delivery failed.
type Receipt struct {
	SummaryPosted  bool     `json:"summaryPosted"`
	SummaryUpdated bool     `json:"summaryUpdated"`
	Comments       int      `json:"comments"`
	SkippedDupes   int      `json:"skippedDupes"`
	Fallback       bool     `json:"fallback"`
	DryRun         bool     `json:"dryRun"`
	Failures       []string `json:"failures,omitempty"`
}

// Options bounds the gateway.
type Options struct {
	Marker                 string
	DryRun                 bool
	BlockingWarnCategories []string
}

// DefaultMarker is the hidden HTML comment that makes the summary
// idempotent across runs.
const DefaultMarker = "<!-- redline:summary -->"

// Gateway turns a verdict into remote side effects. Every step is
// best-effort: a failed summary upsert does not block inline comments and
// vice versa.
type Gateway struct {
	Poster Poster
	Opts   Options
	Log    zerolog.Logger
}

// Decide maps consolidated findings to a verdict. Any error-severity
// finding, or a warn in a blocking category, requests changes; remaining
// findings comment; an empty list approves. Rollup entries never block.
func Decide(findings []review.Finding, blockingWarnCategories []string) review.Decision {
	blocking := make(map[review.Category]bool, len(blockingWarnCategories))
	for _, c := range blockingWarnCategories {
		blocking[review.Category(c)] = true
	}

	hasAny := false
	for _, f := range findings {
		if f.Category == review.CategoryRollup {
			continue
		}
		hasAny = true
		if f.Severity == review.SeverityError {
			return review.DecisionRequestChanges
		}
		if f.Severity == review.SeverityWarn && blocking[f.Category] {
			return review.DecisionRequestChanges
		}
	}
	if hasAny {
		return review.DecisionComment
	}
	return review.DecisionApprove
}

// Deliver posts the summary comment and the inline comments for verdict.
// It returns a receipt describing what happened; the error is non-nil only
// when nothing could be delivered at all.
func (g *Gateway) Deliver(ctx context.Context, t Target, verdict *review.Verdict, summary string) (*Receipt, error) {
	receipt := &Receipt{}

	if g.Opts.DryRun {
		receipt.DryRun = true
		g.Log.Info().Str("target", t.String()).Msg("dry run, skipping delivery")
		return receipt, nil
	}

	g.upsertSummary(ctx, t, summary, receipt)
	g.deliverComments(ctx, t, verdict, receipt)

	if !receipt.SummaryPosted && !receipt.SummaryUpdated && receipt.Comments == 0 && len(receipt.Failures) > 0 {
		return receipt, fmt.Errorf("delivery failed: %s", receipt.Failures[0])
	}
	return receipt, nil
}

// upsertSummary creates or edits the marker-carrying summary comment.
func (g *Gateway) upsertSummary(ctx context.Context, t Target, body string, receipt *Receipt) {
	marker := g.Opts.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	id, err := g.Poster.FindSummaryComment(ctx, t, marker)
	if err != nil {
		g.Log.Warn().Err(err).Msg("locating summary comment failed, creating a new one")
		id = 0
	}

	if id != 0 {
		if err := g.Poster.UpdateSummaryComment(ctx, t, id, body); err == nil {
			receipt.SummaryUpdated = true
			return
		}
		g.Log.Warn().Int64("comment", id).Msg("updating summary failed, creating a new one")
	}
	if err := g.Poster.CreateSummaryComment(ctx, t, body); err != nil {
		receipt.Failures = append(receipt.Failures, fmt.Sprintf("summary: %v", err))
		return
	}
	receipt.SummaryPosted = true
}

func (g *Gateway) deliverComments(ctx context.Context, t Target, verdict *review.Verdict, receipt *Receipt) {
	existing, err := g.Poster.ExistingSignatures(ctx, t)
	if err != nil {
		g.Log.Warn().Err(err).Msg("reading existing comment signatures failed")
		existing = nil
	}

	var comments []InlineComment
	for _, f := range verdict.Findings {
		if f.Line <= 0 || f.Category == review.CategoryRollup {
			continue
		}
		if existing[f.Signature()] {
			receipt.SkippedDupes++
			continue
		}
		comments = append(comments, InlineComment{
			Path: f.File,
			Line: f.Line,
			Body: commentBody(f),
		})
	}

	err = g.Poster.SubmitReview(ctx, t, verdict.Decision, reviewBody(verdict), comments)
	if err == nil {
		receipt.Comments = len(comments)
		return
	}
	g.Log.Warn().Err(err).Int("comments", len(comments)).Msg("batch review rejected, falling back to individual comments")

	receipt.Fallback = true
	for _, c := range comments {
		if err := g.Poster.CreateInlineComment(ctx, t, c); err != nil {
			g.Log.Warn().Err(err).Str("path", c.Path).Int("line", c.Line).Msg("inline comment failed")
			receipt.Failures = append(receipt.Failures, fmt.Sprintf("%s:%d: %v", c.Path, c.Line, err))
			continue
		}
		receipt.Comments++
	}
}

// commentBody renders one finding as a review comment with its signature
// trailer so reruns can detect it.
func commentBody(f review.Finding) string {
	body := fmt.Sprintf("**%s** (%s): %s", f.Severity, f.Category, f.Message)
	if f.Suggestion != "" {
		body += "\n\n" + f.Suggestion
	}
	body += fmt.Sprintf("\n\n<!-- redline:finding:%s -->", f.Signature())
	return body
}

func reviewBody(v *review.Verdict) string {
	errs, warns, infos := review.CountBySeverity(v.Findings)
	switch v.Decision {
	case review.DecisionRequestChanges:
		return fmt.Sprintf("Automated review found blocking issues: %d error(s), %d warning(s), %d info.", errs, warns, infos)
	case review.DecisionComment:
		return fmt.Sprintf("Automated review left non-blocking feedback: %d warning(s), %d info.", warns, infos)
	default:
		return "Automated review found no issues."
	}
}
