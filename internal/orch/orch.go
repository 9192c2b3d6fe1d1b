package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"redline/internal/collect"
	"redline/internal/config"
	"redline/internal/gateway"
	"redline/internal/githubapi"
	"redline/internal/lint"
	"redline/internal/llm"
	"redline/internal/plan"
	"redline/internal/review"
)

// Stage names the orchestrator's states.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StagePlan      Stage = "plan"
	StageLint      Stage = "lint"
	StageReview    Stage = "review"
	StageCritique  Stage = "critique"
	StageDeliver   Stage = "deliver"
	StageSummarize Stage = "summarize"
	StageDegraded  Stage = "degraded"
	StageDone      Stage = "done"
)

// DiffSource produces the raw diff for a target. The GitHub client is the
// normal implementation; a file-backed source serves offline runs.
type DiffSource interface {
	FetchDiff(ctx context.Context, t gateway.Target) (string, error)
}

// State is the run's accumulating record. Findings are append-only until
// critique consolidates them into the verdict.
type State struct {
	RunID  string
	Stage  Stage
	Target gateway.Target

	Diff string
	Plan *plan.Plan

	Findings         []review.Finding
	Notes            []review.ContradictionNote
	Truncated        bool
	Retries          map[Stage]int
	AnalysisFailures []string
	SkippedLinters   []string

	Verdict        *review.Verdict
	Receipt        *gateway.Receipt
	DegradedReason string
	Elapsed        time.Duration

	lintContext map[string][]string
}

// Runner drives one review run through the stage machine.
type Runner struct {
	Source   DiffSource
	Analyzer llm.Analyzer
	Gateway  *gateway.Gateway
	Cfg      config.Config
	Log      zerolog.Logger
	WorkDir  string

	budget *TimeBudget
}

// Run executes the full pipeline for one pull request. It returns the
// final state even on degraded runs; the error is non-nil only when the
// run could not produce a verdict at all.
func (r *Runner) Run(ctx context.Context, t gateway.Target) (*State, error) {
	st := &State{
		RunID:   uuid.NewString(),
		Stage:   StageFetch,
		Target:  t,
		Retries: make(map[Stage]int),
	}
	r.budget = NewTimeBudget(time.Duration(r.Cfg.RunBudgetSeconds) * time.Second)

	log := r.Log.With().Str("run", st.RunID).Str("target", t.String()).Logger()
	log.Info().Msg("starting review run")

	for st.Stage != StageDone {
		// Budget expiry mid-pipeline skips ahead to consolidation so a
		// verdict still ships from whatever was collected.
		if r.budget.Expired() && (st.Stage == StageLint || st.Stage == StageReview) {
			log.Warn().Str("stage", string(st.Stage)).Msg("time budget expired, consolidating early")
			st.Stage = StageCritique
		}

		log.Debug().Str("stage", string(st.Stage)).Msg("entering stage")
		switch st.Stage {
		case StageFetch:
			st.Stage = r.fetch(ctx, st)
		case StagePlan:
			st.Stage = r.plan(st, log)
		case StageLint:
			st.Stage = r.lint(ctx, st, log)
		case StageReview:
			st.Stage = r.review(ctx, st, log)
		case StageCritique:
			st.Stage = r.critique(st)
		case StageDeliver:
			st.Stage = r.deliver(ctx, st, log)
		case StageSummarize:
			st.Stage = r.summarize(st, log)
		case StageDegraded:
			st.Stage = r.degraded(ctx, st, log)
		default:
			return st, fmt.Errorf("unknown stage %q", st.Stage)
		}
	}

	st.Elapsed = r.budget.Elapsed()
	if st.Verdict == nil {
		return st, fmt.Errorf("run ended without a verdict: %s", st.DegradedReason)
	}
	return st, nil
}

// fetch pulls the diff, retrying transient remote failures.
func (r *Runner) fetch(ctx context.Context, st *State) Stage {
	diff, err := r.attempt(ctx, st, StageFetch, func(ctx context.Context) (string, error) {
		return r.Source.FetchDiff(ctx, st.Target)
	})
	if err != nil {
		if githubapi.IsAuth(err) {
			st.DegradedReason = "cannot fetch diff: " + err.Error()
		} else {
			st.DegradedReason = fmt.Sprintf("fetching diff failed after %d attempts: %v", st.Retries[StageFetch]+1, err)
		}
		return StageDegraded
	}
	st.Diff = diff
	return StagePlan
}

func (r *Runner) plan(st *State, log zerolog.Logger) Stage {
	p, err := plan.Build(st.Diff, plan.Options{
		SkipPatterns:  r.Cfg.SkipPatterns,
		MaxChunkLines: r.Cfg.MaxChunkLines,
		MaxFiles:      r.Cfg.MaxFiles,
	})
	if err != nil {
		// Malformed diffs are terminal: retrying cannot help.
		st.DegradedReason = err.Error()
		return StageDegraded
	}
	st.Plan = p
	log.Info().Int("files", p.TotalFiles).Int("chunks", len(p.Chunks)).
		Int("skipped", len(p.SkippedFiles)).Msg("plan built")

	if len(p.Chunks) == 0 {
		// Nothing reviewable. Approve without touching the remote.
		return StageSummarize
	}
	return StageLint
}

func (r *Runner) lint(ctx context.Context, st *State, log zerolog.Logger) Stage {
	runner := &lint.Runner{Dir: r.WorkDir, Log: log}
	files := make([]string, 0, len(st.Plan.Chunks))
	seen := make(map[string]bool)
	for _, c := range st.Plan.Chunks {
		if !seen[c.Path] {
			seen[c.Path] = true
			files = append(files, c.Path)
		}
	}

	res := runner.Run(ctx, st.Plan.Linters, files)
	st.SkippedLinters = res.Skipped
	st.lintContext = res.PerFile

	// Keep only lint findings that land inside changed ranges; the rest
	// concern untouched code.
	kept := 0
	for _, f := range res.Findings {
		if r.inChangedRange(st.Plan, f) {
			st.Findings = append(st.Findings, f)
			kept++
		}
	}
	log.Info().Int("lint_findings", kept).Strs("skipped_linters", res.Skipped).Msg("linters done")
	return StageReview
}

func (r *Runner) inChangedRange(p *plan.Plan, f review.Finding) bool {
	for i := range p.Chunks {
		c := &p.Chunks[i]
		if c.Path != f.File {
			continue
		}
		if f.Line == 0 || c.ContainsLine(f.Line) {
			return true
		}
	}
	return false
}

func (r *Runner) review(ctx context.Context, st *State, log zerolog.Logger) Stage {
	collector := &collect.Collector{
		Analyzer: r.Analyzer,
		Opts: collect.Options{
			Workers:     r.Cfg.MaxWorkers,
			MaxRetries:  r.Cfg.MaxRetries,
			CallTimeout: time.Duration(r.Cfg.CallTimeoutSeconds) * time.Second,
			Redact:      r.Cfg.RedactEnabled(),
		},
		Log: log,
	}

	// In-flight analysis is abandoned when the budget runs out; finished
	// chunk results are kept.
	reviewCtx, cancel := context.WithTimeout(ctx, r.budget.Remaining())
	defer cancel()

	results := collector.Collect(reviewCtx, st.Plan.Chunks, st.lintContext)
	for _, res := range results {
		st.Findings = append(st.Findings, res.Findings...)
		if res.Status != collect.StatusOK {
			st.AnalysisFailures = append(st.AnalysisFailures, res.ChunkID)
		}
	}
	log.Info().Int("findings", len(st.Findings)).
		Int("failed_chunks", len(st.AnalysisFailures)).Msg("analysis done")
	return StageCritique
}

// critique consolidates the raw finding stream. Pure and cheap, so it
// runs even on an expired budget.
func (r *Runner) critique(st *State) Stage {
	res := review.Consolidate(st.Findings, review.ConsolidateOptions{
		Threshold: review.Severity(r.Cfg.SeverityThreshold),
		Budget:    r.Cfg.MaxComments,
	})
	st.Verdict = &review.Verdict{
		Decision: gateway.Decide(res.Findings, r.Cfg.BlockingWarnCats),
		Findings: res.Findings,
		Notes:    res.Notes,
	}
	st.Notes = res.Notes
	st.Truncated = res.Truncated > 0
	return StageDeliver
}

func (r *Runner) deliver(ctx context.Context, st *State, log zerolog.Logger) Stage {
	summary := gateway.RenderSummary(r.summaryInput(st, false), r.Gateway.Opts.Marker)
	st.Verdict.Summary = summary

	receipt, err := r.Gateway.Deliver(ctx, st.Target, st.Verdict, summary)
	st.Receipt = receipt
	if err != nil {
		log.Error().Err(err).Msg("delivery failed entirely")
	}
	return StageSummarize
}

func (r *Runner) summarize(st *State, log zerolog.Logger) Stage {
	if st.Verdict == nil {
		// Zero-chunk short circuit: approve, nothing to post.
		st.Verdict = &review.Verdict{
			Decision: review.DecisionApprove,
			Summary:  gateway.RenderSummary(r.summaryInput(st, false), r.Gateway.Opts.Marker),
		}
	}
	errs, warns, infos := review.CountBySeverity(st.Verdict.Findings)
	log.Info().Str("decision", string(st.Verdict.Decision)).
		Int("errors", errs).Int("warns", warns).Int("infos", infos).
		Dur("elapsed", r.budget.Elapsed()).Msg("run complete")
	return StageDone
}

// degraded ships a best-effort failure summary and ends the run with a
// non-blocking verdict.
func (r *Runner) degraded(ctx context.Context, st *State, log zerolog.Logger) Stage {
	log.Error().Str("reason", st.DegradedReason).Msg("run degraded")

	res := review.Consolidate(st.Findings, review.ConsolidateOptions{
		Threshold: review.Severity(r.Cfg.SeverityThreshold),
		Budget:    r.Cfg.MaxComments,
	})
	st.Verdict = &review.Verdict{
		Decision: review.DecisionComment,
		Findings: res.Findings,
		Notes:    res.Notes,
	}
	st.Verdict.Summary = gateway.RenderSummary(r.summaryInput(st, true), r.Gateway.Opts.Marker)

	receipt, err := r.Gateway.Deliver(ctx, st.Target, st.Verdict, st.Verdict.Summary)
	st.Receipt = receipt
	if err != nil {
		log.Warn().Err(err).Msg("degraded summary could not be posted")
	}
	return StageDone
}

func (r *Runner) summaryInput(st *State, degraded bool) gateway.SummaryInput {
	in := gateway.SummaryInput{
		RunID:            st.RunID,
		AnalysisFailures: st.AnalysisFailures,
		SkippedLinters:   st.SkippedLinters,
		Truncated:        st.Truncated,
		Notes:            st.Notes,
		Degraded:         degraded,
		Reason:           st.DegradedReason,
		Elapsed:          r.budget.Elapsed(),
	}
	if st.Plan != nil {
		in.SkippedFiles = st.Plan.SkippedFiles
	}
	if st.Verdict != nil {
		in.Decision = st.Verdict.Decision
		in.Findings = st.Verdict.Findings
	} else {
		in.Decision = review.DecisionApprove
	}
	return in
}

// attempt runs fn with bounded retries on transient errors, tracking the
// retry count per stage.
func (r *Runner) attempt(ctx context.Context, st *State, stage Stage, fn func(context.Context) (string, error)) (string, error) {
	maxRetries := r.Cfg.MaxRetries
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !githubapi.IsTransient(err) {
			return "", err
		}
		if i < maxRetries {
			st.Retries[stage]++
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<uint(i)) * time.Second):
			}
		}
	}
	return "", lastErr
}
