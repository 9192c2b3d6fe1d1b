package orch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/config"
	"redline/internal/gateway"
	"redline/internal/githubapi"
	"redline/internal/llm"
	"redline/internal/review"
)

const secretDiff = `diff --git a/app/settings.py b/app/settings.py
--- a/app/settings.py
+++ b/app/settings.py
@@ -1,2 +1,3 @@
 DEBUG = False
+API_KEY = "sk-live-abcdef1234567890"
 TIMEOUT = 30
`

const cleanDiff = `diff --git a/app/util.py b/app/util.py
--- a/app/util.py
+++ b/app/util.py
@@ -1,2 +1,3 @@
 import os
+import sys
 VALUE = 1
`

type stubSource struct {
	diff  string
	errs  []error
	calls int
	delay time.Duration
}

func (s *stubSource) FetchDiff(ctx context.Context, _ gateway.Target) (string, error) {
	s.calls++
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.diff, nil
}

type stubPoster struct {
	summaries []string
	reviews   []review.Decision
}

func (p *stubPoster) FindSummaryComment(context.Context, gateway.Target, string) (int64, error) {
	return 0, nil
}

func (p *stubPoster) CreateSummaryComment(_ context.Context, _ gateway.Target, body string) error {
	p.summaries = append(p.summaries, body)
	return nil
}

func (p *stubPoster) UpdateSummaryComment(context.Context, gateway.Target, int64, string) error {
	return nil
}

func (p *stubPoster) SubmitReview(_ context.Context, _ gateway.Target, d review.Decision, _ string, _ []gateway.InlineComment) error {
	p.reviews = append(p.reviews, d)
	return nil
}

func (p *stubPoster) CreateInlineComment(context.Context, gateway.Target, gateway.InlineComment) error {
	return nil
}

func (p *stubPoster) ExistingSignatures(context.Context, gateway.Target) (map[string]bool, error) {
	return map[string]bool{}, nil
}

type stubAnalyzer struct {
	content string
}

func (a *stubAnalyzer) Name() string { return "stub" }

func (a *stubAnalyzer) Analyze(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Content: a.content}, nil
}

func newRunner(source DiffSource, analyzer llm.Analyzer, poster gateway.Poster) *Runner {
	cfg := config.Default()
	cfg.RunBudgetSeconds = 300
	return &Runner{
		Source:   source,
		Analyzer: analyzer,
		Gateway: &gateway.Gateway{
			Poster: poster,
			Opts:   gateway.Options{Marker: gateway.DefaultMarker, BlockingWarnCategories: cfg.BlockingWarnCats},
			Log:    zerolog.Nop(),
		},
		Cfg:     cfg,
		Log:     zerolog.Nop(),
		WorkDir: ".",
	}
}

var tgt = gateway.Target{Owner: "acme", Repo: "widgets", Number: 7}

func TestRun_SecretBlocksMerge(t *testing.T) {
	poster := &stubPoster{}
	r := newRunner(&stubSource{diff: secretDiff}, nil, poster)

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, StageDone, st.Stage)
	require.NotNil(t, st.Verdict)
	assert.Equal(t, review.DecisionRequestChanges, st.Verdict.Decision)
	require.Len(t, poster.reviews, 1)
	assert.Equal(t, review.DecisionRequestChanges, poster.reviews[0])
	require.Len(t, poster.summaries, 1)
	assert.Contains(t, poster.summaries[0], gateway.DefaultMarker)
}

func TestRun_ModelFindingsFlowThrough(t *testing.T) {
	analyzer := &stubAnalyzer{
		content: `[{"file":"app/util.py","line":2,"severity":"warn","category":"style","message":"unused import"}]`,
	}
	poster := &stubPoster{}
	r := newRunner(&stubSource{diff: cleanDiff}, analyzer, poster)

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	require.NotNil(t, st.Verdict)
	assert.Equal(t, review.DecisionComment, st.Verdict.Decision)
	require.Len(t, st.Verdict.Findings, 1)
	assert.Equal(t, "unused import", st.Verdict.Findings[0].Message)
}

func TestRun_EmptyDiffApprovesWithoutPosting(t *testing.T) {
	poster := &stubPoster{}
	r := newRunner(&stubSource{diff: ""}, nil, poster)

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, StageDone, st.Stage)
	require.NotNil(t, st.Verdict)
	assert.Equal(t, review.DecisionApprove, st.Verdict.Decision)
	assert.Empty(t, poster.summaries, "nothing reviewable posts nothing")
	assert.Empty(t, poster.reviews)
}

func TestRun_MalformedDiffDegrades(t *testing.T) {
	poster := &stubPoster{}
	r := newRunner(&stubSource{diff: "this is not a diff"}, nil, poster)

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, StageDone, st.Stage)
	assert.Contains(t, st.DegradedReason, "malformed diff")
	require.NotNil(t, st.Verdict)
	assert.Equal(t, review.DecisionComment, st.Verdict.Decision)
	require.Len(t, poster.summaries, 1)
	assert.Contains(t, poster.summaries[0], "degraded")
}

func TestRun_FetchAuthErrorDegradesWithoutRetry(t *testing.T) {
	source := &stubSource{errs: []error{&githubapi.AuthError{Reason: "bad token"}}}
	poster := &stubPoster{}
	r := newRunner(source, nil, poster)

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls, "auth errors are not retried")
	assert.Contains(t, st.DegradedReason, "bad token")
}

func TestRun_FetchTransientRetries(t *testing.T) {
	source := &stubSource{
		diff: secretDiff,
		errs: []error{&githubapi.TransientError{Err: errors.New("502")}},
	}
	poster := &stubPoster{}
	r := newRunner(source, nil, poster)

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
	assert.Equal(t, 1, st.Retries[StageFetch])
	assert.Empty(t, st.DegradedReason)
}

func TestRun_FetchTransientExhaustionDegrades(t *testing.T) {
	transient := &githubapi.TransientError{Err: errors.New("503")}
	source := &stubSource{errs: []error{transient, transient, transient}}
	poster := &stubPoster{}
	r := newRunner(source, nil, poster)
	r.Cfg.MaxRetries = 2

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, 3, source.calls)
	assert.Contains(t, st.DegradedReason, "fetching diff failed")
}

func TestRun_BudgetExpiryStillDelivers(t *testing.T) {
	// The fetch eats the whole budget; the run must still consolidate
	// and deliver whatever it has.
	source := &stubSource{diff: secretDiff, delay: 1100 * time.Millisecond}
	poster := &stubPoster{}
	r := newRunner(source, nil, poster)
	r.Cfg.RunBudgetSeconds = 1

	st, err := r.Run(context.Background(), tgt)
	require.NoError(t, err)

	assert.Equal(t, StageDone, st.Stage)
	require.NotNil(t, st.Verdict)
	require.Len(t, poster.summaries, 1)
	// Deterministic findings were never collected, so the verdict is
	// built from an empty stream.
	assert.Equal(t, review.DecisionApprove, st.Verdict.Decision)
}

func TestTimeBudget(t *testing.T) {
	b := NewTimeBudget(50 * time.Millisecond)
	assert.False(t, b.Expired())
	assert.Greater(t, b.Remaining(), time.Duration(0))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.Expired())
	assert.Equal(t, time.Duration(0), b.Remaining())

	unlimited := NewTimeBudget(0)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, unlimited.Expired())
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pr.diff")
	require.NoError(t, os.WriteFile(path, []byte(secretDiff), 0o644))

	src := FileSource{Path: path}
	diff, err := src.FetchDiff(context.Background(), tgt)
	require.NoError(t, err)
	assert.Equal(t, secretDiff, diff)

	_, err = FileSource{Path: filepath.Join(dir, "missing.diff")}.FetchDiff(context.Background(), tgt)
	assert.Error(t, err)
}
