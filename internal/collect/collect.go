package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"redline/internal/llm"
	"redline/internal/plan"
	"redline/internal/review"
	"redline/internal/scan"
)

// Status reports how a chunk's analysis ended.
type Status string

const (
	// StatusOK means scanners and the model both completed.
	StatusOK Status = "ok"
	// StatusPartial means the model call failed but deterministic
	// findings were kept.
	StatusPartial Status = "partial"
	// StatusFailed means the chunk produced nothing at all.
	StatusFailed Status = "failed"
)

// ChunkResult is the outcome for one chunk. Findings are always valid:
// schema violations are discarded during validation, never surfaced.
type ChunkResult struct {
	ChunkID  string
	Status   Status
	Findings []review.Finding
	Err      error
}

// ContractError reports a model response that violated the output schema
// even after a repair pass.
type ContractError struct {
	ChunkID string
	Err     error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("response contract violation for chunk %s: %v", e.ChunkID, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// Options bounds the Collector.
type Options struct {
	Workers     int
	MaxRetries  int
	CallTimeout time.Duration
	Redact      bool
}

const (
	defaultWorkers     = 4
	defaultMaxRetries  = 2
	defaultCallTimeout = 120 * time.Second
)

// Collector fans chunks out to a bounded worker pool. Each chunk gets the
// deterministic scanners first, then one model analysis with retries on
// transient failures only. A nil Analyzer runs scanners alone.
type Collector struct {
	Analyzer llm.Analyzer
	Opts     Options
	Log      zerolog.Logger
}

// Collect analyzes all chunks and returns one result per chunk, in chunk
// order regardless of completion order. lintCtx maps file path to raw
// linter messages included in the prompt. Context cancellation abandons
// unstarted work; completed results are always returned.
func (c *Collector) Collect(ctx context.Context, chunks []plan.Chunk, lintCtx map[string][]string) []ChunkResult {
	results := make([]ChunkResult, len(chunks))

	workers := c.Opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range chunks {
		i := i
		g.Go(func() error {
			results[i] = c.analyzeChunk(gctx, &chunks[i], lintCtx[chunks[i].Path])
			return nil
		})
	}
	// Workers never return errors; failures land in per-chunk results.
	_ = g.Wait()

	return results
}

func (c *Collector) analyzeChunk(ctx context.Context, chunk *plan.Chunk, lintLines []string) ChunkResult {
	res := ChunkResult{ChunkID: chunk.ID, Status: StatusOK}

	// Deterministic scanners run first and never fail.
	res.Findings = scan.Chunk(chunk)

	if c.Analyzer == nil {
		return res
	}

	diff := chunk.Diff()
	if c.Opts.Redact {
		diff = scan.Redact(diff)
	}

	req := llm.Request{
		System:    SystemPrompt(),
		User:      buildUserPrompt(chunk, diff, lintLines),
		MaxTokens: 8192,
	}

	findings, err := c.analyzeOnce(ctx, chunk, req)
	if err != nil {
		c.Log.Warn().Err(err).Str("chunk", chunk.ID).Msg("model analysis failed, keeping deterministic findings")
		res.Err = err
		if len(res.Findings) > 0 {
			res.Status = StatusPartial
		} else {
			res.Status = StatusFailed
		}
		return res
	}

	res.Findings = append(res.Findings, findings...)
	return res
}

// analyzeOnce performs the model call with retry, parses the response, and
// attempts one repair pass before declaring a contract violation.
func (c *Collector) analyzeOnce(ctx context.Context, chunk *plan.Chunk, req llm.Request) ([]review.Finding, error) {
	resp, err := c.callWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	findings, err := c.parseFindings(chunk, resp.Content)
	if err == nil {
		return findings, nil
	}

	repair := llm.Request{
		System: SystemPrompt(),
		User: fmt.Sprintf(
			"Your previous response was not valid JSON. The error was: %s\n\nPlease fix it and respond with ONLY a valid JSON array of findings.\n\nYour previous response was:\n%s",
			err.Error(), resp.Content,
		),
		MaxTokens: req.MaxTokens,
	}
	resp2, err2 := c.callWithRetry(ctx, repair)
	if err2 != nil {
		return nil, &ContractError{ChunkID: chunk.ID, Err: err}
	}
	findings, err = c.parseFindings(chunk, resp2.Content)
	if err != nil {
		return nil, &ContractError{ChunkID: chunk.ID, Err: err}
	}
	return findings, nil
}

func (c *Collector) callWithRetry(ctx context.Context, req llm.Request) (llm.Response, error) {
	maxRetries := c.Opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	timeout := c.Opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.Analyzer.Analyze(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !llm.IsTransient(err) {
			return llm.Response{}, err
		}
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return llm.Response{}, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
	}
	return llm.Response{}, lastErr
}

// backoff returns 1s, 2s, 4s... plus up to 25% jitter.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

// rawFinding is the JSON structure the model must return.
type rawFinding struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// parseFindings validates the model response against the output schema.
// An unparseable payload is an error; individually invalid items are
// discarded and logged but do not fail the chunk.
func (c *Collector) parseFindings(chunk *plan.Chunk, content string) ([]review.Finding, error) {
	content = stripFences(content)

	var raw []rawFinding
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}

	findings := make([]review.Finding, 0, len(raw))
	for _, r := range raw {
		if err := c.validate(chunk, r); err != nil {
			c.Log.Debug().Err(err).Str("chunk", chunk.ID).Msg("discarding invalid finding")
			continue
		}
		findings = append(findings, review.Finding{
			File:       r.File,
			Line:       r.Line,
			Severity:   review.Severity(r.Severity),
			Category:   review.Category(r.Category),
			Message:    r.Message,
			Suggestion: r.Suggestion,
			Origin:     review.OriginModel,
		})
	}
	return findings, nil
}

func (c *Collector) validate(chunk *plan.Chunk, r rawFinding) error {
	if r.Message == "" {
		return errors.New("missing message")
	}
	switch review.Severity(r.Severity) {
	case review.SeverityError, review.SeverityWarn, review.SeverityInfo:
	default:
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if r.File != chunk.Path {
		return fmt.Errorf("file %q outside chunk %s", r.File, chunk.ID)
	}
	if r.Line != 0 && !chunk.ContainsLine(r.Line) {
		return fmt.Errorf("line %d outside chunk hunks", r.Line)
	}
	return nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}
