package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/go-github/v61/github"

	"redline/internal/gateway"
	"redline/internal/review"
)

// Client wraps the GitHub REST API as both the diff source and the
// delivery surface.
type Client struct {
	gh *github.Client
}

// New builds an authenticated client. baseURL selects a GitHub Enterprise
// instance; empty means github.com.
func New(token, baseURL string) (*Client, error) {
	if token == "" {
		return nil, &AuthError{Reason: "GITHUB_TOKEN is not set"}
	}
	gh := github.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring API base URL: %w", err)
		}
	}
	return &Client{gh: gh}, nil
}

// FetchDiff returns the pull request's unified diff.
func (c *Client) FetchDiff(ctx context.Context, t gateway.Target) (string, error) {
	diff, _, err := c.gh.PullRequests.GetRaw(ctx, t.Owner, t.Repo, t.Number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", classify(err)
	}
	return diff, nil
}

// FindSummaryComment scans the issue comments for the marker and returns
// the comment's ID, or 0 when no summary exists yet.
func (c *Client) FindSummaryComment(ctx context.Context, t gateway.Target, marker string) (int64, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, t.Owner, t.Repo, t.Number, opts)
		if err != nil {
			return 0, classify(err)
		}
		for _, cm := range comments {
			if strings.Contains(cm.GetBody(), marker) {
				return cm.GetID(), nil
			}
		}
		if resp.NextPage == 0 {
			return 0, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) CreateSummaryComment(ctx context.Context, t gateway.Target, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, t.Owner, t.Repo, t.Number, &github.IssueComment{
		Body: github.String(body),
	})
	return classify(err)
}

func (c *Client) UpdateSummaryComment(ctx context.Context, t gateway.Target, id int64, body string) error {
	_, _, err := c.gh.Issues.EditComment(ctx, t.Owner, t.Repo, id, &github.IssueComment{
		Body: github.String(body),
	})
	return classify(err)
}

var reviewEvents = map[review.Decision]string{
	review.DecisionRequestChanges: "REQUEST_CHANGES",
	review.DecisionComment:        "COMMENT",
	review.DecisionApprove:        "APPROVE",
}

// SubmitReview posts the verdict and all inline comments as one review.
func (c *Client) SubmitReview(ctx context.Context, t gateway.Target, decision review.Decision, body string, comments []gateway.InlineComment) error {
	event, ok := reviewEvents[decision]
	if !ok {
		return fmt.Errorf("unknown decision %q", decision)
	}

	drafts := make([]*github.DraftReviewComment, 0, len(comments))
	for _, cm := range comments {
		drafts = append(drafts, &github.DraftReviewComment{
			Path: github.String(cm.Path),
			Line: github.Int(cm.Line),
			Side: github.String("RIGHT"),
			Body: github.String(cm.Body),
		})
	}

	_, _, err := c.gh.PullRequests.CreateReview(ctx, t.Owner, t.Repo, t.Number, &github.PullRequestReviewRequest{
		Body:     github.String(body),
		Event:    github.String(event),
		Comments: drafts,
	})
	return classify(err)
}

// CreateInlineComment posts one review comment against the PR head.
func (c *Client) CreateInlineComment(ctx context.Context, t gateway.Target, cm gateway.InlineComment) error {
	pr, _, err := c.gh.PullRequests.Get(ctx, t.Owner, t.Repo, t.Number)
	if err != nil {
		return classify(err)
	}
	_, _, err = c.gh.PullRequests.CreateComment(ctx, t.Owner, t.Repo, t.Number, &github.PullRequestComment{
		Path:     github.String(cm.Path),
		Line:     github.Int(cm.Line),
		Side:     github.String("RIGHT"),
		Body:     github.String(cm.Body),
		CommitID: github.String(pr.GetHead().GetSHA()),
	})
	return classify(err)
}

var signatureRe = regexp.MustCompile(`<!-- redline:finding:([0-9a-f]+) -->`)

// ExistingSignatures reads back the finding signatures embedded in review
// comment trailers from previous runs.
func (c *Client) ExistingSignatures(ctx context.Context, t gateway.Target) (map[string]bool, error) {
	sigs := make(map[string]bool)
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.gh.PullRequests.ListComments(ctx, t.Owner, t.Repo, t.Number, opts)
		if err != nil {
			return nil, classify(err)
		}
		for _, cm := range comments {
			if m := signatureRe.FindStringSubmatch(cm.GetBody()); m != nil {
				sigs[m[1]] = true
			}
		}
		if resp.NextPage == 0 {
			return sigs, nil
		}
		opts.Page = resp.NextPage
	}
}

// TransientError marks a remote failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient API error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError marks a credential or permission failure. Never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication error: " + e.Reason }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

// classify maps go-github errors onto the run's error taxonomy: rate
// limits and 5xx are transient, 401/403 are auth, the rest permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &TransientError{Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &TransientError{Err: err}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusTooManyRequests || code >= 500:
			return &TransientError{Err: err}
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return &AuthError{Reason: err.Error()}
		}
	}
	return err
}
