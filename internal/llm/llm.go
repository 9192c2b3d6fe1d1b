package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request contains the data sent to a provider for one analysis call.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Response contains the raw response from a provider.
type Response struct {
	Content string
	Tokens  int
}

// Analyzer is the provider abstraction. Implementations perform exactly
// one attempt per Analyze call; the caller owns retry policy.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
	Name() string
}

// New creates a provider by name.
func New(provider, model string) (Analyzer, error) {
	var (
		a   Analyzer
		err error
	)
	switch provider {
	case "anthropic":
		a, err = NewAnthropic(model)
	case "openai":
		a, err = NewOpenAI(model)
	case "gemini", "google":
		a, err = NewGemini(model)
	case "ollama", "lmstudio":
		a, err = NewOllama(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// TransientError marks a failure worth retrying: rate limits, 5xx
// responses, and network-level errors.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient provider error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError marks a credential failure. Never retried.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication error (status %d): %s", e.Status, e.Body)
}

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

// classifyStatus maps a non-200 HTTP status to the error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status == 429 || status >= 500:
		return &TransientError{Status: status, Err: errors.New(truncate(body, 200))}
	case status == 401 || status == 403:
		return &AuthError{Status: status, Body: truncate(body, 200)}
	default:
		return fmt.Errorf("API error (status %d): %s", status, truncate(body, 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
