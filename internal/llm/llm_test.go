package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
		wantAuth      bool
	}{
		{429, true, false},
		{500, true, false},
		{503, true, false},
		{401, false, true},
		{403, false, true},
		{400, false, false},
		{404, false, false},
	}
	for _, tt := range tests {
		err := classifyStatus(tt.status, "body")
		if got := IsTransient(err); got != tt.wantTransient {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, got, tt.wantTransient)
		}
		if got := IsAuth(err); got != tt.wantAuth {
			t.Errorf("status %d: IsAuth = %v, want %v", tt.status, got, tt.wantAuth)
		}
	}
}

func TestClassifyStatus_TruncatesBody(t *testing.T) {
	err := classifyStatus(400, strings.Repeat("x", 500))
	if len(err.Error()) > 300 {
		t.Errorf("error message not truncated: %d chars", len(err.Error()))
	}
}

func TestIsTransient_WrappedError(t *testing.T) {
	inner := &TransientError{Err: errors.New("boom")}
	wrapped := fmt.Errorf("analyze chunk: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be detected")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error must not be transient")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New("cerebras", "some-model"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := New("anthropic", "claude-sonnet-4-20250514"); err == nil {
		t.Fatal("expected error when ANTHROPIC_API_KEY is unset")
	}
}

func TestNewGemini_KeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	if _, err := New("gemini", "gemini-2.0-flash"); err == nil {
		t.Fatal("expected error when neither GEMINI_API_KEY nor GOOGLE_API_KEY is set")
	}

	t.Setenv("GOOGLE_API_KEY", "fallback-key")
	a, err := New("gemini", "gemini-2.0-flash")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "gemini" {
		t.Errorf("Name = %q, want gemini", a.Name())
	}
}

func TestGemini_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.String(), "gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected URL %q", r.URL.String())
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"["},{"text":"]"}]}}],"usageMetadata":{"totalTokenCount":9}}`)
	}))
	defer srv.Close()

	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("REDLINE_GEMINI_BASE_URL", srv.URL)

	g, err := NewGemini("gemini-2.0-flash")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := g.Analyze(context.Background(), Request{System: "s", User: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "[]" {
		t.Errorf("Content = %q, want %q (parts must concatenate)", resp.Content, "[]")
	}
	if resp.Tokens != 9 {
		t.Errorf("Tokens = %d, want 9", resp.Tokens)
	}
}

func TestGemini_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
		wantAuth      bool
	}{
		{429, true, false},
		{500, true, false},
		{403, false, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			fmt.Fprint(w, "quota exceeded")
		}))

		t.Setenv("GEMINI_API_KEY", "test-key")
		t.Setenv("REDLINE_GEMINI_BASE_URL", srv.URL)

		g, err := NewGemini("gemini-2.0-flash")
		if err != nil {
			t.Fatal(err)
		}
		_, err = g.Analyze(context.Background(), Request{User: "u"})
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if IsTransient(err) != tt.wantTransient {
			t.Errorf("status %d: IsTransient = %v", tt.status, IsTransient(err))
		}
		if IsAuth(err) != tt.wantAuth {
			t.Errorf("status %d: IsAuth = %v", tt.status, IsAuth(err))
		}
	}
}

func TestOllama_NormalizesHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"http://localhost:11434", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/v1", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
	}
	for _, tt := range tests {
		t.Setenv("OLLAMA_HOST", tt.host)
		o, err := NewOllama("llama3")
		if err != nil {
			t.Fatalf("NewOllama(%q): %v", tt.host, err)
		}
		if o.baseURL != tt.want {
			t.Errorf("host %q: url = %q, want %q", tt.host, o.baseURL, tt.want)
		}
	}
}

func TestOpenAI_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"[]"}}],"usage":{"total_tokens":12}}`)
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("REDLINE_OPENAI_BASE_URL", srv.URL)

	a, err := NewOpenAI("gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := a.Analyze(context.Background(), Request{System: "s", User: "u", MaxTokens: 100})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "[]" {
		t.Errorf("Content = %q, want %q", resp.Content, "[]")
	}
	if resp.Tokens != 12 {
		t.Errorf("Tokens = %d, want 12", resp.Tokens)
	}
}

func TestOpenAI_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
		wantAuth      bool
	}{
		{429, true, false},
		{502, true, false},
		{401, false, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			fmt.Fprint(w, "upstream says no")
		}))

		t.Setenv("OPENAI_API_KEY", "test-key")
		t.Setenv("REDLINE_OPENAI_BASE_URL", srv.URL)

		a, err := NewOpenAI("gpt-4o")
		if err != nil {
			t.Fatal(err)
		}
		_, err = a.Analyze(context.Background(), Request{User: "u"})
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if IsTransient(err) != tt.wantTransient {
			t.Errorf("status %d: IsTransient = %v", tt.status, IsTransient(err))
		}
		if IsAuth(err) != tt.wantAuth {
			t.Errorf("status %d: IsAuth = %v", tt.status, IsAuth(err))
		}
	}
}

func TestOpenAI_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("REDLINE_OPENAI_BASE_URL", srv.URL)

	a, err := NewOpenAI("gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = a.Analyze(ctx, Request{User: "u"})
	if !IsTransient(err) {
		t.Errorf("network failure should classify as transient, got %v", err)
	}
}

func TestMain(m *testing.M) {
	// Provider constructors read real credentials from the environment;
	// clear them so tests control what they see.
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OLLAMA_HOST", "REDLINE_OPENAI_BASE_URL", "REDLINE_GEMINI_BASE_URL", "REDLINE_OLLAMA_API_KEY"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}
