// Package llm abstracts the analysis model behind the Analyzer interface
// with concrete backends for Anthropic, OpenAI, Gemini, and Ollama/LM
// Studio. Each Analyze call makes exactly one HTTP attempt and classifies
// failures as transient, auth, or permanent; retry policy lives with the
// caller.
package llm
