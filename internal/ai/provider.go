package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRequestTooLarge is returned by providers when the prompt exceeds what the
// model accepts. Callers shrink the batch and retry.
var ErrRequestTooLarge = errors.New("llm request too large")

// LLMProvider sends a prompt to an LLM and returns the raw text response.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig selects and configures an LLM backend.
type ProviderConfig struct {
	Name    string // openai, groq or gemini
	BaseURL string
	Model   string
	APIKey  string
}

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGroqModel   = "llama-3.1-8b-instant"
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGeminiModel = "gemini-2.0-flash"
)

// NewProvider builds the provider named in cfg.
func NewProvider(ctx context.Context, cfg ProviderConfig, httpClient *http.Client) (LLMProvider, error) {
	switch strings.ToLower(cfg.Name) {
	case "openai":
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, orDefault(cfg.Model, defaultOpenAIModel), httpClient), nil
	case "groq":
		return NewOpenAIProvider(orDefault(cfg.BaseURL, defaultGroqBaseURL), cfg.APIKey, orDefault(cfg.Model, defaultGroqModel), httpClient), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, orDefault(cfg.Model, defaultGeminiModel))
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Name)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// contextLengthHint reports whether an error message describes an oversized
// prompt. Providers signal this with a 400 rather than a 413.
func contextLengthHint(msg string) bool {
	msg = strings.ToLower(msg)
	for _, hint := range []string{"context_length", "context length", "maximum context", "too large", "too many tokens", "reduce the length"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
