package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func makeTestServer(t *testing.T, statusCode int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatBody(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func errorBody(msg, code string) map[string]any {
	return map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error", "code": code},
	}
}

func TestComplete_Success(t *testing.T) {
	srv := makeTestServer(t, http.StatusOK, chatBody("- Go Engineer — Acme — https://acme.io/1"))

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", srv.Client())
	got, err := provider.Complete(context.Background(), "pick jobs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "- Go Engineer — Acme — https://acme.io/1" {
		t.Errorf("got %q", got)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := makeTestServer(t, http.StatusInternalServerError, errorBody("server error", ""))

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", srv.Client())
	_, err := provider.Complete(context.Background(), "pick jobs")
	if err == nil {
		t.Fatal("expected error on 5xx response")
	}
	if errors.Is(err, ErrRequestTooLarge) {
		t.Error("5xx must not be reported as request too large")
	}
}

func TestComplete_RequestTooLarge(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"413", http.StatusRequestEntityTooLarge, errorBody("Request too large", "")},
		{"400 context length", http.StatusBadRequest, errorBody("This model's maximum context length is 8192 tokens", "context_length_exceeded")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := makeTestServer(t, tt.status, tt.body)
			provider := NewOpenAIProvider(srv.URL, "k", "m", srv.Client())
			_, err := provider.Complete(context.Background(), "pick jobs")
			if !errors.Is(err, ErrRequestTooLarge) {
				t.Errorf("err = %v, want ErrRequestTooLarge", err)
			}
		})
	}
}

func TestComplete_PlainBadRequest(t *testing.T) {
	srv := makeTestServer(t, http.StatusBadRequest, errorBody("invalid model", "model_not_found"))
	provider := NewOpenAIProvider(srv.URL, "k", "m", srv.Client())
	_, err := provider.Complete(context.Background(), "pick jobs")
	if err == nil || errors.Is(err, ErrRequestTooLarge) {
		t.Errorf("err = %v, want a plain error", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := makeTestServer(t, http.StatusOK, map[string]any{"choices": []any{}})

	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", srv.Client())
	_, err := provider.Complete(context.Background(), "pick jobs")
	if err == nil {
		t.Fatal("expected error when LLM returns no choices")
	}
}

func TestComplete_SendsAuthAndModel(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatBody("NONE"))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(srv.URL+"/openai/v1", "my-secret-key", "llama-3.1-8b-instant", srv.Client())
	if _, err := provider.Complete(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer my-secret-key" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
	if gotPath != "/openai/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Model != "llama-3.1-8b-instant" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "hello" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(context.Background(), ProviderConfig{Name: "groq", APIKey: "k"}, nil); err != nil {
		t.Errorf("groq: %v", err)
	}
	if _, err := NewProvider(context.Background(), ProviderConfig{Name: "bard"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewProvider(context.Background(), ProviderConfig{Name: "gemini"}, nil); err == nil {
		t.Error("expected error for gemini without key")
	}
}
