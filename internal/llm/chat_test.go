package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/filmguide-ai/filmguide/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewASIOneClient(config.EndpointConfig{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Model:       "asi1-mini",
		Temperature: 0.7,
		MaxTokens:   500,
	}, slog.Default())
}

func TestComplete_Success(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Try Banking on Bitcoin."}},
			},
		})
	})

	got, err := c.Complete(context.Background(), "Recommend me Bitcoin movies")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Try Banking on Bitcoin." {
		t.Errorf("Complete = %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "asi1-mini" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v", gotReq.Messages)
	}
	if gotReq.Temperature != 0.7 {
		t.Errorf("request temperature = %v", gotReq.Temperature)
	}
	if gotReq.MaxTokens != 500 {
		t.Errorf("request max_tokens = %d", gotReq.MaxTokens)
	}
}

func TestComplete_UpstreamStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := c.Complete(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}

	var ce *CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *CompletionError", err)
	}
	if ce.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", ce.StatusCode)
	}
}

func TestComplete_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>oops</html>"},
		{name: "no choices", body: `{"choices":[]}`},
		{name: "empty content", body: `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := c.Complete(context.Background(), "hello")
			var ce *CompletionError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *CompletionError", err)
			}
		})
	}
}

func TestComplete_SingleAttempt(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := c.Complete(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want exactly 1", calls)
	}
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	c := NewOpenAIClient(config.EndpointConfig{}, slog.Default())
	if c.baseURL != "https://api.openai.com" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.model != "gpt-4o-mini" {
		t.Errorf("model = %q", c.model)
	}
}

func TestNewASIOneClient_Defaults(t *testing.T) {
	c := NewASIOneClient(config.EndpointConfig{}, slog.Default())
	if c.baseURL != "https://api.asi1.ai" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.model != "asi1-mini" {
		t.Errorf("model = %q", c.model)
	}
}
