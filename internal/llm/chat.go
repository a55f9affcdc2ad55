package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/filmguide-ai/filmguide/internal/buildinfo"
	"github.com/filmguide-ai/filmguide/internal/config"
)

// chatMessage is one message in a chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the minimal request shape for a chat-completions
// endpoint. Both ASI:One and OpenAI accept it.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the minimal response shape returned by a
// chat-completions endpoint.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatClient calls an OpenAI-compatible chat-completions API. Use
// [NewASIOneClient] or [NewOpenAIClient] to construct one with the
// right defaults.
type ChatClient struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewASIOneClient creates a client for the ASI:One completion API.
func NewASIOneClient(cfg config.EndpointConfig, logger *slog.Logger) *ChatClient {
	c := newChatClient("asi1", cfg, logger)
	if c.baseURL == "" {
		c.baseURL = "https://api.asi1.ai"
	}
	if c.model == "" {
		c.model = "asi1-mini"
	}
	return c
}

// NewOpenAIClient creates a client for an OpenAI-compatible
// completion API.
func NewOpenAIClient(cfg config.EndpointConfig, logger *slog.Logger) *ChatClient {
	c := newChatClient("openai", cfg, logger)
	if c.baseURL == "" {
		c.baseURL = "https://api.openai.com"
	}
	if c.model == "" {
		c.model = "gpt-4o-mini"
	}
	return c
}

func newChatClient(name string, cfg config.EndpointConfig, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		name:        name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}
}

// SetHTTPClient overrides the HTTP client. Intended for tests.
func (c *ChatClient) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Complete sends the prompt as a single user message and returns the
// first choice's content.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &CompletionError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s: read response body: %w", c.name, err)
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &CompletionError{URL: url, Body: truncate(string(raw), 256)}
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return "", &CompletionError{URL: url, Body: "no choices in response"}
	}

	c.logger.Debug("completion received",
		"provider", c.name,
		"model", c.model,
		"prompt_len", len(prompt),
		"duration", time.Since(start).Truncate(time.Millisecond).String(),
	)

	return payload.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
