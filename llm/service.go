// Package llm is the chat-completion call layer. Remote providers and the
// on-device model runtime all speak the OpenAI-compatible protocol, so one
// client covers both sides of the local/cloud split.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats carries token usage and timing for a single call, used for
// credit deduction with actual (not estimated) token counts.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	TotalDurationMs  int64 `json:"total_duration_ms"`
}

// Service is the chat-completion service interface.
type Service interface {
	// Chat performs a synchronous chat call. Returns content, statistics,
	// and error.
	Chat(ctx context.Context, messages []Message) (string, *CallStats, error)

	// Warmup sends a lightweight ping to establish the connection. Failure
	// is logged, never fatal.
	Warmup(ctx context.Context)
}

// Config holds per-endpoint call configuration.
type Config struct {
	Provider    string // openai, deepseek, zai, siliconflow, openrouter, anthropic, ollama
	Model       string
	APIKey      string
	BaseURL     string // optional, provider default applies when empty
	MaxTokens   int    // default: 2048
	Temperature float32
	Timeout     int // request timeout in seconds (default: 60)
}

// Factory builds a Service from a Config. Injected where tests need to
// substitute a fake endpoint.
type Factory func(cfg *Config) (Service, error)

type service struct {
	client    *openai.Client
	model     string
	provider  string
	maxTokens int
	temp      float32
	timeout   int
}

// Provider default base URLs, all OpenAI-compatible.
var providerBaseURLs = map[string]string{
	"deepseek":    "https://api.deepseek.com",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"anthropic":   "https://api.anthropic.com/v1",
	"openai":      "https://api.openai.com/v1",
	"ollama":      "http://localhost:11434/v1",
}

// NewService creates a chat-completion Service.
func NewService(cfg *Config) (Service, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if def, ok := providerBaseURLs[cfg.Provider]; ok {
			baseURL = def
		} else {
			slog.Info("llm: unknown provider, using generic OpenAI-compatible client", "provider", cfg.Provider)
		}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60
	}

	return &service{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		provider:  cfg.Provider,
		maxTokens: maxTokens,
		temp:      cfg.Temperature,
		timeout:   timeout,
	}, nil
}

func (s *service) Chat(ctx context.Context, messages []Message) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	slog.Debug("llm: chat request",
		"provider", s.provider,
		"model", s.model,
		"messages_count", len(messages),
		"max_tokens", s.maxTokens,
	)

	startTime := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temp,
		Messages:    convertMessages(messages),
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("llm: chat request failed", "provider", s.provider, "model", s.model, "error", err)
		return "", nil, fmt.Errorf("llm chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("llm: empty response", "provider", s.provider, "model", s.model)
		return "", nil, fmt.Errorf("empty response from llm")
	}

	totalDuration := time.Since(startTime)
	stats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}

	slog.Debug("llm: chat response received",
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
	)
	return resp.Choices[0].Message.Content, stats, nil
}

func (s *service) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	}
	_, err := s.client.CreateChatCompletion(warmupCtx, req)
	if err != nil {
		slog.Warn("llm: warmup ping failed (service will still work, first request may be slower)",
			"provider", s.provider,
			"model", s.model,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return
	}
	slog.Info("llm: connection warmed up",
		"provider", s.provider,
		"model", s.model,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt builds a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
