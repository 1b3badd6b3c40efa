package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

// AnthropicConfig configures the Anthropic messages adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Version      string
	Timeout      time.Duration
}

// Anthropic talks to the Anthropic messages endpoint.
type Anthropic struct {
	apiKey       string
	baseURL      string
	defaultModel string
	version      string
	httpClient   *http.Client
	configured   bool
}

// NewAnthropic builds the adapter.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	version := cfg.Version
	if version == "" {
		version = "2023-06-01"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Anthropic{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		version:      version,
		httpClient:   &http.Client{Timeout: timeout},
		configured:   cfg.APIKey != "",
	}
}

// Name implements Adapter.
func (a *Anthropic) Name() string { return "anthropic" }

// DefaultModel implements Adapter.
func (a *Anthropic) DefaultModel() string { return a.defaultModel }

// Configured implements Adapter.
func (a *Anthropic) Configured() bool { return a.configured }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Adapter. System messages are lifted into the dedicated
// system field the messages API expects.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Result, error) {
	if !a.configured {
		return nil, fmt.Errorf("%w: anthropic credentials missing", ErrUnavailable)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid completion request: %w", err)
	}

	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	maxTokens := 1024
	if req.Params.MaxTokens != nil {
		maxTokens = *req.Params.MaxTokens
	}

	var system string
	messages := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == chat.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("invalid completion request: no user or assistant messages")
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		System:      system,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Params.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", a.version)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var apiErr anthropicErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyCompletion
	}

	result := &Result{
		Text:     text.String(),
		Provider: a.Name(),
		Model:    model,
	}
	if parsed.Model != "" {
		result.Model = parsed.Model
	}
	if parsed.Usage != nil {
		result.Usage = &Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		}
	}

	return result, nil
}

// HealthCheck implements Adapter with a one-token probe request.
func (a *Anthropic) HealthCheck(ctx context.Context) error {
	if !a.configured {
		return fmt.Errorf("%w: anthropic credentials missing", ErrUnavailable)
	}

	one := 1
	_, err := a.Complete(ctx, Request{
		Model:    a.defaultModel,
		Messages: []Message{{Role: chat.RoleUser, Content: "ping"}},
		Params:   Params{MaxTokens: &one},
	})
	if errors.Is(err, ErrEmptyCompletion) {
		// The backend answered, which is all the probe cares about.
		return nil
	}
	return err
}
