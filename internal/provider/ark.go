package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

// Ark wraps an eino chat model backed by the Volcengine Ark platform. Unlike
// the HTTP adapters it delegates transport and auth to the eino component, so
// classification here only maps eino errors onto the shared taxonomy.
type Ark struct {
	chatModel    model.ChatModel
	defaultModel string
}

// NewArk builds the adapter around an already constructed chat model. A nil
// chatModel yields an unconfigured adapter that is skipped during failover.
func NewArk(chatModel model.ChatModel, defaultModel string) *Ark {
	if defaultModel == "" {
		defaultModel = "doubao-pro-32k"
	}
	return &Ark{chatModel: chatModel, defaultModel: defaultModel}
}

// Name implements Adapter.
func (a *Ark) Name() string { return "ark" }

// DefaultModel implements Adapter.
func (a *Ark) DefaultModel() string { return a.defaultModel }

// Configured implements Adapter.
func (a *Ark) Configured() bool { return a.chatModel != nil }

// Complete implements Adapter.
func (a *Ark) Complete(ctx context.Context, req Request) (*Result, error) {
	if a.chatModel == nil {
		return nil, fmt.Errorf("%w: ark credentials missing", ErrUnavailable)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid completion request: %w", err)
	}

	history := make([]*schema.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		default:
			history = append(history, schema.UserMessage(msg.Content))
		}
	}

	var opts []model.Option
	if req.Params.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Params.Temperature)))
	}
	if req.Params.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.Params.MaxTokens))
	}

	response, err := a.chatModel.Generate(ctx, history, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if response == nil || strings.TrimSpace(response.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	result := &Result{
		Text:     response.Content,
		Provider: a.Name(),
		Model:    a.defaultModel,
	}
	if meta := response.ResponseMeta; meta != nil && meta.Usage != nil {
		result.Usage = &Usage{
			PromptTokens:     meta.Usage.PromptTokens,
			CompletionTokens: meta.Usage.CompletionTokens,
			TotalTokens:      meta.Usage.TotalTokens,
		}
	}

	return result, nil
}

// HealthCheck implements Adapter with a one-token generation probe.
func (a *Ark) HealthCheck(ctx context.Context) error {
	if a.chatModel == nil {
		return fmt.Errorf("%w: ark credentials missing", ErrUnavailable)
	}

	_, err := a.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
