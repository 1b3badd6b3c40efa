package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumachat/luma-gateway/internal/provider"
)

// stubAdapter scripts one adapter's behavior and records its calls.
type stubAdapter struct {
	name       string
	model      string
	configured bool
	err        error
	text       string
	calls      int
	lastModel  string
}

func (s *stubAdapter) Name() string         { return s.name }
func (s *stubAdapter) DefaultModel() string { return s.model }
func (s *stubAdapter) Configured() bool     { return s.configured }

func (s *stubAdapter) HealthCheck(ctx context.Context) error { return s.err }

func (s *stubAdapter) Complete(ctx context.Context, req provider.Request) (*provider.Result, error) {
	s.calls++
	s.lastModel = req.Model
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Result{Text: s.text, Provider: s.name, Model: req.Model}, nil
}

func newTestRouter(openai, anthropic, ark *stubAdapter) *Router {
	return NewRouter(openai, anthropic, ark, time.Second)
}

func TestRoutePrimarySuccess(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, text: "from openai"}
	anthropic := &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest", configured: true, text: "from anthropic"}
	ark := &stubAdapter{name: "ark", model: "doubao-pro-32k", configured: true, text: "from ark"}
	router := newTestRouter(openai, anthropic, ark)

	result := router.Route(context.Background(), "gpt-4o", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, true)

	require.NoError(t, result.Err)
	assert.Equal(t, "from openai", result.Text)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, "gpt-4o", openai.lastModel)
	assert.Equal(t, 1, openai.calls)
	assert.Zero(t, anthropic.calls)
	assert.Zero(t, ark.calls)
}

func TestRouteClaudeGoesToAnthropic(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, text: "from openai"}
	anthropic := &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest", configured: true, text: "from anthropic"}
	router := newTestRouter(openai, anthropic, &stubAdapter{name: "ark", model: "doubao-pro-32k"})

	result := router.Route(context.Background(), "claude-3-opus", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, true)

	require.NoError(t, result.Err)
	assert.Equal(t, "anthropic", result.Provider)
	assert.Zero(t, openai.calls)
}

func TestRouteFailoverToFirstConfiguredFallback(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, err: provider.ErrUnavailable}
	anthropic := &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest", configured: true, text: "rescued"}
	ark := &stubAdapter{name: "ark", model: "doubao-pro-32k", configured: true, text: "from ark"}
	router := newTestRouter(openai, anthropic, ark)

	result := router.Route(context.Background(), "gpt-4o", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, true)

	require.NoError(t, result.Err)
	assert.Equal(t, "rescued", result.Text)
	assert.Equal(t, "anthropic", result.Provider)
	// The fallback serves its own default model, not the foreign gpt name.
	assert.Equal(t, "claude-3-5-haiku-latest", anthropic.lastModel)
	assert.Equal(t, 1, openai.calls, "primary must be attempted exactly once")
	assert.Zero(t, ark.calls, "first fallback success stops the chain")
}

func TestRouteFailoverSkipsUnconfigured(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, err: provider.ErrUnavailable}
	anthropic := &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest", configured: false, text: "never"}
	ark := &stubAdapter{name: "ark", model: "doubao-pro-32k", configured: true, text: "from ark"}
	router := newTestRouter(openai, anthropic, ark)

	result := router.Route(context.Background(), "gpt-4o", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, true)

	require.NoError(t, result.Err)
	assert.Equal(t, "ark", result.Provider)
	assert.Zero(t, anthropic.calls)
}

func TestRouteFailoverDisabled(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, err: provider.ErrUnavailable}
	anthropic := &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest", configured: true, text: "never"}
	router := newTestRouter(openai, anthropic, &stubAdapter{name: "ark", model: "doubao-pro-32k"})

	result := router.Route(context.Background(), "gpt-4o", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, false)

	require.Error(t, result.Err)
	assert.NotEmpty(t, result.Text)
	assert.Zero(t, anthropic.calls)
}

func TestRouteAllProvidersFailed(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, err: provider.ErrUnavailable}
	anthropic := &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest", configured: true, err: provider.ErrEmptyCompletion}
	ark := &stubAdapter{name: "ark", model: "doubao-pro-32k", configured: false}
	router := newTestRouter(openai, anthropic, ark)

	result := router.Route(context.Background(), "gpt-4o", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, true)

	require.Error(t, result.Err)
	assert.True(t, errors.Is(result.Err, AllProvidersFailed))
	assert.NotEmpty(t, result.Text, "degraded result must still carry placeholder text")
	assert.True(t, result.Degraded())
}

func TestRouteUnrecognizedModelUsesDefault(t *testing.T) {
	openai := &stubAdapter{name: "openai", model: "gpt-4o-mini", configured: true, text: "hi"}
	router := newTestRouter(openai, &stubAdapter{name: "anthropic", model: "claude-3-5-haiku-latest"}, &stubAdapter{name: "ark", model: "doubao-pro-32k"})

	result := router.Route(context.Background(), "mystery-model-9000", []provider.Message{{Role: "user", Content: "hi"}}, provider.Params{}, true)

	require.NoError(t, result.Err)
	assert.Equal(t, "gpt-4o-mini", openai.lastModel, "unrecognized model must be substituted with the canonical default")
}
