// Package completion routes completion requests across the configured
// provider adapters with deterministic failover. Route never returns an
// error: total failure degrades to an explanatory placeholder result so the
// caller always has something to relay.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lumachat/luma-gateway/internal/provider"
)

// Backend identifies one provider adapter in the dispatch table.
type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendArk       Backend = "ark"
)

// route maps a model-name predicate to a primary backend and its fixed
// fallback order. The table is static so failover behavior is reproducible.
type route struct {
	match     func(model string) bool
	primary   Backend
	fallbacks []Backend
}

var routes = []route{
	{
		match:     func(m string) bool { return strings.Contains(m, "gpt") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") },
		primary:   BackendOpenAI,
		fallbacks: []Backend{BackendAnthropic, BackendArk},
	},
	{
		match:     func(m string) bool { return strings.Contains(m, "claude") },
		primary:   BackendAnthropic,
		fallbacks: []Backend{BackendOpenAI, BackendArk},
	},
	{
		match:     func(m string) bool { return strings.Contains(m, "doubao") || strings.Contains(m, "ark") },
		primary:   BackendArk,
		fallbacks: []Backend{BackendOpenAI, BackendAnthropic},
	},
}

// defaultRoute handles unrecognized model names: OpenAI with its canonical
// default model substituted.
var defaultRoute = route{
	primary:   BackendOpenAI,
	fallbacks: []Backend{BackendAnthropic, BackendArk},
}

// User-facing texts returned when generation fails. Never empty: silence is a
// worse failure mode than a degraded answer.
const (
	failoverDisabledText = "Sorry, the AI service is temporarily unavailable. Please try again in a moment."
	allFailedText        = "Sorry, all AI services are currently unavailable. Please try again later."
)

// AllProvidersFailed is the terminal routing failure. It is carried inside a
// Result, never returned as an error from Route.
var AllProvidersFailed = errors.New("all completion providers failed")

// Result is the routing outcome. Exactly one of a real completion or Err is
// authoritative; when Err is set, Text still holds a usable placeholder.
type Result struct {
	Text     string
	Provider string
	Model    string
	Usage    *provider.Usage
	Err      error
}

// Degraded reports whether Text is placeholder content rather than a real
// completion.
func (r Result) Degraded() bool { return r.Err != nil }

// Router selects adapters per requested model and fails over in table order.
type Router struct {
	adapters       map[Backend]provider.Adapter
	attemptTimeout time.Duration
}

// NewRouter wires the available adapters. Nil adapters are tolerated and
// treated as unconfigured.
func NewRouter(openai, anthropic, ark provider.Adapter, attemptTimeout time.Duration) *Router {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}

	adapters := make(map[Backend]provider.Adapter, 3)
	if openai != nil {
		adapters[BackendOpenAI] = openai
	}
	if anthropic != nil {
		adapters[BackendAnthropic] = anthropic
	}
	if ark != nil {
		adapters[BackendArk] = ark
	}

	return &Router{adapters: adapters, attemptTimeout: attemptTimeout}
}

// classify picks the dispatch table row for a requested model. The second
// return reports whether the model was recognized; unrecognized models get
// the primary backend's default model substituted.
func classify(model string) (route, bool) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	for _, r := range routes {
		if r.match(normalized) {
			return r, true
		}
	}
	return defaultRoute, false
}

// Route performs primary selection and ordered failover. It always returns a
// Result; adapter errors surface only through the Err field.
func (r *Router) Route(ctx context.Context, requestedModel string, messages []provider.Message, params provider.Params, enableFailover bool) Result {
	selected, recognized := classify(requestedModel)

	result, primaryErr := r.attempt(ctx, selected.primary, requestedModel, recognized, messages, params)
	if primaryErr == nil {
		return *result
	}
	log.Printf("[completion] primary %s failed: %v", selected.primary, primaryErr)

	if !enableFailover {
		return Result{
			Text:     failoverDisabledText,
			Provider: string(selected.primary),
			Model:    requestedModel,
			Err:      primaryErr,
		}
	}

	lastErr := primaryErr
	for _, backend := range selected.fallbacks {
		adapter, ok := r.adapters[backend]
		if !ok || !adapter.Configured() {
			continue
		}

		result, err := r.attempt(ctx, backend, requestedModel, recognized, messages, params)
		if err == nil {
			log.Printf("[completion] failover to %s succeeded", backend)
			return *result
		}
		log.Printf("[completion] fallback %s failed: %v", backend, err)
		lastErr = err
	}

	return Result{
		Text:     allFailedText,
		Provider: string(selected.primary),
		Model:    requestedModel,
		Err:      fmt.Errorf("%w: %v", AllProvidersFailed, lastErr),
	}
}

// attempt calls one adapter with a bounded per-attempt timeout. A timed-out
// attempt reads as a transport failure and triggers failover upstream.
func (r *Router) attempt(ctx context.Context, backend Backend, requestedModel string, recognized bool, messages []provider.Message, params provider.Params) (*Result, error) {
	adapter, ok := r.adapters[backend]
	if !ok {
		return nil, fmt.Errorf("%w: no %s adapter wired", provider.ErrUnavailable, backend)
	}
	if !adapter.Configured() {
		return nil, fmt.Errorf("%w: %s not configured", provider.ErrUnavailable, backend)
	}

	// A fallback adapter cannot serve a foreign model name; substitute its
	// own default. Same for unrecognized models on the primary.
	model := requestedModel
	if !recognized || !ownsModel(backend, requestedModel) {
		model = adapter.DefaultModel()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	completed, err := adapter.Complete(attemptCtx, provider.Request{
		Model:    model,
		Messages: messages,
		Params:   params,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:     completed.Text,
		Provider: completed.Provider,
		Model:    completed.Model,
		Usage:    completed.Usage,
	}, nil
}

// ownsModel reports whether the requested model belongs to the backend's own
// namespace.
func ownsModel(backend Backend, model string) bool {
	selected, recognized := classify(model)
	return recognized && selected.primary == backend
}
