// Package provider contains the adapters over external AI completion
// backends. Every adapter normalizes its backend's request/response shapes
// into the shared Request/Result types and classifies failures so the
// completion router can decide whether failover makes sense.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks transport or auth level failures. The router
	// retries these against fallback adapters.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrEmptyCompletion marks a well-formed response that carried no usable
	// output. Treated like unavailability for failover purposes.
	ErrEmptyCompletion = errors.New("provider returned empty completion")
)

// Generation parameter bounds shared by every adapter.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 4000
)

// Message is one turn of the prompt history sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params holds optional generation parameters. Nil fields use the backend's
// own defaults.
type Params struct {
	Temperature *float64
	MaxTokens   *int
}

// Request is a normalized completion request.
type Request struct {
	Model    string
	Messages []Message
	Params   Params
}

// Validate checks the request against the shared input contract.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	if t := r.Params.Temperature; t != nil && (*t < MinTemperature || *t > MaxTemperature) {
		return fmt.Errorf("temperature %v out of range [%v, %v]", *t, MinTemperature, MaxTemperature)
	}
	if m := r.Params.MaxTokens; m != nil && (*m < MinMaxTokens || *m > MaxMaxTokens) {
		return fmt.Errorf("maxTokens %d out of range [%d, %d]", *m, MinMaxTokens, MaxMaxTokens)
	}
	return nil
}

// Usage reports token consumption when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is a normalized completion response.
type Result struct {
	Text     string
	Provider string
	Model    string
	Usage    *Usage
}

// Adapter is the uniform interface over one completion backend. Adapters are
// stateless beyond their configuration and never touch gateway state.
type Adapter interface {
	// Name identifies the backend in results and logs.
	Name() string

	// DefaultModel is the model used when the requested one does not belong
	// to this backend, e.g. when serving as a failover target.
	DefaultModel() string

	// Configured reports whether required credentials were present at
	// startup. Unconfigured adapters are skipped during failover.
	Configured() bool

	// HealthCheck performs a minimal probe against the backend.
	HealthCheck(ctx context.Context) error

	// Complete performs one completion call. Failures are classified as
	// ErrUnavailable or ErrEmptyCompletion via errors.Is.
	Complete(ctx context.Context, req Request) (*Result, error)
}
