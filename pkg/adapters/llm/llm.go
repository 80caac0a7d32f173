// Package llm defines the reasoning backend interface and a provider registry.
// Providers register themselves from init; callers pick one by name.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ixentbench/purple/pkg/errmodel"
)

// Message is a chat message with a role and content.
type Message struct {
	Role    string
	Content string
}

// Roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Option keys understood by Generate.
const (
	// OptModel overrides the configured model name (string).
	OptModel = "model"
	// OptResponseSchema asks for a structured JSON reply
	// (*jsonschema.Schema from github.com/google/jsonschema-go).
	OptResponseSchema = "response_schema"
	// OptTemperature sets the sampling temperature (float64).
	OptTemperature = "temperature"
)

// GenerateResult is the model's text output and token usage if available.
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// Usage returns TotalTokens, or the sum of prompt and output tokens when the
// provider did not report a total.
func (r GenerateResult) Usage() int {
	if r.TotalTokens > 0 {
		return r.TotalTokens
	}
	return r.PromptTokens + r.OutputTokens
}

// LLM is a minimal text generation interface.
type LLM interface {
	// Name returns the provider name (e.g. "gemini").
	Name() string
	// Generate creates a completion from messages. Failures are returned as
	// *errmodel.Error with a backend_* code.
	Generate(ctx context.Context, messages []Message, opts map[string]any) (GenerateResult, error)
}

// Factory constructs an LLM from provider-specific config.
// Common keys: api_key, model, base_url.
type Factory func(ctx context.Context, cfg map[string]any) (LLM, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an LLM factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("llm: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("llm: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("llm: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Range iterates all registered factories.
func Range(fn func(name string, f Factory)) {
	regMu.RLock()
	defer regMu.RUnlock()
	for n, f := range factories {
		fn(n, f)
	}
}

// Names lists registered providers in sorted order.
func Names() []string {
	var out []string
	Range(func(name string, _ Factory) { out = append(out, name) })
	sort.Strings(out)
	return out
}

// New resolves provider and builds it.
func New(ctx context.Context, provider string, cfg map[string]any) (LLM, error) {
	f, ok := Resolve(provider)
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (registered: %v)", provider, Names())
	}
	return f(ctx, cfg)
}

// Classify maps a provider failure to the backend error taxonomy. status is
// the HTTP status code when one is known, otherwise 0.
func Classify(provider string, status int, err error) *errmodel.Error {
	if err == nil {
		return nil
	}
	var ce *errmodel.Error
	if errors.As(err, &ce) && errmodel.IsTransport(ce) {
		return ce
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		status == http.StatusRequestTimeout,
		status == http.StatusGatewayTimeout:
		return errmodel.BackendTimeout(provider, "backend call timed out", err)
	case status == http.StatusTooManyRequests:
		return errmodel.BackendRateLimited(provider, "backend quota exhausted", err)
	case errors.Is(err, context.Canceled):
		return errmodel.BackendUnavailable(provider, "backend call canceled", err)
	case status > 0:
		return errmodel.BackendUnavailable(provider, fmt.Sprintf("backend returned HTTP %d", status), err)
	default:
		return errmodel.BackendUnavailable(provider, "backend unreachable", err)
	}
}
