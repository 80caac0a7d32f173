// Package fake is a scripted backend for tests and offline runs.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/ixentbench/purple/pkg/adapters/llm"
)

const providerName = "fake"

// Step is one scripted response. Err, when set, is returned instead of Text.
type Step struct {
	Text   string
	Err    error
	Tokens int
	Delay  time.Duration
}

// Call records one Generate invocation.
type Call struct {
	Messages []llm.Message
	Opts     map[string]any
}

// LLM replays Steps in order and repeats the last one once the script runs
// out. It is safe for concurrent use.
type LLM struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// New returns a fake backend with the given script.
func New(steps ...Step) *LLM { return &LLM{steps: steps} }

// Reply is a shorthand for a step that returns text and a token count.
func Reply(text string, tokens int) Step { return Step{Text: text, Tokens: tokens} }

func (f *LLM) Name() string { return providerName }

func (f *LLM) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, Call{Messages: append([]llm.Message(nil), messages...), Opts: opts})
	var step Step
	if n := len(f.steps); n > 0 {
		step = f.steps[min(idx, n-1)]
	}
	f.mu.Unlock()

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return llm.GenerateResult{}, llm.Classify(providerName, 0, ctx.Err())
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return llm.GenerateResult{}, llm.Classify(providerName, 0, err)
	}
	if step.Err != nil {
		return llm.GenerateResult{}, llm.Classify(providerName, 0, step.Err)
	}
	model, _ := opts[llm.OptModel].(string)
	return llm.GenerateResult{Text: step.Text, TotalTokens: step.Tokens, Model: model}, nil
}

// Calls returns a copy of the recorded invocations.
func (f *LLM) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Prompts returns the last message content of each call.
func (f *LLM) Prompts() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		if n := len(c.Messages); n > 0 {
			out = append(out, c.Messages[n-1].Content)
		}
	}
	return out
}

// Factory builds a fake from cfg["replies"] ([]string) so the provider can be
// selected by name for offline runs.
func Factory(_ context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	var steps []Step
	if rs, ok := cfg["replies"].([]string); ok {
		for _, r := range rs {
			steps = append(steps, Reply(r, 0))
		}
	}
	if len(steps) == 0 {
		steps = []Step{Reply(`{"command":"PASS","reasoning":"offline backend has no script"}`, 0)}
	}
	return New(steps...), nil
}

func init() {
	_ = llm.Register(providerName, Factory)
}
