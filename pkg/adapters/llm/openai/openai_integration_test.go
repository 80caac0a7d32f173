//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/ixentbench/purple/pkg/adapters/llm"
)

func TestOpenAIChatGenerate(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	ctx := context.Background()
	m, err := Factory(ctx, map[string]any{"base_url": os.Getenv("PURPLE_BASE_URL")})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "Answer with the line: COMMAND: G@P11+90"}}
	res, err := m.Generate(ctx, msgs, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text == "" {
		t.Fatalf("empty response text")
	}
}
