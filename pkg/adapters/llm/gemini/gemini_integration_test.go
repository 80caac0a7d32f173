//go:build integration

package gemini

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ixentbench/purple/pkg/adapters/llm"
)

func TestGeminiGenerateLive(t *testing.T) {
	if os.Getenv("GOOGLE_API_KEY") == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	m, err := Factory(ctx, map[string]any{"model": os.Getenv("PURPLE_MODEL")})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: `Reply with {"command":"G@P11+90","reasoning":"test"}`}}
	res, err := m.Generate(ctx, msgs, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text == "" {
		t.Fatalf("empty response text")
	}
	if res.Usage() == 0 {
		t.Fatalf("no usage reported")
	}
}
