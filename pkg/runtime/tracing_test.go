package runtime

import (
	"context"
	"encoding/json"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ixentbench/purple/pkg/adapters/llm/fake"
	"github.com/ixentbench/purple/pkg/board/boardtest"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestTracing_DecideAndAttemptSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	backend := fake.New(fake.Reply("no move", 1), fake.Reply(`{"command":"G@P21+90","reasoning":"ok"}`, 1))
	r := newRunner(t, backend)
	r.Decide(context.Background(), boardtest.Decode(t, boardtest.RotationTurn))

	counts := map[string]int{}
	for _, s := range exp.GetSpans() {
		counts[s.Name]++
	}
	if counts["Runner.Decide"] != 1 || counts["Runner.attempt"] != 2 {
		t.Fatalf("spans=%v", counts)
	}
}
