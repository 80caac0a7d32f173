package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ixentbench/purple/pkg/adapters/llm"
	"github.com/ixentbench/purple/pkg/errmodel"
)

func newTestClient(t *testing.T, h http.HandlerFunc) llm.LLM {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m, err := Factory(context.Background(), map[string]any{"api_key": "test", "base_url": srv.URL + "/v1/", "model": "local-model"})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGenerate_CompatibleServer(t *testing.T) {
	var req map[string]any
	m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"local-model",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"COMMAND: G@P21+90\nREASONING: ok"}}],
"usage":{"prompt_tokens":40,"completion_tokens":9,"total_tokens":49}}`)
	})
	schema := &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{"command": {Type: "string"}}}
	res, err := m.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "rules"},
		{Role: llm.RoleUser, Content: "board"},
	}, map[string]any{llm.OptResponseSchema: schema})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "COMMAND: G@P21+90\nREASONING: ok" || res.Usage() != 49 {
		t.Fatalf("res=%+v", res)
	}
	if req["model"] != "local-model" {
		t.Fatalf("model=%v", req["model"])
	}
	if msgs, _ := req["messages"].([]any); len(msgs) != 2 {
		t.Fatalf("messages=%v", req["messages"])
	}
	rf, _ := req["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Fatalf("response_format=%v", req["response_format"])
	}
}

func TestGenerate_ClassifiesStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusTooManyRequests:     errmodel.CodeBackendRateLimited,
		http.StatusUnauthorized:        errmodel.CodeBackendUnavailable,
		http.StatusGatewayTimeout:      errmodel.CodeBackendTimeout,
		http.StatusInternalServerError: errmodel.CodeBackendUnavailable,
	}
	for status, code := range cases {
		m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
		})
		_, err := m.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
		if got := errmodel.From(err).Code; got != code {
			t.Fatalf("status %d: code=%s want %s (%v)", status, got, code, err)
		}
	}
}

func TestFactory_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Factory(context.Background(), nil); err == nil {
		t.Fatal("missing key accepted")
	}
}
