package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ixentbench/purple/pkg/adapters/llm/fake"
	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/board/boardtest"
	"github.com/ixentbench/purple/pkg/config"
	"github.com/ixentbench/purple/pkg/mcpserver"
	"github.com/ixentbench/purple/pkg/prompt"
	"github.com/ixentbench/purple/pkg/runtime"
	"github.com/ixentbench/purple/pkg/store"
	"github.com/ixentbench/purple/pkg/store/sqlstore"
)

func newTestServer(t *testing.T, backend *fake.LLM, decisions store.DecisionStore) *httptest.Server {
	t.Helper()
	b, err := prompt.NewBuilder(nil)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []runtime.RunnerOption{runtime.WithAgentID("Purple-Agent-test"), runtime.WithLogger(logger)}
	if decisions != nil {
		opts = append(opts, runtime.WithRecorder(decisions))
	}
	runner := runtime.NewRunner(backend, b, nil, opts...)
	srv := httptest.NewServer(buildMux(deps{
		runner:         runner,
		decisions:      decisions,
		mcp:            mcpserver.New(runner, "test").Handler(),
		requestTimeout: 2 * time.Second,
		logger:         logger,
		model:          "fake-model",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postDecide(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Post(url+"/decide", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, b
}

func TestDecide_AcceptedReply(t *testing.T) {
	backend := fake.New(fake.Reply(`{"command":"G@P21+90","reasoning":"Turns the left column."}`, 12))
	srv := newTestServer(t, backend, nil)

	res, body := postDecide(t, srv.URL, boardtest.RotationTurn)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", res.StatusCode, body)
	}
	if err := agent.ValidateJSON(agent.ReplySchema, body); err != nil {
		t.Fatalf("reply shape: %v\n%s", err, body)
	}
	var reply agent.Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.AgentID != "Purple-Agent-test" || reply.Command != "G@P21+90" || reply.Meta.TokenUsage.Total != 12 {
		t.Fatalf("reply=%+v", reply)
	}
}

func TestDecide_FallbackIsStill200(t *testing.T) {
	backend := fake.New(fake.Step{Err: fmt.Errorf("dial tcp: connection refused")})
	srv := newTestServer(t, backend, nil)

	res, body := postDecide(t, srv.URL, boardtest.RotationTurn)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", res.StatusCode)
	}
	var reply agent.Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Command != "PASS" || !strings.Contains(reply.Reasoning, "backend_unavailable") {
		t.Fatalf("reply=%+v", reply)
	}
}

func TestDecide_BadPayloads(t *testing.T) {
	srv := newTestServer(t, fake.New(), nil)
	for _, body := range []string{`not json`, `{"meta":{"turn":1}}`, `{"data":{"inventory":{},"board_encoding":{"P11":"banana"}}}`} {
		res, b := postDecide(t, srv.URL, body)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", body, res.StatusCode)
		}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(b, &env); err != nil || env.Error.Code != "invalid_observation" {
			t.Fatalf("%s: envelope=%s", body, b)
		}
	}

	big := bytes.Repeat([]byte(" "), maxBodyBytes+1)
	rec := httptest.NewRecorder()
	srv.Config.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/decide", bytes.NewReader(big)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "payload_too_large") {
		t.Fatalf("oversized body status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRootAliasAndMethods(t *testing.T) {
	backend := fake.New(fake.Reply(`{"command":"G@P21+90","reasoning":"x"}`, 1))
	srv := newTestServer(t, backend, nil)

	res, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(boardtest.RotationTurn))
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST / status=%d", res.StatusCode)
	}
	res, err = http.Get(srv.URL + "/decide")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /decide status=%d", res.StatusCode)
	}
}

func TestHealthAndCard(t *testing.T) {
	srv := newTestServer(t, fake.New(), nil)
	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK || string(b) != "ok" {
		t.Fatalf("healthz=%d %q", res.StatusCode, b)
	}

	res, err = http.Get(srv.URL + "/.well-known/agent.json")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var card agent.Card
	if err := json.NewDecoder(res.Body).Decode(&card); err != nil {
		t.Fatal(err)
	}
	if card.AgentID != "Purple-Agent-test" || card.Model != "fake-model" || len(card.Endpoints) != 2 {
		t.Fatalf("card=%+v", card)
	}
}

func TestDecisionLog(t *testing.T) {
	st, err := sqlstore.Open(context.Background(), "sqlite:file:cmdtest?mode=memory&cache=shared&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	backend := fake.New(fake.Reply(`{"command":"G@P21+90","reasoning":"x"}`, 4))
	srv := newTestServer(t, backend, st)

	for i := 0; i < 3; i++ {
		if res, _ := postDecide(t, srv.URL, boardtest.RotationTurn); res.StatusCode != http.StatusOK {
			t.Fatalf("status=%d", res.StatusCode)
		}
	}
	res, err := http.Get(srv.URL + "/api/decisions?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var list struct {
		Decisions []store.DecisionRecord `json:"decisions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Decisions) != 2 || list.Decisions[0].Command != "G@P21+90" {
		t.Fatalf("decisions=%+v", list.Decisions)
	}

	one, err := http.Get(srv.URL + "/api/decisions/" + list.Decisions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	_ = one.Body.Close()
	if one.StatusCode != http.StatusOK {
		t.Fatalf("get status=%d", one.StatusCode)
	}
	missing, err := http.Get(srv.URL + "/api/decisions/does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	_ = missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status=%d", missing.StatusCode)
	}
	bad, err := http.Get(srv.URL + "/api/decisions?limit=many")
	if err != nil {
		t.Fatal(err)
	}
	_ = bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", bad.StatusCode)
	}
}

func TestDecisionLog_Disabled(t *testing.T) {
	srv := newTestServer(t, fake.New(), nil)
	res, err := http.Get(srv.URL + "/api/decisions")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", res.StatusCode)
	}
}

func TestServe_MissingCredentialIsFatal(t *testing.T) {
	cfg := config.Default()
	cfg.AgentID = "x"
	err := serve(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "missing API key") {
		t.Fatalf("err=%v", err)
	}
}

func TestWire_FakeProviderWithSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = "fake"
	cfg.AgentID = "Purple-Agent-offline"
	cfg.DatabaseURL = "sqlite:file:wiretest?mode=memory&cache=shared"
	d, cleanup, err := wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if d.decisions == nil || d.mcp == nil || d.runner.AgentID() != "Purple-Agent-offline" {
		t.Fatalf("deps=%+v", d)
	}
	reply := d.runner.Decide(context.Background(), boardtest.Decode(t, boardtest.RotationTurn))
	// The unscripted fake answers PASS, which the default rules refuse.
	if !reply.Fallback() || reply.Meta.DecisionID == "" {
		t.Fatalf("reply=%+v", reply)
	}
}

func TestWire_PromptFileLogsDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.md")
	if err := os.WriteFile(path, []byte("Reply with a JSON object whose command field holds the move.\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Provider = "fake"
	cfg.PromptFile = path
	var logs bytes.Buffer
	_, cleanup, err := wire(context.Background(), cfg, slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	out := logs.String()
	for _, want := range []string{"system prompt loaded", "version=2", "versions=2", "system@v1", "system@v2", "+Reply with a JSON object"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "purple dev") {
		t.Fatalf("out=%q", out.String())
	}
}
