package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/board"
	"github.com/ixentbench/purple/pkg/board/boardtest"
)

type stubDecider struct{ turns []int }

func (s *stubDecider) Decide(_ context.Context, obs *board.Observation) agent.Reply {
	s.turns = append(s.turns, obs.Meta.Turn)
	return agent.Reply{
		AgentID:   "Purple-Agent-test",
		Command:   "G@P21+90",
		Reasoning: "free M2",
		Meta:      agent.ReplyMeta{TokenUsage: agent.TokenUsage{Total: 7, Request: 7}, Outcome: agent.OutcomeAccepted},
	}
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := s.srv.Connect(ctx, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ss.Close() })
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestDecideMove_ReturnsReply(t *testing.T) {
	dec := &stubDecider{}
	cs := connect(t, New(dec, "test"))

	var obs map[string]any
	if err := json.Unmarshal([]byte(boardtest.RotationTurn), &obs); err != nil {
		t.Fatal(err)
	}
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"observation": obs},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	if err := agent.ValidateJSON(agent.ReplySchema, raw); err != nil {
		t.Fatalf("reply shape: %v\n%s", err, raw)
	}
	var reply agent.Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Command != "G@P21+90" || reply.Meta.TokenUsage.Total != 7 || len(dec.turns) != 1 || dec.turns[0] != 9 {
		t.Fatalf("reply=%+v turns=%v", reply, dec.turns)
	}
}

func TestDecideMove_InvalidObservation(t *testing.T) {
	dec := &stubDecider{}
	cs := connect(t, New(dec, "test"))
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolName,
		Arguments: map[string]any{"observation": map[string]any{"meta": map[string]any{"turn": 1}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || len(dec.turns) != 0 {
		t.Fatalf("expected tool error, got %+v", res)
	}
}

func TestListTools(t *testing.T) {
	cs := connect(t, New(&stubDecider{}, "test"))
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != ToolName || res.Tools[0].InputSchema == nil {
		t.Fatalf("tools=%+v", res.Tools)
	}
}
