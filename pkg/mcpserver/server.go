// Package mcpserver exposes the decide cycle as an MCP tool so that MCP
// clients get the same reply as the HTTP endpoint.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/board"
)

// ToolName is the name of the single exported tool.
const ToolName = "decide_move"

// Decider produces a reply for one observation. *runtime.Runner implements it.
type Decider interface {
	Decide(ctx context.Context, obs *board.Observation) agent.Reply
}

// DecideInput is the tool argument.
type DecideInput struct {
	Observation map[string]any `json:"observation" jsonschema:"board observation as sent to the HTTP endpoint"`
}

type Server struct {
	srv     *mcp.Server
	decider Decider
}

// New creates the MCP server and registers the decide_move tool.
func New(decider Decider, version string) *Server {
	s := &Server{
		srv:     mcp.NewServer(&mcp.Implementation{Name: "purple", Version: version}, nil),
		decider: decider,
	}
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        ToolName,
		Description: "Choose the next move for a gear puzzle observation. Returns agent_id, command, reasoning and token usage.",
	}, s.decide)
	return s
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.srv }, nil)
}

func (s *Server) decide(ctx context.Context, _ *mcp.CallToolRequest, in DecideInput) (*mcp.CallToolResult, agent.Reply, error) {
	raw, err := json.Marshal(in.Observation)
	if err != nil {
		return nil, agent.Reply{}, err
	}
	obs, err := board.Parse(raw)
	if err != nil {
		return nil, agent.Reply{}, err
	}
	return nil, s.decider.Decide(ctx, obs), nil
}
