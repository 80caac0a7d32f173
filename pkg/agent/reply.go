// Package agent defines the reply envelope, the agent card and JSON schema helpers.
package agent

// Outcome values reported in ReplyMeta.Outcome.
const (
	OutcomeAccepted = "accepted"
	OutcomeFallback = "fallback"
)

// TokenUsage reports model token consumption.
type TokenUsage struct {
	// Total is the cumulative count for the lifetime of the process.
	Total int64 `json:"total"`
	// Request is the count spent on this reply, summed over all attempts.
	Request int64 `json:"request"`
}

// ReplyMeta carries observability data alongside a move.
type ReplyMeta struct {
	TokenUsage TokenUsage `json:"token_usage"`
	Attempts   int        `json:"attempts,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	Model      string     `json:"model,omitempty"`
	DecisionID string     `json:"decision_id,omitempty"`
}

// Reply is the envelope returned for every observation. Command is always
// either a validated command or the fallback command.
type Reply struct {
	AgentID   string    `json:"agent_id"`
	Command   string    `json:"command"`
	Reasoning string    `json:"reasoning"`
	Meta      ReplyMeta `json:"meta"`
}

// Fallback reports whether the reply carries the fallback command.
func (r Reply) Fallback() bool { return r.Meta.Outcome == OutcomeFallback }

// ReplySchema describes the wire shape of Reply.
var ReplySchema = []byte(`{
  "type": "object",
  "required": ["agent_id", "command", "reasoning", "meta"],
  "properties": {
    "agent_id": {"type": "string", "minLength": 1},
    "command": {"type": "string", "minLength": 1},
    "reasoning": {"type": "string", "minLength": 1},
    "meta": {
      "type": "object",
      "required": ["token_usage"],
      "properties": {
        "token_usage": {
          "type": "object",
          "required": ["total"],
          "properties": {
            "total": {"type": "integer", "minimum": 0},
            "request": {"type": "integer", "minimum": 0}
          }
        }
      }
    }
  }
}`)

// Card advertises the agent to peers at /.well-known/agent.json.
type Card struct {
	AgentID     string   `json:"agent_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Model       string   `json:"model,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Endpoints   []string `json:"endpoints,omitempty"`
}
