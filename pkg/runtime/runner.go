// Package runtime drives one decide cycle: prompt, call the backend, validate,
// re-prompt on invalid output and fall back to a safe command when the
// backend cannot produce a valid move.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ixentbench/purple/pkg/adapters/llm"
	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/board"
	"github.com/ixentbench/purple/pkg/command"
	"github.com/ixentbench/purple/pkg/errmodel"
	"github.com/ixentbench/purple/pkg/prompt"
	"github.com/ixentbench/purple/pkg/store"
	"github.com/ixentbench/purple/pkg/usage"
)

// DefaultMaxRetries is the number of re-prompts after the first attempt.
const DefaultMaxRetries = 2

const recordTimeout = 2 * time.Second

// modelReply is the structured answer requested from the backend.
type modelReply struct {
	Command   string `json:"command" jsonschema:"one move in the puzzle command syntax"`
	Reasoning string `json:"reasoning" jsonschema:"one or two sentences explaining the move"`
}

// DefaultResponseSchema is the JSON schema of modelReply.
func DefaultResponseSchema() *jsonschema.Schema {
	s, err := jsonschema.For[modelReply](nil)
	if err != nil {
		panic(err)
	}
	return s
}

// Runner is safe for concurrent use; each Decide call runs its own sequential loop.
type Runner struct {
	backend   llm.LLM
	builder   *prompt.Builder
	validator *command.Validator
	meter     *usage.Meter
	estimate  usage.Estimator
	recorder  store.DecisionStore
	logger    *slog.Logger

	agentID        string
	model          string
	maxRetries     int
	attemptTimeout time.Duration
	schema         *jsonschema.Schema
	keepRaw        bool
}

// RunnerOption configures the Runner at construction time.
type RunnerOption func(*Runner)

// WithMaxRetries sets the number of re-prompts after the first attempt. Negative values are ignored.
func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithAttemptTimeout bounds each backend call. The request deadline still applies.
func WithAttemptTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.attemptTimeout = d }
}

// WithAgentID sets the agent_id reported in replies.
func WithAgentID(id string) RunnerOption { return func(r *Runner) { r.agentID = id } }

// WithModel overrides the backend model per call.
func WithModel(model string) RunnerOption { return func(r *Runner) { r.model = model } }

// WithMeter shares a token meter, e.g. between the HTTP and MCP surfaces.
func WithMeter(m *usage.Meter) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.meter = m
		}
	}
}

// WithTokenEstimator is used when the backend reports no usage.
func WithTokenEstimator(e usage.Estimator) RunnerOption { return func(r *Runner) { r.estimate = e } }

// WithRecorder writes every decision to a decision log.
func WithRecorder(s store.DecisionStore) RunnerOption { return func(r *Runner) { r.recorder = s } }

// WithRawObservations stores the full observation with each recorded decision.
func WithRawObservations(keep bool) RunnerOption { return func(r *Runner) { r.keepRaw = keep } }

// WithResponseSchema sets the structured reply schema; nil sends none.
func WithResponseSchema(s *jsonschema.Schema) RunnerOption { return func(r *Runner) { r.schema = s } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner constructs a Runner. A nil validator uses the default rules.
func NewRunner(backend llm.LLM, builder *prompt.Builder, validator *command.Validator, opts ...RunnerOption) *Runner {
	if validator == nil {
		validator = command.NewValidator(command.DefaultRules(), nil)
	}
	rn := &Runner{
		backend:    backend,
		builder:    builder,
		validator:  validator,
		meter:      &usage.Meter{},
		estimate:   usage.RuneEstimator,
		logger:     slog.Default(),
		agentID:    "Purple-Agent",
		maxRetries: DefaultMaxRetries,
		schema:     DefaultResponseSchema(),
	}
	for _, opt := range opts {
		opt(rn)
	}
	return rn
}

// Meter returns the process-lifetime token meter.
func (r *Runner) Meter() *usage.Meter { return r.meter }

// AgentID returns the identifier stamped on replies.
func (r *Runner) AgentID() string { return r.agentID }

// MaxAttempts is 1 + the configured retries.
func (r *Runner) MaxAttempts() int { return r.maxRetries + 1 }

// Decide runs the cycle for one observation and always returns a well-formed
// reply: either a validated command or the fallback command with a rationale
// naming the reason.
func (r *Runner) Decide(ctx context.Context, obs *board.Observation) agent.Reply {
	tr := otel.Tracer("runtime/runner")
	ctx, span := tr.Start(ctx, "Runner.Decide", trace.WithAttributes(
		attribute.String("agent.id", r.agentID),
		attribute.String("level.id", string(obs.Meta.LevelID)),
		attribute.Int("turn", obs.Meta.Turn),
	))
	defer span.End()

	var (
		rej        *prompt.Rejection
		rejections []string
		spent      int64
		attempts   int
		accepted   *command.Result
		reason     string
	)
	for attempt := 1; attempt <= r.MaxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			reason = fmt.Sprintf("request deadline reached before attempt %d", attempt)
			break
		}
		attempts = attempt
		text, tokens, err := r.attempt(ctx, obs, rej, attempt)
		spent += tokens
		if err != nil {
			// Transport failures are not the model's fault; re-prompting will not help.
			reason = errmodel.From(err).Error()
			r.logger.Warn("backend call failed", "attempt", attempt, "error", reason)
			break
		}
		res := r.validator.Check(text, obs)
		if res.Accepted {
			accepted = &res
			break
		}
		reason = res.Reason()
		rejections = append(rejections, reason)
		r.logger.Info("reply rejected", "attempt", attempt, "reason", reason)
		rej = &prompt.Rejection{Attempt: attempt, Reason: reason, Reply: text}
	}

	reply := agent.Reply{
		AgentID: r.agentID,
		Meta: agent.ReplyMeta{
			TokenUsage: agent.TokenUsage{Total: r.meter.Total(), Request: spent},
			Attempts:   attempts,
			Model:      r.modelName(),
		},
	}
	if accepted != nil {
		reply.Command = accepted.Command.String()
		reply.Reasoning = accepted.Rationale
		reply.Meta.Outcome = agent.OutcomeAccepted
	} else {
		reply.Command = command.Pass().String()
		reply.Reasoning = fallbackRationale(attempts, reason)
		reply.Meta.Outcome = agent.OutcomeFallback
		span.SetStatus(codes.Error, "fallback")
	}
	span.SetAttributes(
		attribute.String("decision.outcome", reply.Meta.Outcome),
		attribute.Int("decision.attempts", attempts),
		attribute.Int64("tokens.request", spent),
	)
	r.logger.Info("decision",
		"outcome", reply.Meta.Outcome,
		"command", reply.Command,
		"attempts", attempts,
		"tokens_request", spent,
		"tokens_total", reply.Meta.TokenUsage.Total,
	)
	reply.Meta.DecisionID = r.record(ctx, obs, reply, rejections)
	return reply
}

func fallbackRationale(attempts int, reason string) string {
	if reason == "" {
		reason = "no attempt was made"
	}
	return fmt.Sprintf("Fallback: no valid command after %d attempt(s); last rejection: %s", attempts, reason)
}

// attempt builds the prompt and calls the backend once. It returns the reply
// text and the tokens charged for it.
func (r *Runner) attempt(ctx context.Context, obs *board.Observation, rej *prompt.Rejection, n int) (string, int64, error) {
	tr := otel.Tracer("runtime/runner")
	ctx, span := tr.Start(ctx, "Runner.attempt", trace.WithAttributes(attribute.Int("attempt", n)))
	defer span.End()

	text, err := r.builder.Build(obs, rej)
	if err != nil {
		span.RecordError(err)
		return "", 0, errmodel.System("prompt_build", err.Error(), nil, err)
	}
	if r.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()
	}
	opts := map[string]any{}
	if r.model != "" {
		opts[llm.OptModel] = r.model
	}
	if r.schema != nil {
		opts[llm.OptResponseSchema] = r.schema
	}
	res, err := r.backend.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: text}}, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend")
		return "", 0, llm.Classify(r.backend.Name(), 0, err)
	}
	tokens := int64(res.Usage())
	if tokens == 0 && r.estimate != nil {
		tokens = int64(r.estimate(text) + r.estimate(res.Text))
	}
	r.meter.Add(tokens)
	span.SetAttributes(attribute.Int64("tokens", tokens))
	return res.Text, tokens, nil
}

func (r *Runner) modelName() string {
	if r.model != "" {
		return r.model
	}
	return r.backend.Name()
}

// record writes the decision log row. Failures are logged and never change the reply.
func (r *Runner) record(ctx context.Context, obs *board.Observation, reply agent.Reply, rejections []string) string {
	if r.recorder == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	d := store.DecisionRecord{
		ID:         uuid.NewString(),
		AgentID:    reply.AgentID,
		Model:      reply.Meta.Model,
		LevelID:    string(obs.Meta.LevelID),
		Turn:       obs.Meta.Turn,
		Command:    reply.Command,
		Reasoning:  reply.Reasoning,
		Outcome:    reply.Meta.Outcome,
		Attempts:   reply.Meta.Attempts,
		Tokens:     reply.Meta.TokenUsage.Request,
		Rejections: rejections,
	}
	if r.keepRaw {
		d.Observation = obs.Raw
	}
	saved, err := r.recorder.SaveDecision(ctx, d)
	if err != nil {
		r.logger.Error("record decision", "error", err)
		return ""
	}
	return saved.ID
}
