// Package openai is the backend for OpenAI and OpenAI-compatible servers.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"
	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/ixentbench/purple/pkg/adapters/llm"
)

const (
	providerName = "openai"
	defaultModel = "gpt-5-nano"
)

type clientWrapper struct {
	client oa.Client
	model  string
}

func (c *clientWrapper) Name() string { return providerName }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := opts[llm.OptModel].(string); ok && v != "" {
		model = v
	}

	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			mm = append(mm, oa.SystemMessage(m.Content))
		case "assistant":
			mm = append(mm, oa.AssistantMessage(m.Content))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}
	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: mm,
	}
	if s, ok := opts[llm.OptResponseSchema].(*jsonschema.Schema); ok && s != nil {
		params.ResponseFormat = oa.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "move",
					Schema: s,
				},
			},
		}
	}
	if v, ok := opts[llm.OptTemperature].(float64); ok {
		params.Temperature = oa.Float(v)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResult{}, classify(err)
	}
	var out string
	if len(resp.Choices) > 0 {
		out = resp.Choices[0].Message.Content
	}
	usage := resp.Usage
	return llm.GenerateResult{
		Text:         out,
		PromptTokens: int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		Model:        model,
	}, nil
}

func classify(err error) error {
	status := 0
	var apiErr *oa.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return llm.Classify(providerName, status, err)
}

// Factory creates an OpenAI client. cfg keys: api_key (default
// OPENAI_API_KEY), model, base_url.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	_ = ctx
	apiKey := os.Getenv("OPENAI_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	baseURL, _ := cfg["base_url"].(string)
	// OpenAI-compatible local servers usually take no key.
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	ropts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		ropts = append(ropts, option.WithBaseURL(baseURL))
	}
	return &clientWrapper{client: oa.NewClient(ropts...), model: model}, nil
}

func init() {
	_ = llm.Register(providerName, Factory)
}
