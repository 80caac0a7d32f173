// Package gemini is the Google Gemini backend.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	genai "google.golang.org/genai"

	"github.com/ixentbench/purple/pkg/adapters/llm"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-3-pro-preview"
)

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return providerName }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := opts[llm.OptModel].(string); ok && v != "" {
		model = v
	}
	cfg := &genai.GenerateContentConfig{}
	var user []string
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == llm.RoleSystem {
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			continue
		}
		user = append(user, m.Content)
	}
	if s, ok := opts[llm.OptResponseSchema].(*jsonschema.Schema); ok && s != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convSchema(s)
	}
	if v, ok := opts[llm.OptTemperature].(float64); ok {
		cfg.Temperature = genai.Ptr(float32(v))
	}

	contents := []*genai.Content{genai.NewContentFromText(strings.Join(user, "\n"), genai.RoleUser)}
	res, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.GenerateResult{}, classify(err)
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

func classify(err error) error {
	status := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Code
	}
	return llm.Classify(providerName, status, err)
}

// convSchema converts a JSON schema into the subset Gemini accepts.
func convSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	gs := &genai.Schema{
		Description: s.Description,
		Format:      s.Format,
		Required:    s.Required,
		Items:       convSchema(s.Items),
	}
	for _, v := range s.Enum {
		gs.Enum = append(gs.Enum, fmt.Sprint(v))
	}
	if len(s.Properties) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, p := range s.Properties {
			gs.Properties[k] = convSchema(p)
		}
	}
	switch s.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return gs
}

// Factory creates a Gemini client. cfg keys: api_key (default GOOGLE_API_KEY),
// model, base_url.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		cc.HTTPOptions.BaseURL = v
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &clientWrapper{client: client, model: model}, nil
}

func init() {
	_ = llm.Register(providerName, Factory)
}
