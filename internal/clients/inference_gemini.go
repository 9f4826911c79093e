package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"google.golang.org/genai"

	"automaton/internal/logging"
)

// GeminiClient is the default InferenceClient, backed by the Gemini API
// through the genai SDK. Constructed the same way the embedding engine
// builds its client: one *genai.Client per API key, reused across
// calls.
//
// lowCompute is one of the runtime's two pieces of process-wide mutable
// state (the other being the open state store handle): the tier monitor
// flips it on entering low_compute/critical and clears it back to
// normal, and Infer consults it to swap in the cheaper model.
type GeminiClient struct {
	client     *genai.Client
	model      string
	lowModel   string
	lowCompute atomic.Bool
}

// NewGeminiClient creates a GeminiClient for the given API key and
// model. An empty model defaults to "gemini-2.5-pro"; lowModel is used
// in place of model whenever SetLowCompute(true) is in effect, defaulting
// to "gemini-2.5-flash" when unset.
func NewGeminiClient(ctx context.Context, apiKey, model, lowModel string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}
	if lowModel == "" {
		lowModel = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model, lowModel: lowModel}, nil
}

// Model returns the model currently in effect: the low-compute model
// when the low-compute flag is set, otherwise the configured model.
func (g *GeminiClient) Model() string {
	if g.lowCompute.Load() {
		return g.lowModel
	}
	return g.model
}

// SetLowCompute toggles the tier-driven low-compute flag. The tier
// monitor calls this on every tier transition into/out of low_compute
// or critical.
func (g *GeminiClient) SetLowCompute(on bool) {
	g.lowCompute.Store(on)
}

// Infer translates the assembled message sequence and tool specs into
// a genai GenerateContent request, and maps the response back to the
// normalized InferenceResponse shape.
func (g *GeminiClient) Infer(ctx context.Context, messages []Message, tools []ToolSpec) (InferenceResponse, error) {
	log := logging.Get(logging.CategoryClients).Sugar()

	var systemParts []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		combined := ""
		for i, p := range systemParts {
			if i > 0 {
				combined += "\n\n"
			}
			combined += p
		}
		cfg.SystemInstruction = genai.NewContentFromText(combined, genai.RoleUser)
	}
	if len(tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(tools)}}
	}

	model := g.Model()
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	latency := time.Since(start)
	if err != nil {
		log.Errorw("gemini generate content failed", "model", model, "latency", latency, "error", err)
		return InferenceResponse{}, fmt.Errorf("gemini generate content: %w", err)
	}
	log.Debugw("gemini generate content completed", "model", model, "latency", latency)

	return toInferenceResponse(resp), nil
}

func toFunctionDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return decls
}

// toSchema converts the JSON-schema-shaped Parameters map into a
// genai.Schema by round-tripping through JSON: the registry's Schema
// type already serializes to the same shape the API expects.
func toSchema(params map[string]any) *genai.Schema {
	if len(params) == 0 {
		return &genai.Schema{Type: genai.TypeObject}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	var schema genai.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	return &schema
}

func toInferenceResponse(resp *genai.GenerateContentResponse) InferenceResponse {
	out := InferenceResponse{}

	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		out.FinishReason = "no_candidates"
		return out
	}

	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)
	if cand.Content == nil {
		return out
	}

	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			if out.Thinking != "" {
				out.Thinking += "\n"
			}
			out.Thinking += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	return out
}
