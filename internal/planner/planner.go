// Package planner implements the Query Planner (§4.F): a single LLM call
// that classifies an assembly request and produces the SearchPlan Hybrid
// Retrieval executes against the Mod Store.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
)

const schema = `{
  "type": "object",
  "required": ["request_type", "use_architecture_planner", "search_queries"],
  "properties": {
    "request_type": {"type": "string", "enum": ["simple_add", "performance", "themed_pack"]},
    "use_architecture_planner": {"type": "boolean"},
    "search_queries": {
      "type": "array",
      "minItems": 3,
      "maxItems": 6,
      "items": {
        "type": "object",
        "required": ["kind", "text", "weight"],
        "properties": {
          "kind": {"type": "string", "enum": ["semantic", "keyword"]},
          "text": {"type": "string"},
          "weight": {"type": "number"}
        }
      }
    },
    "capabilities_focus": {"type": "array", "items": {"type": "string"}},
    "baseline_mods": {"type": "array", "items": {"type": "string"}}
  }
}`

const systemPrompt = `You are the Query Planner for a Minecraft modpack assembly system.
Classify the user's request and produce a search plan for a hybrid
vector+keyword mod search engine.

Classification rules:
- "simple_add": the request names specific mods by name, or asks for at most 15 mods.
- "performance": the request emphasizes optimization, FPS, or memory usage without any theme.
- "themed_pack": anything else, or any request for 20 or more mods that carries topical content (e.g. "medieval", "tech", "RPG").
use_architecture_planner must be true if and only if request_type is "themed_pack".

You MUST emit between 3 and 6 search queries, mixing "semantic" (conceptual/vector)
and "keyword" (exact-term/lexical) queries as the request calls for: prefer keyword
queries with high weight when specific mod names are given, and semantic queries
with high weight when a theme or playstyle is described.`

// Input is the raw context the Query Planner classifies.
type Input struct {
	UserPrompt      string
	MCVersion       string
	ModLoader       string
	CurrentModNames []string
	MaxMods         int
}

// Planner runs the Query Planner's single LLM call.
type Planner struct {
	gateway *llmgateway.Gateway
}

// New constructs a Planner around an LLM Gateway.
func New(gateway *llmgateway.Gateway) *Planner {
	return &Planner{gateway: gateway}
}

type planResponse struct {
	RequestType            string                `json:"request_type"`
	UseArchitecturePlanner bool                  `json:"use_architecture_planner"`
	SearchQueries          []searchQueryResponse `json:"search_queries"`
	CapabilitiesFocus      []string              `json:"capabilities_focus"`
	BaselineMods           []string              `json:"baseline_mods"`
}

type searchQueryResponse struct {
	Kind   string  `json:"kind"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Plan classifies in and returns the resulting SearchPlan plus the token
// usage and cost of the underlying LLM call, so the caller can feed both
// into the Pipeline Tracer and Quota Gate.
func (p *Planner) Plan(ctx context.Context, in Input) (domain.SearchPlan, llmgateway.Usage, float64, error) {
	userPrompt := buildUserPrompt(in)

	raw, usage, cost, err := p.gateway.Call(ctx, llmgateway.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Schema:       schema,
		Temperature:  0.1,
		MaxTokens:    1024,
	})
	if err != nil {
		return domain.SearchPlan{}, usage, cost, fmt.Errorf("query planner: %w", err)
	}

	var resp planResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.SearchPlan{}, usage, cost, fmt.Errorf("query planner: %w: %s", llmgateway.ErrInvalidOutput, err)
	}

	plan, err := toSearchPlan(resp)
	if err != nil {
		return domain.SearchPlan{}, usage, cost, err
	}
	return plan, usage, cost, nil
}

func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER REQUEST: %q\n\n", in.UserPrompt)
	fmt.Fprintf(&b, "Minecraft version: %s\n", in.MCVersion)
	fmt.Fprintf(&b, "Mod loader: %s\n", in.ModLoader)
	fmt.Fprintf(&b, "Mods already on the board: %d\n", len(in.CurrentModNames))
	fmt.Fprintf(&b, "Maximum mods to add: %d\n", in.MaxMods)
	return b.String()
}

func toSearchPlan(resp planResponse) (domain.SearchPlan, error) {
	requestType := domain.RequestType(resp.RequestType)
	switch requestType {
	case domain.RequestSimpleAdd, domain.RequestPerformance, domain.RequestThemedPack:
	default:
		return domain.SearchPlan{}, fmt.Errorf("query planner: unknown request_type %q", resp.RequestType)
	}

	if len(resp.SearchQueries) < 3 || len(resp.SearchQueries) > 6 {
		return domain.SearchPlan{}, fmt.Errorf("query planner: must emit 3-6 search queries, got %d", len(resp.SearchQueries))
	}

	queries := make([]domain.SearchQuery, 0, len(resp.SearchQueries))
	for _, q := range resp.SearchQueries {
		kind := domain.SearchQueryKind(q.Kind)
		if kind != domain.SearchSemantic && kind != domain.SearchKeyword {
			return domain.SearchPlan{}, fmt.Errorf("query planner: unknown search query kind %q", q.Kind)
		}
		queries = append(queries, domain.SearchQuery{Kind: kind, Text: q.Text, Weight: q.Weight})
	}

	return domain.SearchPlan{
		RequestType:            requestType,
		UseArchitecturePlanner: requestType == domain.RequestThemedPack,
		SearchQueries:          queries,
		CapabilitiesFocus:      resp.CapabilitiesFocus,
		BaselineMods:           resp.BaselineMods,
	}, nil
}
