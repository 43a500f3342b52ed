// Package architect implements the Architecture Planner (§4.G): a themed
// request's two-stage category design, grounded on similar reference
// modpacks mined from the Mod Store. Plan proposes a category skeleton
// before any mod is selected; Refine re-shapes that skeleton once the
// actual selected mods are known, enforcing the split/merge/classification
// invariants deterministically so the result holds regardless of what the
// LLM proposes.
package architect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
	"github.com/modforge/assembler/internal/modstore"
)

const (
	referenceTopK               = 10
	baselinePrevalenceThreshold = 0.70
	minCategories                = 5
	maxCategories                = 15
	splitThreshold               = 15
	mergeThreshold                = 4
	mergeJaccardThreshold         = 0.4
)

const planSchema = `{
  "type": "object",
  "required": ["categories", "pack_archetype"],
  "properties": {
    "pack_archetype": {"type": "string"},
    "categories": {
      "type": "array",
      "minItems": 5,
      "maxItems": 15,
      "items": {
        "type": "object",
        "required": ["name", "required_capabilities", "target_mods"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "required_capabilities": {"type": "array", "items": {"type": "string"}, "minItems": 1},
          "preferred_capabilities": {"type": "array", "items": {"type": "string"}},
          "target_mods": {"type": "integer"}
        }
      }
    }
  }
}`

const planSystemPrompt = `You are an expert Minecraft modpack architect. Design a category skeleton
for a themed modpack before any individual mod has been selected.

Use the reference modpacks and the capability co-occurrence table to ground your
categories in patterns that actually appear together in similar packs. Design
5 to 15 categories; each needs at least one required capability. The sum of
target_mods across all categories should be approximately the requested max_mods.
Categories should reflect the request's theme, not generic technical buckets.`

const refineSchema = `{
  "type": "object",
  "required": ["categories"],
  "properties": {
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "reasoning": {"type": "string"}
  }
}`

const refineSystemPrompt = `You are refining a Minecraft modpack's category skeleton now that the
actual mods have been selected. You will be given the mechanically split/merged
category structure (sizes and required capabilities already finalized) and must
only propose a display name and one-sentence description for each category that
fits the pack's theme. Do not change category membership or counts.`

// Architect runs both Architecture Planner stages.
type Architect struct {
	gateway *llmgateway.Gateway
	store   *modstore.Store
}

// New constructs an Architect.
func New(gateway *llmgateway.Gateway, store *modstore.Store) *Architect {
	return &Architect{gateway: gateway, store: store}
}

// PlanInput is the themed-flow Plan stage's input.
type PlanInput struct {
	UserPrompt string
	MaxMods    int
}

// PlanResult is the Plan stage's output: a category skeleton plus the
// baseline-mod list extracted from reference modpacks.
type PlanResult struct {
	Architecture domain.PlannedArchitecture
	BaselineMods []string
	Usage        llmgateway.Usage
	CostUSD      float64
}

type planResponse struct {
	PackArchetype string                   `json:"pack_archetype"`
	Categories    []planCategoryResponse   `json:"categories"`
}

type planCategoryResponse struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	RequiredCapabilities  []string `json:"required_capabilities"`
	PreferredCapabilities []string `json:"preferred_capabilities"`
	TargetMods            int      `json:"target_mods"`
}

// Plan finds reference modpacks, extracts a capability co-occurrence table
// and baseline-mod list, and asks the LLM to design a category skeleton.
func (a *Architect) Plan(ctx context.Context, in PlanInput) (PlanResult, error) {
	refs, err := a.store.ModpackVectorSearch(ctx, in.UserPrompt, referenceTopK)
	if err != nil {
		return PlanResult{}, fmt.Errorf("architecture planner: finding reference modpacks: %w", err)
	}

	cooccurrence, baseline := capabilityPatterns(refs)

	userPrompt := buildPlanUserPrompt(in, refs, cooccurrence)
	raw, usage, cost, err := a.gateway.Call(ctx, llmgateway.Request{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   userPrompt,
		Schema:       planSchema,
		Temperature:  0.3,
		MaxTokens:    2000,
	})
	if err != nil {
		return PlanResult{}, fmt.Errorf("architecture planner plan: %w", err)
	}

	var resp planResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PlanResult{}, fmt.Errorf("architecture planner plan: %w: %s", llmgateway.ErrInvalidOutput, err)
	}
	if len(resp.Categories) < minCategories || len(resp.Categories) > maxCategories {
		return PlanResult{}, fmt.Errorf("architecture planner plan: expected %d-%d categories, got %d", minCategories, maxCategories, len(resp.Categories))
	}

	categories := make([]domain.PlannedCategory, 0, len(resp.Categories))
	estimatedTotal := 0
	for _, c := range resp.Categories {
		if len(c.RequiredCapabilities) == 0 {
			return PlanResult{}, fmt.Errorf("architecture planner plan: category %q has no required capabilities", c.Name)
		}
		categories = append(categories, domain.PlannedCategory{
			Name:                  c.Name,
			Description:           c.Description,
			RequiredCapabilities:  c.RequiredCapabilities,
			PreferredCapabilities: c.PreferredCapabilities,
			TargetMods:            c.TargetMods,
		})
		estimatedTotal += c.TargetMods
	}

	return PlanResult{
		Architecture: domain.PlannedArchitecture{
			Categories:         categories,
			PackArchetype:      resp.PackArchetype,
			EstimatedTotalMods: estimatedTotal,
		},
		BaselineMods: baseline,
		Usage:        usage,
		CostUSD:      cost,
	}, nil
}

func buildPlanUserPrompt(in PlanInput, refs []modstore.ScoredModpack, cooccurrence map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER REQUEST: %q\n", in.UserPrompt)
	fmt.Fprintf(&b, "MAX MODS: %d\n\n", in.MaxMods)

	fmt.Fprintf(&b, "REFERENCE MODPACKS (%d similar):\n", len(refs))
	for i, ref := range refs {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, ref.Modpack.Title)
		var caps []string
		for _, cat := range ref.Modpack.Architecture.Categories {
			caps = append(caps, cat.RequiredCapabilities...)
		}
		fmt.Fprintf(&b, "   Capabilities: %s\n", strings.Join(caps, ", "))
	}

	top := topCapabilities(cooccurrence, 20)
	fmt.Fprintf(&b, "\nCOMMON CAPABILITIES ACROSS REFERENCES: %s\n", strings.Join(top, ", "))
	return b.String()
}

// capabilityPatterns extracts capability frequency and the baseline-mod
// list (mods appearing as a provider in >=70% of reference modpacks) per
// §4.G.1.
func capabilityPatterns(refs []modstore.ScoredModpack) (map[string]int, []string) {
	freq := make(map[string]int)
	providerCount := make(map[string]int)

	for _, ref := range refs {
		for _, cat := range ref.Modpack.Architecture.Categories {
			for _, cap := range cat.RequiredCapabilities {
				freq[cap]++
			}
			for _, ids := range cat.Providers {
				for _, id := range ids {
					providerCount[id]++
				}
			}
		}
	}

	n := len(refs)
	var baseline []string
	if n > 0 {
		for id, count := range providerCount {
			if float64(count)/float64(n) >= baselinePrevalenceThreshold {
				baseline = append(baseline, id)
			}
		}
		sort.Strings(baseline)
	}
	return freq, baseline
}

func topCapabilities(freq map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	kvs := make([]kv, 0, len(freq))
	for k, v := range freq {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].v != kvs[j].v {
			return kvs[i].v > kvs[j].v
		}
		return kvs[i].k < kvs[j].k
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.k
	}
	return out
}
