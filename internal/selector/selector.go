// Package selector implements the Final Selector (§4.H): a local
// capability/popularity pre-filter that trims retrieval candidates to a
// small pool, followed by one LLM call that makes the final pick against
// the planned architecture (or, for the simple flow, against the
// unfiltered candidate list directly).
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
	"github.com/modforge/assembler/internal/retrieval"
)

const (
	perCategoryLimit = 6
	poolLimit        = 50
)

const schema = `{
  "type": "object",
  "required": ["mods"],
  "properties": {
    "mods": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source_id"],
        "properties": {
          "source_id": {"type": "string"},
          "category_index": {"type": ["integer", "null"]},
          "reason": {"type": "string"},
          "role": {"type": "string", "enum": ["primary", "library", "dependency", "bridge"]}
        }
      }
    },
    "explanation": {"type": "string"}
  }
}`

const systemPrompt = `You are an expert Minecraft modpack curator selecting the best mods from
a pool of candidates. Prioritize relevance to the user's request, mod quality and
popularity, synergy between selected mods, and diversity (avoid near-duplicates).
Always include required libraries/APIs the pool offers. Select as close to the
requested count as the pool allows, without duplicates.`

// Selector runs the Final Selector's pre-filter and LLM selection stages.
type Selector struct {
	gateway *llmgateway.Gateway
}

// New constructs a Selector.
func New(gateway *llmgateway.Gateway) *Selector {
	return &Selector{gateway: gateway}
}

// Input is the Final Selector's input.
type Input struct {
	UserPrompt   string
	MaxMods      int
	Candidates   []retrieval.Candidate
	Architecture *domain.PlannedArchitecture // nil for the simple flow
	CurrentMods  []string
}

// Result is the Final Selector's output.
type Result struct {
	Selections []domain.SelectedMod
	Usage      llmgateway.Usage
	CostUSD    float64
}

// Select runs the pre-filter (when an architecture is present) and the
// LLM selection call, enforcing the post-conditions of §4.H.2.
func (s *Selector) Select(ctx context.Context, in Input) (Result, error) {
	pool := in.Candidates
	if in.Architecture != nil {
		pool = preFilter(in.Candidates, *in.Architecture)
	}
	if len(pool) > poolLimit {
		pool = pool[:poolLimit]
	}

	want := in.MaxMods
	if want > len(pool) {
		want = len(pool)
	}

	userPrompt := buildUserPrompt(in, pool, want)
	raw, usage, cost, err := s.gateway.Call(ctx, llmgateway.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Schema:       schema,
		Temperature:  0.2,
		MaxTokens:    2000,
	})
	if err != nil {
		return Result{}, fmt.Errorf("final selector: %w", err)
	}

	var resp struct {
		Mods []struct {
			SourceID      string `json:"source_id"`
			CategoryIndex *int   `json:"category_index"`
			Reason        string `json:"reason"`
			Role          string `json:"role"`
		} `json:"mods"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, fmt.Errorf("final selector: %w: %s", llmgateway.ErrInvalidOutput, err)
	}

	poolByID := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		poolByID[c.Mod.SourceID] = struct{}{}
	}

	numCategories := 0
	if in.Architecture != nil {
		numCategories = len(in.Architecture.Categories)
	}

	seen := make(map[string]struct{}, len(resp.Mods))
	selections := make([]domain.SelectedMod, 0, len(resp.Mods))
	for _, m := range resp.Mods {
		if _, ok := poolByID[m.SourceID]; !ok {
			continue // not a valid candidate; silently drop per §4.H.2
		}
		if _, dup := seen[m.SourceID]; dup {
			continue
		}
		if m.CategoryIndex != nil && (*m.CategoryIndex < 0 || *m.CategoryIndex >= numCategories) {
			m.CategoryIndex = nil
		}
		seen[m.SourceID] = struct{}{}

		role := domain.SelectedModRole(m.Role)
		switch role {
		case domain.RolePrimary, domain.RoleLibrary, domain.RoleDependency, domain.RoleBridge:
		default:
			role = domain.RolePrimary
		}

		selections = append(selections, domain.SelectedMod{
			SourceID:      m.SourceID,
			CategoryIndex: m.CategoryIndex,
			Reason:        m.Reason,
			Role:          role,
		})
	}

	return Result{Selections: selections, Usage: usage, CostUSD: cost}, nil
}

// preFilter scores every candidate against every category (§4.H.1),
// keeps the top 6 per category, and unions into a pool of at most 50.
func preFilter(candidates []retrieval.Candidate, arch domain.PlannedArchitecture) []retrieval.Candidate {
	picked := make([]retrieval.Candidate, 0, poolLimit)
	pickedIDs := make(map[string]struct{})

	for _, cat := range arch.Categories {
		type scored struct {
			score float64
			cand  retrieval.Candidate
		}
		var ranked []scored
		for _, c := range candidates {
			if _, ok := pickedIDs[c.Mod.SourceID]; ok {
				continue
			}
			ranked = append(ranked, scored{score: categoryScore(c.Mod, cat), cand: c})
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

		limit := perCategoryLimit
		if limit > len(ranked) {
			limit = len(ranked)
		}
		for _, r := range ranked[:limit] {
			picked = append(picked, r.cand)
			pickedIDs[r.cand.Mod.SourceID] = struct{}{}
		}
	}

	if len(picked) > poolLimit {
		picked = picked[:poolLimit]
	}

	return picked
}

// categoryScore implements §4.H.1's local scoring formula:
// 5·|caps ∩ required| + 2·|caps ∩ preferred| + min(log10(downloads+1), 3).
func categoryScore(m domain.Mod, cat domain.PlannedCategory) float64 {
	caps := make(map[string]struct{}, len(m.Capabilities))
	for _, c := range m.Capabilities {
		caps[c] = struct{}{}
	}
	reqHits := 0
	for _, c := range cat.RequiredCapabilities {
		if _, ok := caps[c]; ok {
			reqHits++
		}
	}
	prefHits := 0
	for _, c := range cat.PreferredCapabilities {
		if _, ok := caps[c]; ok {
			prefHits++
		}
	}
	pop := math.Log10(float64(m.Downloads) + 1)
	if pop > 3 {
		pop = 3
	}
	return 5*float64(reqHits) + 2*float64(prefHits) + pop
}

func buildUserPrompt(in Input, pool []retrieval.Candidate, want int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER REQUEST: %q\n", in.UserPrompt)
	fmt.Fprintf(&b, "SELECT EXACTLY %d MODS (as close as possible) FROM THE POOL BELOW.\n\n", want)

	if in.Architecture != nil {
		b.WriteString("PLANNED ARCHITECTURE:\n")
		for i, cat := range in.Architecture.Categories {
			fmt.Fprintf(&b, "%d. %s - target %d mods - required: %s - preferred: %s\n",
				i, cat.Name, cat.TargetMods,
				strings.Join(cat.RequiredCapabilities, ", "),
				strings.Join(cat.PreferredCapabilities, ", "))
		}
		b.WriteString("\nUse category_index to tag each selection to a category above, or null if it doesn't fit one.\n\n")
	}

	b.WriteString("CANDIDATE POOL:\n")
	for _, c := range pool {
		fmt.Fprintf(&b, "- %s (%s): downloads=%d, capabilities=%s\n",
			c.Mod.Name, c.Mod.SourceID, c.Mod.Downloads, strings.Join(c.Mod.Capabilities, ", "))
	}

	fmt.Fprintf(&b, "\nMODS ALREADY ON THE BOARD: %s\n", strings.Join(in.CurrentMods, ", "))
	return b.String()
}
