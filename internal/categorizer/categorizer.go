// Package categorizer implements the simple flow's Categorizer (§4.I): a
// single LLM call mapping each selected mod into one of a fixed category
// set, used when a request skipped the Architecture Planner entirely.
package categorizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
)

// Category is the fixed set of buckets the simple flow sorts mods into.
type Category string

const (
	CategoryPerformance Category = "Performance"
	CategoryGraphics    Category = "Graphics"
	CategoryUtility     Category = "Utility"
	CategoryWorld       Category = "World"
	CategoryGameplay    Category = "Gameplay"
	CategoryContent     Category = "Content"
	CategoryLibraries   Category = "Libraries"
	CategoryOther       Category = "Other"
)

var fixedCategories = []Category{
	CategoryPerformance, CategoryGraphics, CategoryUtility, CategoryWorld,
	CategoryGameplay, CategoryContent, CategoryLibraries, CategoryOther,
}

const schema = `{
  "type": "object",
  "required": ["assignments"],
  "properties": {
    "assignments": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source_id", "category"],
        "properties": {
          "source_id": {"type": "string"},
          "category": {"type": "string", "enum": ["Performance", "Graphics", "Utility", "World", "Gameplay", "Content", "Libraries", "Other"]}
        }
      }
    }
  }
}`

const systemPrompt = `You are categorizing Minecraft mods into a fixed set of buckets:
Performance, Graphics, Utility, World, Gameplay, Content, Libraries, Other.
Use each mod's capabilities as the primary signal, falling back to its tags and
summary when capabilities are absent or ambiguous. Assign exactly one category
per mod, using the exact category names given.`

// Categorizer runs the simple flow's single-call categorization.
type Categorizer struct {
	gateway *llmgateway.Gateway
}

// New constructs a Categorizer.
func New(gateway *llmgateway.Gateway) *Categorizer {
	return &Categorizer{gateway: gateway}
}

// Assignment is one mod's categorization result.
type Assignment struct {
	SourceID string
	Category Category
}

// Result is the Categorizer's output.
type Result struct {
	Assignments []Assignment
	Usage       llmgateway.Usage
	CostUSD     float64
}

// Categorize assigns each mod to exactly one fixed category. Mods the
// model fails to classify (or assigns an unrecognized category to) fall
// back to CategoryOther, keeping the output deterministic and total over
// the input ordering regardless of the model's behavior.
func (c *Categorizer) Categorize(ctx context.Context, mods []domain.Mod) (Result, error) {
	if len(mods) == 0 {
		return Result{}, nil
	}

	userPrompt := buildUserPrompt(mods)
	raw, usage, cost, err := c.gateway.Call(ctx, llmgateway.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Schema:       schema,
		Temperature:  0.2,
		MaxTokens:    2000,
	})
	if err != nil {
		return Result{}, fmt.Errorf("categorizer: %w", err)
	}

	var resp struct {
		Assignments []struct {
			SourceID string `json:"source_id"`
			Category string `json:"category"`
		} `json:"assignments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, fmt.Errorf("categorizer: %w: %s", llmgateway.ErrInvalidOutput, err)
	}

	byID := make(map[string]Category, len(resp.Assignments))
	for _, a := range resp.Assignments {
		if cat := validCategory(a.Category); cat != "" {
			byID[a.SourceID] = cat
		}
	}

	assignments := make([]Assignment, len(mods))
	for i, m := range mods {
		cat, ok := byID[m.SourceID]
		if !ok {
			cat = CategoryOther
		}
		assignments[i] = Assignment{SourceID: m.SourceID, Category: cat}
	}

	return Result{Assignments: assignments, Usage: usage, CostUSD: cost}, nil
}

func validCategory(s string) Category {
	for _, c := range fixedCategories {
		if string(c) == s {
			return c
		}
	}
	return ""
}

func buildUserPrompt(mods []domain.Mod) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MODS TO CATEGORIZE (%d):\n", len(mods))
	for i, m := range mods {
		fmt.Fprintf(&b, "%d. source_id=%s name=%q\n", i+1, m.SourceID, m.Name)
		fmt.Fprintf(&b, "   capabilities: %s\n", strings.Join(m.Capabilities, ", "))
		fmt.Fprintf(&b, "   tags: %s\n", strings.Join(m.Tags, ", "))
		fmt.Fprintf(&b, "   summary: %s\n", m.Summary)
	}
	b.WriteString("\nReturn one assignment per mod, identified by source_id, using the exact category names given.")
	return b.String()
}
