package architect

import (
	"context"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/embedder"
	"github.com/modforge/assembler/internal/llmgateway"
	"github.com/modforge/assembler/internal/modstore"
)

type fakeModel struct{ text string }

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        m.text,
			GenerationInfo: map[string]any{"InputTokens": 50, "OutputTokens": 20},
		}},
	}, nil
}

type fakeBackend struct {
	modpacks map[string]domain.Modpack
}

func (b *fakeBackend) UpsertMods(_ context.Context, _ []domain.Mod) error         { return nil }
func (b *fakeBackend) UpsertModpacks(_ context.Context, _ []domain.Modpack) error { return nil }
func (b *fakeBackend) GetMod(_ context.Context, _ string) (domain.Mod, error)     { return domain.Mod{}, nil }
func (b *fakeBackend) GetModsBatch(_ context.Context, _ []string) ([]domain.Mod, error) {
	return nil, nil
}
func (b *fakeBackend) VectorSearchMods(_ context.Context, _ []float32, _ int) ([]modstore.ScoredMod, error) {
	return nil, nil
}
func (b *fakeBackend) VectorSearchModpacks(_ context.Context, _ []float32, k int) ([]modstore.ScoredModpack, error) {
	out := make([]modstore.ScoredModpack, 0, len(b.modpacks))
	for _, p := range b.modpacks {
		out = append(out, modstore.ScoredModpack{Modpack: p, Score: 1})
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}
func (b *fakeBackend) AllMods(_ context.Context) ([]domain.Mod, error) { return nil, nil }
func (b *fakeBackend) Close() error                                   { return nil }

func newTestArchitect(responseJSON string) (*Architect, *fakeBackend) {
	backend := &fakeBackend{modpacks: map[string]domain.Modpack{
		"ref1": {
			SourceID: "ref1",
			Title:    "Medieval Fantasy Pack",
			Architecture: domain.Architecture{Categories: []domain.ArchitectureCategory{
				{Name: "Combat", RequiredCapabilities: []string{"combat.melee"}, Providers: map[string][]string{"combat.melee": {"epic-fight"}}},
				{Name: "World", RequiredCapabilities: []string{"worldgen.biome"}, Providers: map[string][]string{"worldgen.biome": {"biomesoplenty"}}},
			}},
		},
	}}
	store := modstore.New(backend, embedder.NewFake(), modstore.NewInMemoryWriteLog())
	gw := llmgateway.New(&fakeModel{text: responseJSON}, "test-model", llmgateway.PricePerMillion{Input: 1, Output: 2}, 1000, 1000)
	return New(gw, store), backend
}

func TestArchitect_Plan_ReturnsValidatedSkeleton(t *testing.T) {
	a, _ := newTestArchitect(`{
		"pack_archetype": "medieval fantasy",
		"categories": [
			{"name": "Combat", "required_capabilities": ["combat.melee"], "target_mods": 10},
			{"name": "World", "required_capabilities": ["worldgen.biome"], "target_mods": 10},
			{"name": "Libraries", "required_capabilities": ["dependency.library"], "target_mods": 5},
			{"name": "Performance", "required_capabilities": ["performance.rendering"], "target_mods": 5},
			{"name": "Magic", "required_capabilities": ["magic.spells"], "target_mods": 10}
		]
	}`)

	result, err := a.Plan(context.Background(), PlanInput{UserPrompt: "medieval RPG with magic", MaxMods: 40})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(result.Architecture.Categories) != 5 {
		t.Errorf("expected 5 categories, got %d", len(result.Architecture.Categories))
	}
	if result.Architecture.EstimatedTotalMods != 40 {
		t.Errorf("EstimatedTotalMods = %d, want 40", result.Architecture.EstimatedTotalMods)
	}
	if result.Architecture.PackArchetype != "medieval fantasy" {
		t.Errorf("PackArchetype = %q", result.Architecture.PackArchetype)
	}
}

func TestArchitect_Plan_RejectsTooFewCategories(t *testing.T) {
	a, _ := newTestArchitect(`{
		"pack_archetype": "x",
		"categories": [
			{"name": "Combat", "required_capabilities": ["combat.melee"], "target_mods": 10}
		]
	}`)

	if _, err := a.Plan(context.Background(), PlanInput{UserPrompt: "x", MaxMods: 10}); err == nil {
		t.Error("expected error for fewer than 5 categories")
	}
}

func TestArchitect_Plan_RejectsCategoryWithNoRequiredCapabilities(t *testing.T) {
	a, _ := newTestArchitect(`{
		"pack_archetype": "x",
		"categories": [
			{"name": "Combat", "required_capabilities": [], "target_mods": 10},
			{"name": "World", "required_capabilities": ["worldgen.biome"], "target_mods": 10},
			{"name": "Libraries", "required_capabilities": ["dependency.library"], "target_mods": 5},
			{"name": "Performance", "required_capabilities": ["performance.rendering"], "target_mods": 5},
			{"name": "Magic", "required_capabilities": ["magic.spells"], "target_mods": 10}
		]
	}`)

	if _, err := a.Plan(context.Background(), PlanInput{UserPrompt: "x", MaxMods: 40}); err == nil {
		t.Error("expected error for a category with no required capabilities")
	}
}

func TestCapabilityPatterns_ExtractsBaselineMods(t *testing.T) {
	refs := []modstore.ScoredModpack{
		{Modpack: domain.Modpack{Architecture: domain.Architecture{Categories: []domain.ArchitectureCategory{
			{RequiredCapabilities: []string{"combat.melee"}, Providers: map[string][]string{"combat.melee": {"jei"}}},
		}}}},
		{Modpack: domain.Modpack{Architecture: domain.Architecture{Categories: []domain.ArchitectureCategory{
			{RequiredCapabilities: []string{"combat.melee"}, Providers: map[string][]string{"combat.melee": {"jei"}}},
		}}}},
	}
	_, baseline := capabilityPatterns(refs)
	if len(baseline) != 1 || baseline[0] != "jei" {
		t.Errorf("expected jei as baseline mod (100%% prevalence), got %v", baseline)
	}
}
