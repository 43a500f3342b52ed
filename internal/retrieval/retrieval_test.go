package retrieval

import (
	"context"
	"testing"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/embedder"
	"github.com/modforge/assembler/internal/modstore"
)

type fakeBackend struct {
	mods map[string]domain.Mod
}

func (b *fakeBackend) UpsertMods(_ context.Context, mods []domain.Mod) error {
	for _, m := range mods {
		b.mods[m.SourceID] = m
	}
	return nil
}
func (b *fakeBackend) UpsertModpacks(_ context.Context, _ []domain.Modpack) error { return nil }
func (b *fakeBackend) GetMod(_ context.Context, id string) (domain.Mod, error) {
	return b.mods[id], nil
}
func (b *fakeBackend) GetModsBatch(_ context.Context, ids []string) ([]domain.Mod, error) {
	out := make([]domain.Mod, 0, len(ids))
	for _, id := range ids {
		if m, ok := b.mods[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
func (b *fakeBackend) VectorSearchMods(_ context.Context, _ []float32, k int) ([]modstore.ScoredMod, error) {
	order := []string{"sodium", "lithium", "jei"}
	out := make([]modstore.ScoredMod, 0, k)
	for _, id := range order {
		if m, ok := b.mods[id]; ok {
			out = append(out, modstore.ScoredMod{Mod: m, Score: 1})
		}
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}
func (b *fakeBackend) VectorSearchModpacks(_ context.Context, _ []float32, _ int) ([]modstore.ScoredModpack, error) {
	return nil, nil
}
func (b *fakeBackend) AllMods(_ context.Context) ([]domain.Mod, error) {
	out := make([]domain.Mod, 0, len(b.mods))
	for _, m := range b.mods {
		out = append(out, m)
	}
	return out, nil
}
func (b *fakeBackend) Close() error { return nil }

func newTestRetriever() *Retriever {
	backend := &fakeBackend{mods: map[string]domain.Mod{
		"sodium":  {SourceID: "sodium", Name: "Sodium", Loaders: []string{"fabric"}, Downloads: 10_000_000},
		"lithium": {SourceID: "lithium", Name: "Lithium", Loaders: []string{"fabric"}, Downloads: 8_000_000},
		"jei":     {SourceID: "jei", Name: "JEI", Loaders: []string{"fabric"}, Downloads: 50_000_000},
	}}
	store := modstore.New(backend, embedder.NewFake(), modstore.NewInMemoryWriteLog())
	return New(store)
}

func TestRetriever_Search_FusesMultipleQueries(t *testing.T) {
	r := newTestRetriever()
	plan := domain.SearchPlan{
		SearchQueries: []domain.SearchQuery{
			{Kind: domain.SearchSemantic, Text: "performance mods", Weight: 1},
			{Kind: domain.SearchSemantic, Text: "rendering optimization", Weight: 0.5},
		},
	}

	candidates, err := r.Search(context.Background(), Input{Plan: plan, Loader: "fabric", MinDownloads: 1})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if candidates[0].Mod.SourceID != "sodium" {
		t.Errorf("expected sodium (rank 0 in both queries) to score highest, got %s", candidates[0].Mod.SourceID)
	}
	if len(candidates[0].Trace) != 2 {
		t.Errorf("expected sodium to have 2 query contributions, got %d", len(candidates[0].Trace))
	}
}

func TestRetriever_Search_AppliesMinDownloadsFilter(t *testing.T) {
	r := newTestRetriever()
	plan := domain.SearchPlan{
		SearchQueries: []domain.SearchQuery{
			{Kind: domain.SearchSemantic, Text: "mods", Weight: 1},
		},
	}

	candidates, err := r.Search(context.Background(), Input{Plan: plan, Loader: "fabric", MinDownloads: 9_000_000})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for _, c := range candidates {
		if c.Mod.Downloads < 9_000_000 {
			t.Errorf("expected min-downloads filter to exclude %s (%d downloads)", c.Mod.SourceID, c.Mod.Downloads)
		}
	}
}

func TestRetriever_Search_BaselineBoost(t *testing.T) {
	r := newTestRetriever()
	plan := domain.SearchPlan{
		SearchQueries: []domain.SearchQuery{
			{Kind: domain.SearchSemantic, Text: "mods", Weight: 1},
		},
		BaselineMods: []string{"lithium"},
	}

	candidates, err := r.Search(context.Background(), Input{Plan: plan, Loader: "fabric", MinDownloads: 1})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	var sodiumScore, lithiumScore float64
	for _, c := range candidates {
		switch c.Mod.SourceID {
		case "sodium":
			sodiumScore = c.Score
		case "lithium":
			lithiumScore = c.Score
		}
	}
	if lithiumScore <= 0 || sodiumScore <= 0 {
		t.Fatal("expected both mods to have scores")
	}
	// lithium ranks second (1/62) but its boost (0.05) lifts it past sodium (1/61).
	if lithiumScore <= sodiumScore {
		t.Errorf("expected baseline boost to lift lithium (%f) above sodium (%f)", lithiumScore, sodiumScore)
	}
}

func TestRetriever_Search_RejectsEmptyPlan(t *testing.T) {
	r := newTestRetriever()
	if _, err := r.Search(context.Background(), Input{}); err == nil {
		t.Error("expected error for a plan with no queries")
	}
}
