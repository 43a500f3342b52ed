package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/architect"
	"github.com/modforge/assembler/internal/categorizer"
	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/embedder"
	"github.com/modforge/assembler/internal/llmgateway"
	"github.com/modforge/assembler/internal/modstore"
	"github.com/modforge/assembler/internal/planner"
	"github.com/modforge/assembler/internal/progress"
	"github.com/modforge/assembler/internal/quota"
	"github.com/modforge/assembler/internal/retrieval"
	"github.com/modforge/assembler/internal/selector"
	"github.com/modforge/assembler/internal/tracer"
)

type fakeModel struct{ text string }

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        m.text,
			GenerationInfo: map[string]any{"InputTokens": 100, "OutputTokens": 50},
		}},
	}, nil
}

func testGateway(responseJSON string) *llmgateway.Gateway {
	return llmgateway.New(&fakeModel{text: responseJSON}, "test-model", llmgateway.PricePerMillion{Input: 1, Output: 2}, 1000, 1000)
}

type fakeBackend struct {
	mods     map[string]domain.Mod
	modpacks map[string]domain.Modpack
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{mods: map[string]domain.Mod{}, modpacks: map[string]domain.Modpack{}}
}

func (b *fakeBackend) UpsertMods(_ context.Context, mods []domain.Mod) error {
	for _, m := range mods {
		b.mods[m.SourceID] = m
	}
	return nil
}

func (b *fakeBackend) UpsertModpacks(_ context.Context, packs []domain.Modpack) error {
	for _, p := range packs {
		b.modpacks[p.SourceID] = p
	}
	return nil
}

func (b *fakeBackend) GetMod(_ context.Context, sourceID string) (domain.Mod, error) {
	m, ok := b.mods[sourceID]
	if !ok {
		return domain.Mod{}, errors.New("not found")
	}
	return m, nil
}

func (b *fakeBackend) GetModsBatch(_ context.Context, sourceIDs []string) ([]domain.Mod, error) {
	out := make([]domain.Mod, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if m, ok := b.mods[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) VectorSearchMods(_ context.Context, _ []float32, k int) ([]modstore.ScoredMod, error) {
	out := make([]modstore.ScoredMod, 0, len(b.mods))
	for _, m := range b.mods {
		out = append(out, modstore.ScoredMod{Mod: m, Score: 1})
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
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

func (b *fakeBackend) AllMods(_ context.Context) ([]domain.Mod, error) {
	out := make([]domain.Mod, 0, len(b.mods))
	for _, m := range b.mods {
		out = append(out, m)
	}
	return out, nil
}

func (b *fakeBackend) Close() error { return nil }

type capturingSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *capturingSink) record(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *capturingSink) last() progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func proTestUser(userID string) map[string]domain.User {
	return map[string]domain.User{
		userID: {ID: userID, SubscriptionTier: domain.TierPro},
	}
}

func newSimpleAssembler(backend *fakeBackend, planJSON, selectJSON, categorizeJSON string) (*Assembler, *quota.Gate) {
	store := modstore.New(backend, embedder.NewFake(), modstore.NewInMemoryWriteLog())
	q := quota.NewGate(quota.NewInMemoryStore(proTestUser("u1")))

	p := planner.New(testGateway(planJSON))
	sel := selector.New(testGateway(selectJSON))
	cat := categorizer.New(testGateway(categorizeJSON))

	return NewAssembler(p, nil, retrieval.New(store), sel, cat, store, q), q
}

const simplePlanJSON = `{
	"request_type": "simple_add",
	"use_architecture_planner": false,
	"search_queries": [
		{"kind": "keyword", "text": "sodium performance", "weight": 1.0},
		{"kind": "semantic", "text": "rendering optimization", "weight": 1.0},
		{"kind": "keyword", "text": "fps boost", "weight": 0.8}
	]
}`

const selectOneModJSON = `{
	"mods": [{"source_id": "sodium", "reason": "core performance mod", "role": "primary"}]
}`

const selectNoModsJSON = `{"mods": []}`

const categorizeJSON = `{"assignments": [{"source_id": "sodium", "category": "Performance"}]}`

func TestAssembler_Run_SimpleFlowProducesBoard(t *testing.T) {
	backend := newFakeBackend()
	backend.mods["sodium"] = domain.Mod{SourceID: "sodium", Name: "Sodium", Loaders: []string{"fabric"}, GameVersions: []string{"1.20.1"}, Downloads: 1_000_000}

	a, _ := newSimpleAssembler(backend, simplePlanJSON, selectOneModJSON, categorizeJSON)

	sink := &capturingSink{}
	stream := progress.NewStream(sink.record)
	tr := tracer.New("pipeline-1", nil)

	req := BuildRequest{UserID: "u1", Prompt: "add sodium", MCVersion: "1.20.1", ModLoader: "fabric", MaxMods: 10, Tier: domain.TierPro}

	result, err := a.Run(context.Background(), req, stream, tr)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Success {
		t.Error("expected Success = true")
	}
	if len(result.BoardState.Mods) != 1 || result.BoardState.Mods[0].SourceID != "sodium" {
		t.Errorf("expected sodium on the board, got %+v", result.BoardState.Mods)
	}
	if len(result.BoardState.Categories) != 1 {
		t.Errorf("expected one category, got %+v", result.BoardState.Categories)
	}

	if sink.last().Type != progress.EventComplete {
		t.Errorf("expected terminal complete event, got %v", sink.last().Type)
	}

	trace := tr.Trace()
	if len(trace.Stages) == 0 {
		t.Error("expected stage traces to be recorded")
	}
}

func TestAssembler_Run_NoSelectionsReturnsNoViableSelectionError(t *testing.T) {
	backend := newFakeBackend()
	backend.mods["sodium"] = domain.Mod{SourceID: "sodium", Name: "Sodium", Loaders: []string{"fabric"}, Downloads: 1_000_000}

	a, _ := newSimpleAssembler(backend, simplePlanJSON, selectNoModsJSON, categorizeJSON)

	sink := &capturingSink{}
	stream := progress.NewStream(sink.record)
	tr := tracer.New("pipeline-1", nil)

	req := BuildRequest{UserID: "u1", Prompt: "add sodium", MCVersion: "1.20.1", ModLoader: "fabric", MaxMods: 10, Tier: domain.TierPro}

	_, err := a.Run(context.Background(), req, stream, tr)
	if !errors.Is(err, apierr.ErrNoViableSelection) {
		t.Fatalf("expected ErrNoViableSelection, got %v", err)
	}
	if sink.last().Type != progress.EventError {
		t.Errorf("expected terminal error event, got %v", sink.last().Type)
	}
}

func TestAssembler_Run_FreeTierRejectedBeforeAnyLLMCall(t *testing.T) {
	backend := newFakeBackend()
	store := modstore.New(backend, embedder.NewFake(), modstore.NewInMemoryWriteLog())
	q := quota.NewGate(quota.NewInMemoryStore(map[string]domain.User{
		"free-user": {ID: "free-user", SubscriptionTier: domain.TierFree},
	}))

	p := planner.New(testGateway(simplePlanJSON))
	sel := selector.New(testGateway(selectOneModJSON))
	cat := categorizer.New(testGateway(categorizeJSON))
	a := NewAssembler(p, nil, retrieval.New(store), sel, cat, store, q)

	sink := &capturingSink{}
	stream := progress.NewStream(sink.record)
	tr := tracer.New("pipeline-1", nil)

	req := BuildRequest{UserID: "free-user", Prompt: "add sodium", MaxMods: 10, Tier: domain.TierFree}
	_, err := a.Run(context.Background(), req, stream, tr)
	if !errors.Is(err, apierr.ErrTierForbidden) {
		t.Fatalf("expected ErrTierForbidden, got %v", err)
	}
	if len(tr.Trace().Stages) != 0 {
		t.Error("expected no stages to run once the quota gate rejects the request")
	}
}

const themedPlanJSON = `{
	"request_type": "themed_pack",
	"use_architecture_planner": true,
	"search_queries": [
		{"kind": "keyword", "text": "medieval village", "weight": 1.0},
		{"kind": "semantic", "text": "medieval roleplay mods", "weight": 1.0},
		{"kind": "keyword", "text": "castles and knights", "weight": 0.7}
	]
}`

const architecturePlanJSON = `{
	"pack_archetype": "medieval roleplay",
	"categories": [
		{"name": "World Generation", "required_capabilities": ["world.generation"], "target_mods": 1}
	]
}`

func TestAssembler_Run_ThemedFlowUsesArchitecturePlanner(t *testing.T) {
	backend := newFakeBackend()
	backend.mods["terralith"] = domain.Mod{SourceID: "terralith", Name: "Terralith", Loaders: []string{"fabric"}, GameVersions: []string{"1.20.1"}, Capabilities: []string{"world.generation"}, Downloads: 1_000_000}

	store := modstore.New(backend, embedder.NewFake(), modstore.NewInMemoryWriteLog())
	q := quota.NewGate(quota.NewInMemoryStore(proTestUser("u1")))

	p := planner.New(testGateway(themedPlanJSON))
	arch := architect.New(testGateway(architecturePlanJSON), store)
	sel := selector.New(testGateway(`{"mods": [{"source_id": "terralith", "category_index": 0, "reason": "sets the medieval tone", "role": "primary"}]}`))

	a := NewAssembler(p, arch, retrieval.New(store), sel, nil, store, q)

	sink := &capturingSink{}
	stream := progress.NewStream(sink.record)
	tr := tracer.New("pipeline-1", nil)

	req := BuildRequest{UserID: "u1", Prompt: "medieval fantasy pack", MCVersion: "1.20.1", ModLoader: "fabric", MaxMods: 10, Tier: domain.TierPro}

	result, err := a.Run(context.Background(), req, stream, tr)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Success {
		t.Error("expected Success = true")
	}
	if len(result.BoardState.Mods) != 1 || result.BoardState.Mods[0].SourceID != "terralith" {
		t.Errorf("expected terralith on the board, got %+v", result.BoardState.Mods)
	}
}
