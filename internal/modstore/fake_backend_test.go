package modstore

import (
	"context"

	"github.com/modforge/assembler/internal/domain"
)

// fakeBackend is an in-memory Backend for Store-level tests, avoiding any
// dependency on a real vector engine.
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
		return domain.Mod{}, ErrNotFound
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

func (b *fakeBackend) VectorSearchMods(_ context.Context, _ []float32, k int) ([]ScoredMod, error) {
	out := make([]ScoredMod, 0, len(b.mods))
	for _, m := range b.mods {
		out = append(out, ScoredMod{Mod: m, Score: 1})
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func (b *fakeBackend) VectorSearchModpacks(_ context.Context, _ []float32, k int) ([]ScoredModpack, error) {
	out := make([]ScoredModpack, 0, len(b.modpacks))
	for _, p := range b.modpacks {
		out = append(out, ScoredModpack{Modpack: p, Score: 1})
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
