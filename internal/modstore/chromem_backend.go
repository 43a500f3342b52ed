package modstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/modforge/assembler/internal/domain"
)

const (
	modsCollection     = "modforge_mods"
	modpacksCollection = "modforge_modpacks"
)

// noopEmbeddingFunc satisfies chromem.EmbeddingFunc when the caller always
// supplies precomputed vectors via AddDocument's Embedding field; chromem
// only invokes it when a document has no embedding set.
func noopEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("chromem backend requires precomputed embeddings")
}

// ChromemBackend is the embedded, zero-external-dependency Backend used
// when no Qdrant endpoint is configured (§4.C's "works out of the box"
// requirement), grounded on the teacher's ChromemStore.
type ChromemBackend struct {
	db   *chromem.DB
	mu   sync.RWMutex
	mods *chromem.Collection
	pack *chromem.Collection

	// modCache mirrors every upserted mod so GetMod/GetModsBatch/AllMods
	// don't depend on chromem-go's document-listing surface, which is not
	// part of its documented query API.
	modCache map[string]domain.Mod
}

// NewChromemBackend opens (or creates) a persistent chromem-go database
// rooted at path.
func NewChromemBackend(path string) (*ChromemBackend, error) {
	if path == "" {
		path = filepath.Join(".", "local_cache", "modstore")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating chromem data dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}

	modsCol, err := db.GetOrCreateCollection(modsCollection, nil, noopEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating %s collection: %w", modsCollection, err)
	}
	packCol, err := db.GetOrCreateCollection(modpacksCollection, nil, noopEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating %s collection: %w", modpacksCollection, err)
	}

	return &ChromemBackend{db: db, mods: modsCol, pack: packCol, modCache: make(map[string]domain.Mod)}, nil
}

func (b *ChromemBackend) UpsertMods(ctx context.Context, mods []domain.Mod) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	docs := make([]chromem.Document, 0, len(mods))
	for _, m := range mods {
		if len(m.Embedding) == 0 {
			return fmt.Errorf("upserting mod %s: embedding is required", m.SourceID)
		}
		blob, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshaling mod %s: %w", m.SourceID, err)
		}
		docs = append(docs, chromem.Document{
			ID:        m.SourceID,
			Content:   m.Name + " " + m.Summary,
			Metadata:  map[string]string{"json": string(blob)},
			Embedding: m.Embedding,
		})
	}
	if err := b.mods.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding mod documents: %w", err)
	}
	for _, m := range mods {
		b.modCache[m.SourceID] = m
	}
	return nil
}

func (b *ChromemBackend) UpsertModpacks(ctx context.Context, packs []domain.Modpack) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	docs := make([]chromem.Document, 0, len(packs))
	for _, p := range packs {
		if len(p.Embedding) == 0 {
			return fmt.Errorf("upserting modpack %s: embedding is required", p.SourceID)
		}
		blob, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling modpack %s: %w", p.SourceID, err)
		}
		docs = append(docs, chromem.Document{
			ID:        p.SourceID,
			Content:   p.Title + " " + p.Description,
			Metadata:  map[string]string{"json": string(blob)},
			Embedding: p.Embedding,
		})
	}
	if err := b.pack.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding modpack documents: %w", err)
	}
	return nil
}

func (b *ChromemBackend) GetMod(_ context.Context, sourceID string) (domain.Mod, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.modCache[sourceID]
	if !ok {
		return domain.Mod{}, ErrNotFound
	}
	return m, nil
}

func (b *ChromemBackend) GetModsBatch(_ context.Context, sourceIDs []string) ([]domain.Mod, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Mod, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if m, ok := b.modCache[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *ChromemBackend) VectorSearchMods(ctx context.Context, vector []float32, k int) ([]ScoredMod, error) {
	n := b.mods.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := b.mods.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying mod vectors: %w", err)
	}
	out := make([]ScoredMod, 0, len(results))
	for _, r := range results {
		m, err := decodeMod(r.Metadata)
		if err != nil {
			continue
		}
		out = append(out, ScoredMod{Mod: m, Score: r.Similarity})
	}
	return out, nil
}

func (b *ChromemBackend) VectorSearchModpacks(ctx context.Context, vector []float32, k int) ([]ScoredModpack, error) {
	n := b.pack.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := b.pack.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying modpack vectors: %w", err)
	}
	out := make([]ScoredModpack, 0, len(results))
	for _, r := range results {
		var p domain.Modpack
		if err := json.Unmarshal([]byte(r.Metadata["json"]), &p); err != nil {
			continue
		}
		out = append(out, ScoredModpack{Modpack: p, Score: r.Similarity})
	}
	return out, nil
}

func (b *ChromemBackend) AllMods(_ context.Context) ([]domain.Mod, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Mod, 0, len(b.modCache))
	for _, m := range b.modCache {
		out = append(out, m)
	}
	return out, nil
}

func (b *ChromemBackend) Close() error { return nil }

func decodeMod(metadata map[string]string) (domain.Mod, error) {
	blob, ok := metadata["json"]
	if !ok {
		return domain.Mod{}, fmt.Errorf("document missing json metadata")
	}
	var m domain.Mod
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return domain.Mod{}, fmt.Errorf("unmarshaling mod: %w", err)
	}
	return m, nil
}
