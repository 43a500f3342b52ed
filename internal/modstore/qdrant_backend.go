package modstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/modforge/assembler/internal/domain"
)

const (
	qdrantModsCollection     = "modforge_mods"
	qdrantModpacksCollection = "modforge_modpacks"
	qdrantVectorSize         = 384
)

// QdrantBackend is the primary Backend for production deployments,
// grounded on the teacher's QdrantStore gRPC wiring (internal/vectorstore/qdrant.go)
// but trimmed to the mod/modpack catalog's actual shape — no multi-tenant
// payload isolation, since this system has no per-tenant collection split.
type QdrantBackend struct {
	client *qdrant.Client
}

// QdrantConfig configures the Qdrant gRPC connection.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
}

// NewQdrantBackend dials the Qdrant gRPC endpoint and ensures both
// collections exist.
func NewQdrantBackend(ctx context.Context, cfg QdrantConfig) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port, APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	for _, name := range []string{qdrantModsCollection, qdrantModpacksCollection} {
		exists, err := client.CollectionExists(ctx, name)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("checking collection %s: %w", name, err)
		}
		if !exists {
			if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(qdrantVectorSize),
					Distance: qdrant.Distance_Cosine,
				}),
			}); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("creating collection %s: %w", name, err)
			}
		}
	}

	return &QdrantBackend{client: client}, nil
}

func (b *QdrantBackend) upsert(ctx context.Context, collection string, id string, vector []float32, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", id, err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: map[string]*qdrant.Value{
			"source_id": {Kind: &qdrant.Value_StringValue{StringValue: id}},
			"json":      {Kind: &qdrant.Value_StringValue{StringValue: string(blob)}},
		},
	}

	_, err = b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upserting point %s into %s: %w", id, collection, err)
	}
	return nil
}

func (b *QdrantBackend) UpsertMods(ctx context.Context, mods []domain.Mod) error {
	for _, m := range mods {
		if len(m.Embedding) == 0 {
			return fmt.Errorf("upserting mod %s: embedding is required", m.SourceID)
		}
		if err := b.upsert(ctx, qdrantModsCollection, m.SourceID, m.Embedding, m); err != nil {
			return err
		}
	}
	return nil
}

func (b *QdrantBackend) UpsertModpacks(ctx context.Context, packs []domain.Modpack) error {
	for _, p := range packs {
		if len(p.Embedding) == 0 {
			return fmt.Errorf("upserting modpack %s: embedding is required", p.SourceID)
		}
		if err := b.upsert(ctx, qdrantModpacksCollection, p.SourceID, p.Embedding, p); err != nil {
			return err
		}
	}
	return nil
}

func (b *QdrantBackend) idFilter(sourceIDs []string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "source_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: sourceIDs}},
						},
					},
				},
			},
		},
	}
}

func (b *QdrantBackend) GetMod(ctx context.Context, sourceID string) (domain.Mod, error) {
	mods, err := b.GetModsBatch(ctx, []string{sourceID})
	if err != nil {
		return domain.Mod{}, err
	}
	if len(mods) == 0 {
		return domain.Mod{}, ErrNotFound
	}
	return mods[0], nil
}

func (b *QdrantBackend) GetModsBatch(ctx context.Context, sourceIDs []string) ([]domain.Mod, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	hits, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: qdrantModsCollection,
		Filter:         b.idFilter(sourceIDs),
		Limit:          qdrant.PtrOf(uint32(len(sourceIDs))),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching mods batch: %w", err)
	}

	out := make([]domain.Mod, 0, len(hits))
	for _, p := range hits {
		m, err := decodeModPayload(p.Payload)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *QdrantBackend) VectorSearchMods(ctx context.Context, vector []float32, k int) ([]ScoredMod, error) {
	res, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantModsCollection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search on %s: %w", qdrantModsCollection, err)
	}

	out := make([]ScoredMod, 0, len(res))
	for _, r := range res {
		m, err := decodeModPayload(r.Payload)
		if err != nil {
			continue
		}
		out = append(out, ScoredMod{Mod: m, Score: r.Score})
	}
	return out, nil
}

func (b *QdrantBackend) VectorSearchModpacks(ctx context.Context, vector []float32, k int) ([]ScoredModpack, error) {
	res, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantModpacksCollection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search on %s: %w", qdrantModpacksCollection, err)
	}

	out := make([]ScoredModpack, 0, len(res))
	for _, r := range res {
		blob, ok := r.Payload["json"]
		if !ok {
			continue
		}
		var p domain.Modpack
		if err := json.Unmarshal([]byte(blob.GetStringValue()), &p); err != nil {
			continue
		}
		out = append(out, ScoredModpack{Modpack: p, Score: r.Score})
	}
	return out, nil
}

func (b *QdrantBackend) AllMods(ctx context.Context) ([]domain.Mod, error) {
	var out []domain.Mod
	var offset *qdrant.PointId

	for {
		page, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: qdrantModsCollection,
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling mods: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			if m, err := decodeModPayload(p.Payload); err == nil {
				out = append(out, m)
			}
		}
		if len(page) < 256 {
			break
		}
		offset = page[len(page)-1].Id
	}

	return out, nil
}

func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

func decodeModPayload(payload map[string]*qdrant.Value) (domain.Mod, error) {
	v, ok := payload["json"]
	if !ok {
		return domain.Mod{}, fmt.Errorf("point missing json payload")
	}
	var m domain.Mod
	if err := json.Unmarshal([]byte(v.GetStringValue()), &m); err != nil {
		return domain.Mod{}, fmt.Errorf("unmarshaling mod payload: %w", err)
	}
	return m, nil
}
