// Package modstore implements the Mod Store (§4.C): read access to the mod
// and modpack catalog (single-mod lookup, batched lookup, vector search,
// keyword search, modpack search) plus the narrow write surface the rest of
// the pipeline is allowed to use (crash sessions, modpack build records,
// sort-session feedback; user counters are kept by internal/quota). It never performs mod-binary
// downloads or registry mutation — those stay out of scope per spec.md §1.
package modstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/embedder"
)

// ErrNotFound is returned when a lookup by source ID finds nothing.
var ErrNotFound = errors.New("mod or modpack not found")

// Filters narrows a search to mods usable in the caller's target
// environment. A zero value matches everything.
type Filters struct {
	Loader        string
	GameVersion   string
	MinDownloads  int64
	AnyCapability []string
}

func (f Filters) matches(m domain.Mod) bool {
	if f.Loader != "" && !m.UsableUnder(f.Loader) {
		return false
	}
	if f.GameVersion != "" && !m.SupportsVersion(f.GameVersion) {
		return false
	}
	if f.MinDownloads > 0 && m.Downloads < f.MinDownloads {
		return false
	}
	if len(f.AnyCapability) > 0 && !m.HasAnyCapability(f.AnyCapability) {
		return false
	}
	return true
}

// ScoredMod pairs a Mod with its retrieval score for a particular query.
type ScoredMod struct {
	Mod   domain.Mod
	Score float32
}

// ScoredModpack pairs a Modpack with its retrieval score.
type ScoredModpack struct {
	Modpack domain.Modpack
	Score   float32
}

// Backend is the storage-engine-specific half of the Mod Store: vector
// upsert/search over mods and modpacks. Store layers filtering, batching,
// and lexical search on top of whichever Backend is configured.
type Backend interface {
	UpsertMods(ctx context.Context, mods []domain.Mod) error
	UpsertModpacks(ctx context.Context, packs []domain.Modpack) error
	GetMod(ctx context.Context, sourceID string) (domain.Mod, error)
	GetModsBatch(ctx context.Context, sourceIDs []string) ([]domain.Mod, error)
	VectorSearchMods(ctx context.Context, vector []float32, k int) ([]ScoredMod, error)
	VectorSearchModpacks(ctx context.Context, vector []float32, k int) ([]ScoredModpack, error)
	AllMods(ctx context.Context) ([]domain.Mod, error)
	Close() error
}

// Store is the Mod Store facade the rest of the pipeline depends on.
type Store struct {
	backend  Backend
	embedder embedder.Embedder
	writes   WriteLog
}

// New constructs a Store over the given Backend and Embedder.
func New(backend Backend, emb embedder.Embedder, writes WriteLog) *Store {
	return &Store{backend: backend, embedder: emb, writes: writes}
}

// GetMod fetches a single mod by its source ID.
func (s *Store) GetMod(ctx context.Context, sourceID string) (domain.Mod, error) {
	mod, err := s.backend.GetMod(ctx, sourceID)
	if err != nil {
		return domain.Mod{}, fmt.Errorf("get_mod %s: %w", sourceID, err)
	}
	return mod, nil
}

// GetModsBatch fetches many mods by source ID in a single round trip —
// callers must never loop GetMod per ID (forbidden N+1 pattern, §4.C).
func (s *Store) GetModsBatch(ctx context.Context, sourceIDs []string) ([]domain.Mod, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	mods, err := s.backend.GetModsBatch(ctx, sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("get_mods_batch: %w", err)
	}
	return mods, nil
}

// VectorSearch embeds the query and performs a k-nearest-neighbor search
// over the mod catalog, then applies Filters over the raw hits. k controls
// how many raw candidates are requested from the backend before filtering,
// so the caller should request extra headroom if Filters are restrictive.
func (s *Store) VectorSearch(ctx context.Context, query string, k int, filters Filters) ([]ScoredMod, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := s.backend.VectorSearchMods(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector_search: %w", err)
	}
	return filterScoredMods(hits, filters), nil
}

// KeywordSearch performs lexical (term-overlap) search over the mod
// catalog. It scans the full catalog in memory, grounded on the teacher's
// tokenize/overlap reranking approach rather than an external full-text
// engine, since the catalog size this system targets fits comfortably in
// a single process.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int, filters Filters) ([]ScoredMod, error) {
	all, err := s.backend.AllMods(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyword_search: %w", err)
	}
	scored := lexicalScore(query, all)
	scored = filterScoredMods(scored, filters)
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// ModpackVectorSearch embeds the query and searches the modpack catalog
// for reference packs (used by the Architecture Planner, §4.G).
func (s *Store) ModpackVectorSearch(ctx context.Context, query string, k int) ([]ScoredModpack, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := s.backend.VectorSearchModpacks(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("modpack_vector_search: %w", err)
	}
	return hits, nil
}

// RecordCrashSession persists a completed crash-analysis session.
func (s *Store) RecordCrashSession(ctx context.Context, session domain.CrashSession) error {
	return s.writes.RecordCrashSession(ctx, session)
}

// RecordModpackBuild persists a completed build-board run.
func (s *Store) RecordModpackBuild(ctx context.Context, record ModpackBuildRecord) error {
	return s.writes.RecordModpackBuild(ctx, record)
}

// RecordSortFeedback persists user feedback on an auto-sort/categorization result.
func (s *Store) RecordSortFeedback(ctx context.Context, feedback SortFeedback) error {
	return s.writes.RecordSortFeedback(ctx, feedback)
}

func filterScoredMods(in []ScoredMod, filters Filters) []ScoredMod {
	out := make([]ScoredMod, 0, len(in))
	for _, sm := range in {
		if filters.matches(sm.Mod) {
			out = append(out, sm)
		}
	}
	return out
}
