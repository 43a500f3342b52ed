// Package retrieval implements Hybrid Retrieval (§4.C): per-query vector
// or lexical search over the mod catalog, fused across all queries with
// weighted Reciprocal Rank Fusion, baseline-mod boosting, and post-filters.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/modstore"
)

const (
	vectorK       = 40
	lexicalK      = 150
	rrfK          = 60
	defaultMinDL  = 5000
	maxCandidates = 300
	// maxParallelQueries bounds per-request fan-out per §5 ("default 8 per request").
	maxParallelQueries = 8
)

// Candidate is one ranked result of retrieval, carrying an explainability
// trace of which queries contributed to its score.
type Candidate struct {
	Mod   domain.Mod
	Score float64
	Trace []QueryContribution
}

// QueryContribution records one query's contribution to a Candidate's RRF score.
type QueryContribution struct {
	QueryText string
	Kind      domain.SearchQueryKind
	Rank      int
	Weight    float64
}

// Input bundles a SearchPlan with the target environment and filter knobs.
type Input struct {
	Plan          domain.SearchPlan
	Loader        string
	GameVersion   string
	MinDownloads  int64
	AnyCapability []string
}

// Retriever runs Hybrid Retrieval against a Mod Store.
type Retriever struct {
	store *modstore.Store
}

// New constructs a Retriever.
func New(store *modstore.Store) *Retriever {
	return &Retriever{store: store}
}

// Search executes every query in the plan (bounded concurrency), fuses
// results with weighted RRF, applies the baseline boost and post-filters,
// and returns at most 300 ordered candidates with explainability traces.
// No minimum count is enforced: fewer are returned when fewer mods match.
func (r *Retriever) Search(ctx context.Context, in Input) ([]Candidate, error) {
	if len(in.Plan.SearchQueries) == 0 {
		return nil, fmt.Errorf("search plan has no queries")
	}

	minDownloads := in.MinDownloads
	if minDownloads <= 0 {
		minDownloads = defaultMinDL
	}

	filters := modstore.Filters{
		Loader:        in.Loader,
		GameVersion:   in.GameVersion,
		MinDownloads:  minDownloads,
		AnyCapability: in.AnyCapability,
	}

	type queryResult struct {
		query domain.SearchQuery
		hits  []modstore.ScoredMod
	}

	results := make([]queryResult, len(in.Plan.SearchQueries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)

	for i, q := range in.Plan.SearchQueries {
		i, q := i, q
		g.Go(func() error {
			var hits []modstore.ScoredMod
			var err error
			switch q.Kind {
			case domain.SearchSemantic:
				hits, err = r.store.VectorSearch(gctx, q.Text, vectorK, filters)
			case domain.SearchKeyword:
				hits, err = r.store.KeywordSearch(gctx, q.Text, lexicalK, filters)
			default:
				return fmt.Errorf("unknown search query kind %q", q.Kind)
			}
			if err != nil {
				return fmt.Errorf("searching query %q: %w", q.Text, err)
			}
			results[i] = queryResult{query: q, hits: hits}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := make(map[string]*Candidate)
	for _, res := range results {
		for rank, hit := range res.hits {
			weight := res.query.Weight
			if weight <= 0 {
				weight = 1
			}
			contribution := weight * (1.0 / float64(rrfK+rank+1))

			c, ok := fused[hit.Mod.SourceID]
			if !ok {
				c = &Candidate{Mod: hit.Mod}
				fused[hit.Mod.SourceID] = c
			}
			c.Score += contribution
			c.Trace = append(c.Trace, QueryContribution{
				QueryText: res.query.Text,
				Kind:      res.query.Kind,
				Rank:      rank,
				Weight:    weight,
			})
		}
	}

	applyBaselineBoost(fused, in.Plan.BaselineMods)

	ranked := make([]Candidate, 0, len(fused))
	for _, c := range fused {
		ranked = append(ranked, *c)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	return ranked, nil
}

// applyBaselineBoost adds an additive bonus to mods named as baseline mods
// in the SearchPlan, proportional to their prevalence (position in the
// baseline list — earlier entries are more prevalent per §4.F/§4.G).
func applyBaselineBoost(fused map[string]*Candidate, baselineMods []string) {
	n := len(baselineMods)
	if n == 0 {
		return
	}
	for i, sourceID := range baselineMods {
		c, ok := fused[sourceID]
		if !ok {
			continue
		}
		prevalence := float64(n-i) / float64(n)
		c.Score += baselineBoostWeight * prevalence
	}
}

// baselineBoostWeight sets the scale of the baseline-mod additive boost
// relative to typical RRF scores (each query contributes at most ~1/61).
const baselineBoostWeight = 0.05
