// Assembler sequences the build-board request; see doc.go for the
// package-level flow description.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/architect"
	"github.com/modforge/assembler/internal/board"
	"github.com/modforge/assembler/internal/bridge"
	"github.com/modforge/assembler/internal/categorizer"
	"github.com/modforge/assembler/internal/depresolver"
	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/modstore"
	"github.com/modforge/assembler/internal/planner"
	"github.com/modforge/assembler/internal/progress"
	"github.com/modforge/assembler/internal/quota"
	"github.com/modforge/assembler/internal/retrieval"
	"github.com/modforge/assembler/internal/selector"
	"github.com/modforge/assembler/internal/tracer"
)

// Assembler wires every assembly-flow component into the themed and
// simple sequences of §4.P.
type Assembler struct {
	planner     *planner.Planner
	architect   *architect.Architect
	retriever   *retrieval.Retriever
	selector    *selector.Selector
	categorizer *categorizer.Categorizer
	store       *modstore.Store
	quota       *quota.Gate
}

// NewAssembler constructs an Assembler from its component stages.
func NewAssembler(p *planner.Planner, a *architect.Architect, r *retrieval.Retriever, s *selector.Selector, c *categorizer.Categorizer, store *modstore.Store, q *quota.Gate) *Assembler {
	return &Assembler{planner: p, architect: a, retriever: r, selector: s, categorizer: c, store: store, quota: q}
}

// assemblyState carries the running totals a Run accumulates across
// stages, kept off the Assembler itself since Run must be safe for
// concurrent requests.
type assemblyState struct {
	tokensUsed int64
	costUSD    float64
	candidates int
}

func (s *assemblyState) addUsage(u llmUsage, cost float64) {
	s.tokensUsed += int64(u.InputTokens + u.OutputTokens)
	s.costUSD += cost
}

// llmUsage is the narrow shape Run needs from llmgateway.Usage, kept
// local so this file doesn't need to import llmgateway just for a
// two-field struct.
type llmUsage struct {
	InputTokens  int
	OutputTokens int
}

// Run executes the build-board request end to end: Query Planner, the
// themed or simple stage sequence per the plan's request_type, Board
// Assembler, and quota/tracer finalization. On any stage failure it
// emits an `error` progress event naming the failing stage and returns
// the error; the Tracer's accumulated trace is still available via
// tr.Trace() regardless of outcome.
func (a *Assembler) Run(ctx context.Context, req BuildRequest, stream *progress.Stream, tr *tracer.Tracer) (BuildResult, error) {
	now := time.Now()
	user, err := a.quota.Check(ctx, req.UserID, req.Tier, req.MaxMods, now)
	if err != nil {
		stream.Error("quota", err.Error())
		return BuildResult{}, err
	}
	_ = user

	state := &assemblyState{}

	plan, err := a.runQueryPlanner(ctx, req, stream, tr, state)
	if err != nil {
		stream.Error(StageQueryPlanner, err.Error())
		return BuildResult{}, err
	}

	themed := plan.UseArchitecturePlanner || req.UseArchitectureV3

	var (
		initialArch domain.PlannedArchitecture
		candidates  []retrieval.Candidate
	)

	if themed {
		planResult, err := a.runArchitecturePlan(ctx, req, stream, tr, state)
		if err != nil {
			stream.Error(StageArchitecturePlan, err.Error())
			return BuildResult{}, err
		}
		initialArch = planResult.Architecture
		plan.BaselineMods = append(plan.BaselineMods, planResult.BaselineMods...)
	}

	candidates, err = a.runRetrieval(ctx, req, plan, stream, tr, state)
	if err != nil {
		stream.Error(StageRetrieval, err.Error())
		return BuildResult{}, err
	}

	var archPtr *domain.PlannedArchitecture
	if themed {
		archPtr = &initialArch
	}
	selResult, err := a.runFinalSelector(ctx, req, candidates, archPtr, stream, tr, state)
	if err != nil {
		stream.Error(StageFinalSelector, err.Error())
		return BuildResult{}, err
	}
	if len(selResult.Selections) == 0 {
		err := fmt.Errorf("%w: no candidate survived selection", apierr.ErrNoViableSelection)
		stream.Error(StageFinalSelector, err.Error())
		return BuildResult{}, err
	}

	selectedMods, err := a.fetchSelected(ctx, selResult.Selections)
	if err != nil {
		stream.Error(StageFinalSelector, err.Error())
		return BuildResult{}, err
	}

	depResult, err := a.runDependencyResolver(ctx, req, selectedMods, stream, tr)
	if err != nil {
		stream.Error(StageDependencyResolver, err.Error())
		return BuildResult{}, err
	}

	allMods := append(append([]domain.Mod{}, selectedMods...), depResult.AddedDependencies...)
	allMods, err = a.runLoaderBridge(ctx, req, allMods, stream, tr)
	if err != nil {
		stream.Error(StageLoaderBridge, err.Error())
		return BuildResult{}, err
	}

	var categories []board.CategoryInput
	if themed {
		categories, err = a.runArchitectureRefine(ctx, req, initialArch, allMods, stream, tr, state)
	} else {
		categories, err = a.runCategorizer(ctx, allMods, stream, tr, state)
	}
	if err != nil {
		stage := StageCategorizer
		if themed {
			stage = StageArchitectureRefine
		}
		stream.Error(stage, err.Error())
		return BuildResult{}, err
	}

	buildID := uuid.NewString()
	boardState := a.assembleBoard(req, buildID, categories, allMods)

	stream.Stage(StageBoardAssembler, 95, "")

	if a.store != nil {
		record := modstore.ModpackBuildRecord{
			BuildID:   buildID,
			UserID:    req.UserID,
			Board:     boardState,
			CreatedAt: now.Unix(),
		}
		if err := a.store.RecordModpackBuild(ctx, record); err != nil {
			stream.Error(StageBoardAssembler, err.Error())
			return BuildResult{}, fmt.Errorf("recording modpack build: %w", err)
		}
	}

	result := BuildResult{
		Success:     true,
		BuildID:     buildID,
		BoardState:  boardState,
		Summary:     fmt.Sprintf("%d mods across %d categories", len(boardState.Mods), len(boardState.Categories)),
		Explanation: explanationFor(plan, initialArch.PackArchetype, themed),
		Stats: BuildStats{
			CandidatesConsidered: state.candidates,
			ModsSelected:         len(allMods),
			DependenciesAdded:    len(depResult.AddedDependencies),
			Conflicts:            len(depResult.Conflicts),
			TokensUsed:           state.tokensUsed,
			CostUSD:              state.costUSD,
		},
	}

	if err := a.quota.Complete(ctx, req.UserID, state.tokensUsed, now); err != nil {
		stream.Error("quota", err.Error())
		return BuildResult{}, fmt.Errorf("completing quota accounting: %w", err)
	}

	stream.Complete(result)
	return result, nil
}

func (a *Assembler) runQueryPlanner(ctx context.Context, req BuildRequest, stream *progress.Stream, tr *tracer.Tracer, state *assemblyState) (domain.SearchPlan, error) {
	stream.Stage(StageQueryPlanner, 5, "")
	var plan domain.SearchPlan
	err := tr.Stage(ctx, StageQueryPlanner, func(ctx context.Context) error {
		p, usage, cost, err := a.planner.Plan(ctx, planner.Input{
			UserPrompt:      req.Prompt,
			MCVersion:       req.MCVersion,
			ModLoader:       req.ModLoader,
			CurrentModNames: req.CurrentMods,
			MaxMods:         req.MaxMods,
		})
		if err != nil {
			return err
		}
		plan = p
		tr.RecordLLMCall(StageQueryPlanner, usage.InputTokens, usage.OutputTokens, cost)
		state.addUsage(llmUsage(usage), cost)
		return nil
	})
	return plan, err
}

func (a *Assembler) runArchitecturePlan(ctx context.Context, req BuildRequest, stream *progress.Stream, tr *tracer.Tracer, state *assemblyState) (architect.PlanResult, error) {
	stream.Stage(StageModpackSearch, 10, "")
	stream.Stage(StageArchitecturePlan, 15, "")
	var result architect.PlanResult
	err := tr.Stage(ctx, StageArchitecturePlan, func(ctx context.Context) error {
		r, err := a.architect.Plan(ctx, architect.PlanInput{UserPrompt: req.Prompt, MaxMods: req.MaxMods})
		if err != nil {
			return err
		}
		result = r
		tr.RecordLLMCall(StageArchitecturePlan, result.Usage.InputTokens, result.Usage.OutputTokens, result.CostUSD)
		state.addUsage(llmUsage(result.Usage), result.CostUSD)
		return nil
	})
	return result, err
}

func (a *Assembler) runRetrieval(ctx context.Context, req BuildRequest, plan domain.SearchPlan, stream *progress.Stream, tr *tracer.Tracer, state *assemblyState) ([]retrieval.Candidate, error) {
	stream.Stage(StageRetrieval, 35, "")
	var candidates []retrieval.Candidate
	err := tr.Stage(ctx, StageRetrieval, func(ctx context.Context) error {
		c, err := a.retriever.Search(ctx, retrieval.Input{
			Plan:        plan,
			Loader:      req.ModLoader,
			GameVersion: req.MCVersion,
		})
		if err != nil {
			return err
		}
		candidates = c
		state.candidates = len(c)
		return nil
	})
	return candidates, err
}

func (a *Assembler) runFinalSelector(ctx context.Context, req BuildRequest, candidates []retrieval.Candidate, arch *domain.PlannedArchitecture, stream *progress.Stream, tr *tracer.Tracer, state *assemblyState) (selector.Result, error) {
	stream.Stage(StageFinalSelector, 50, "")
	var result selector.Result
	err := tr.Stage(ctx, StageFinalSelector, func(ctx context.Context) error {
		r, err := a.selector.Select(ctx, selector.Input{
			UserPrompt:   req.Prompt,
			MaxMods:      req.MaxMods,
			Candidates:   candidates,
			Architecture: arch,
			CurrentMods:  req.CurrentMods,
		})
		if err != nil {
			return err
		}
		result = r
		tr.RecordLLMCall(StageFinalSelector, result.Usage.InputTokens, result.Usage.OutputTokens, result.CostUSD)
		state.addUsage(llmUsage(result.Usage), result.CostUSD)
		return nil
	})
	return result, err
}

func (a *Assembler) fetchSelected(ctx context.Context, selections []domain.SelectedMod) ([]domain.Mod, error) {
	ids := make([]string, len(selections))
	for i, s := range selections {
		ids[i] = s.SourceID
	}
	return a.store.GetModsBatch(ctx, ids)
}

func (a *Assembler) runDependencyResolver(ctx context.Context, req BuildRequest, selected []domain.Mod, stream *progress.Stream, tr *tracer.Tracer) (depresolver.Result, error) {
	stream.Stage(StageDependencyResolver, 65, "")
	var result depresolver.Result
	err := tr.Stage(ctx, StageDependencyResolver, func(ctx context.Context) error {
		result = depresolver.Resolve(depresolver.Input{
			SelectedMods: selected,
			Loader:       req.ModLoader,
			GameVersion:  req.MCVersion,
			Lookup: func(sourceID string) (domain.Mod, bool) {
				m, err := a.store.GetMod(ctx, sourceID)
				if err != nil {
					return domain.Mod{}, false
				}
				return m, true
			},
		})
		return nil
	})
	return result, err
}

func (a *Assembler) runLoaderBridge(ctx context.Context, req BuildRequest, mods []domain.Mod, stream *progress.Stream, tr *tracer.Tracer) ([]domain.Mod, error) {
	stream.Stage(StageLoaderBridge, 72, "")
	var out []domain.Mod
	err := tr.Stage(ctx, StageLoaderBridge, func(ctx context.Context) error {
		policy := bridge.New(req.ModLoader, req.FabricCompatMode)
		filtered := policy.FilterForbidden(mods)

		if policy.NeedsBridge(filtered) {
			bridgeIDs := policy.BridgeModIDs()
			bridgeMods, err := a.store.GetModsBatch(ctx, bridgeIDs)
			if err != nil {
				return fmt.Errorf("resolving bridge mods: %w", err)
			}
			filtered = append(filtered, bridgeMods...)
		}

		out = filtered
		return nil
	})
	return out, err
}

func (a *Assembler) runArchitectureRefine(ctx context.Context, req BuildRequest, initial domain.PlannedArchitecture, mods []domain.Mod, stream *progress.Stream, tr *tracer.Tracer, state *assemblyState) ([]board.CategoryInput, error) {
	stream.Stage(StageArchitectureRefine, 85, "")
	var categories []board.CategoryInput
	err := tr.Stage(ctx, StageArchitectureRefine, func(ctx context.Context) error {
		result, err := a.architect.Refine(ctx, architect.RefineInput{
			UserPrompt:   req.Prompt,
			Initial:      initial,
			SelectedMods: mods,
		})
		if err != nil {
			return err
		}
		tr.RecordLLMCall(StageArchitectureRefine, result.Usage.InputTokens, result.Usage.OutputTokens, result.CostUSD)
		state.addUsage(llmUsage(result.Usage), result.CostUSD)

		categories = make([]board.CategoryInput, len(result.Categories))
		for i, c := range result.Categories {
			categories[i] = board.CategoryInput{Name: c.Category.Name, Mods: c.Mods}
		}
		return nil
	})
	return categories, err
}

func (a *Assembler) runCategorizer(ctx context.Context, mods []domain.Mod, stream *progress.Stream, tr *tracer.Tracer, state *assemblyState) ([]board.CategoryInput, error) {
	stream.Stage(StageCategorizer, 85, "")
	var categories []board.CategoryInput
	err := tr.Stage(ctx, StageCategorizer, func(ctx context.Context) error {
		result, err := a.categorizer.Categorize(ctx, mods)
		if err != nil {
			return err
		}
		tr.RecordLLMCall(StageCategorizer, result.Usage.InputTokens, result.Usage.OutputTokens, result.CostUSD)
		state.addUsage(llmUsage(result.Usage), result.CostUSD)
		categories = groupByCategory(mods, result.Assignments)
		return nil
	})
	return categories, err
}

// groupByCategory buckets mods by their categorizer assignment,
// preserving the fixed category ordering (internal/categorizer keeps
// CategoryOther as a total fallback) and dropping categories nothing
// was assigned to.
func groupByCategory(mods []domain.Mod, assignments []categorizer.Assignment) []board.CategoryInput {
	byID := make(map[string]categorizer.Category, len(assignments))
	for _, a := range assignments {
		byID[a.SourceID] = a.Category
	}

	order := []categorizer.Category{
		categorizer.CategoryPerformance, categorizer.CategoryGraphics, categorizer.CategoryUtility,
		categorizer.CategoryWorld, categorizer.CategoryGameplay, categorizer.CategoryContent,
		categorizer.CategoryLibraries, categorizer.CategoryOther,
	}
	buckets := make(map[categorizer.Category][]domain.Mod, len(order))
	for _, m := range mods {
		cat := byID[m.SourceID]
		if cat == "" {
			cat = categorizer.CategoryOther
		}
		buckets[cat] = append(buckets[cat], m)
	}

	categories := make([]board.CategoryInput, 0, len(order))
	for _, cat := range order {
		if len(buckets[cat]) == 0 {
			continue
		}
		categories = append(categories, board.CategoryInput{Name: string(cat), Mods: buckets[cat]})
	}
	return categories
}

func (a *Assembler) assembleBoard(req BuildRequest, buildID string, categories []board.CategoryInput, mods []domain.Mod) domain.BoardState {
	depsBySource := make(map[string][]string, len(mods))
	known := make(map[string]struct{}, len(mods))
	for _, m := range mods {
		known[m.SourceID] = struct{}{}
	}
	for _, m := range mods {
		for _, dep := range m.Dependencies {
			if dep.Type != domain.DependencyRequired {
				continue
			}
			if _, ok := known[dep.ProjectID]; ok {
				depsBySource[m.SourceID] = append(depsBySource[m.SourceID], dep.ProjectID)
			}
		}
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = buildID
	}

	return board.Assemble(projectID, categories, func(sourceID string) []string {
		return depsBySource[sourceID]
	})
}

func explanationFor(plan domain.SearchPlan, archetype string, themed bool) string {
	if themed {
		return fmt.Sprintf("themed pack assembled from archetype %q", archetype)
	}
	return fmt.Sprintf("%s request resolved directly from retrieval", plan.RequestType)
}
