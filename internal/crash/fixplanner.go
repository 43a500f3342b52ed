package crash

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modforge/assembler/internal/domain"
)

// Registry is the external mod registry lookup the Fix Planner validates
// suggestions against before promoting them to operations (§4.L.5).
type Registry interface {
	// FindMod resolves a name/slug to a source_id, if the mod exists.
	FindMod(ctx context.Context, nameOrSlug string) (sourceID string, ok bool)
	// HasCompatibleVersion reports whether sourceID has a version
	// compatible with the given loader/game version.
	HasCompatibleVersion(ctx context.Context, sourceID, loader, gameVersion string) bool
}

var priorityRank = map[domain.Priority]int{
	domain.PriorityCritical: 0,
	domain.PriorityHigh:     1,
	domain.PriorityNormal:   2,
	domain.PriorityLow:      3,
}

// PlanResult is the Fix Planner's output: validated operations plus
// warnings for suggestions that failed validation.
type PlanResult struct {
	Operations []domain.Operation
	Warnings   []string
}

// PlanFixes sorts suggested fixes by priority, deduplicates, and
// validates each against the board state and the external registry,
// demoting anything that fails validation to a warning instead of an
// operation.
func PlanFixes(ctx context.Context, fixes []SuggestedFix, board domain.BoardState, loader, gameVersion string, registry Registry) PlanResult {
	sorted := make([]SuggestedFix, len(fixes))
	copy(sorted, fixes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rankOf(sorted[i].Priority) < rankOf(sorted[j].Priority)
	})

	var result PlanResult
	seen := make(map[string]struct{})

	for _, fix := range sorted {
		if fix.Action == "" || fix.TargetMod == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("invalid fix suggestion: action=%q target=%q", fix.Action, fix.TargetMod))
			continue
		}
		key := string(fix.Action) + ":" + fix.TargetMod
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		op, warning := validateFix(ctx, fix, board, loader, gameVersion, registry)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
			continue
		}
		result.Operations = append(result.Operations, op)
	}

	return result
}

func rankOf(p domain.Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[domain.PriorityNormal]
}

func validateFix(ctx context.Context, fix SuggestedFix, board domain.BoardState, loader, gameVersion string, registry Registry) (domain.Operation, string) {
	op := domain.Operation{Kind: fix.Action, Reason: fix.Reason, Priority: fix.Priority}

	switch fix.Action {
	case domain.OpRemoveMod, domain.OpDisableMod:
		mod, ok := findBoardMod(board, fix.TargetMod)
		if !ok {
			return domain.Operation{}, fmt.Sprintf("cannot %s %q: mod not found on board", fix.Action, fix.TargetMod)
		}
		op.Target = mod.UniqueID
		op.SourceID = mod.SourceID
		return op, ""

	case domain.OpUpdateMod:
		mod, ok := findBoardMod(board, fix.TargetMod)
		if !ok {
			return domain.Operation{}, fmt.Sprintf("cannot update %q: mod not found on board", fix.TargetMod)
		}
		if registry == nil || !registry.HasCompatibleVersion(ctx, mod.SourceID, loader, gameVersion) {
			return domain.Operation{}, fmt.Sprintf("cannot update %q: no compatible version found in registry", fix.TargetMod)
		}
		op.Target = mod.UniqueID
		op.SourceID = mod.SourceID
		return op, ""

	case domain.OpAddMod:
		if registry == nil {
			return domain.Operation{}, fmt.Sprintf("cannot add %q: registry unavailable", fix.TargetMod)
		}
		sourceID, ok := registry.FindMod(ctx, fix.TargetMod)
		if !ok || !registry.HasCompatibleVersion(ctx, sourceID, loader, gameVersion) {
			return domain.Operation{}, fmt.Sprintf("cannot add mod %q: not found or not compatible with %s/%s", fix.TargetMod, loader, gameVersion)
		}
		op.SourceID = sourceID
		return op, ""

	case domain.OpClearLoaderCache:
		return op, ""

	default:
		return domain.Operation{}, fmt.Sprintf("unrecognized fix action %q for %q", fix.Action, fix.TargetMod)
	}
}

func findBoardMod(board domain.BoardState, nameOrSlugOrID string) (domain.BoardMod, bool) {
	want := strings.ToLower(nameOrSlugOrID)
	for _, m := range board.Mods {
		if strings.ToLower(m.SourceID) == want || strings.ToLower(m.Slug) == want || strings.ToLower(m.Title) == want {
			return m, true
		}
	}
	return domain.BoardMod{}, false
}
