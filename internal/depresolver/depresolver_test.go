package depresolver

import (
	"testing"

	"github.com/modforge/assembler/internal/domain"
)

func lookupFrom(mods ...domain.Mod) ModLookup {
	byID := make(map[string]domain.Mod, len(mods))
	for _, m := range mods {
		byID[m.SourceID] = m
	}
	return func(sourceID string) (domain.Mod, bool) {
		m, ok := byID[sourceID]
		return m, ok
	}
}

func TestResolve_AddsRequiredDependencyTransitively(t *testing.T) {
	top := domain.Mod{SourceID: "top", Loaders: []string{"fabric"},
		Dependencies: []domain.Dependency{{ProjectID: "mid", Type: domain.DependencyRequired}}}
	mid := domain.Mod{SourceID: "mid", Loaders: []string{"fabric"},
		Dependencies: []domain.Dependency{{ProjectID: "leaf", Type: domain.DependencyRequired}}}
	leaf := domain.Mod{SourceID: "leaf", Loaders: []string{"fabric"}}

	result := Resolve(Input{
		SelectedMods: []domain.Mod{top},
		Loader:       "fabric",
		Lookup:       lookupFrom(top, mid, leaf),
	})

	if len(result.AddedDependencies) != 2 {
		t.Fatalf("expected mid+leaf added, got %+v", result.AddedDependencies)
	}
}

func TestResolve_SkipsOptionalDependencies(t *testing.T) {
	top := domain.Mod{SourceID: "top", Loaders: []string{"fabric"},
		Dependencies: []domain.Dependency{{ProjectID: "opt", Type: domain.DependencyOptional}}}
	opt := domain.Mod{SourceID: "opt", Loaders: []string{"fabric"}}

	result := Resolve(Input{SelectedMods: []domain.Mod{top}, Loader: "fabric", Lookup: lookupFrom(top, opt)})
	if len(result.AddedDependencies) != 0 {
		t.Errorf("expected optional dependency skipped, got %+v", result.AddedDependencies)
	}
}

func TestResolve_SkipsAlreadySelectedDependency(t *testing.T) {
	top := domain.Mod{SourceID: "top", Loaders: []string{"fabric"},
		Dependencies: []domain.Dependency{{ProjectID: "already-there", Type: domain.DependencyRequired}}}
	already := domain.Mod{SourceID: "already-there", Loaders: []string{"fabric"}}

	result := Resolve(Input{SelectedMods: []domain.Mod{top, already}, Loader: "fabric", Lookup: lookupFrom(top, already)})
	if len(result.AddedDependencies) != 0 {
		t.Errorf("expected no duplicate addition, got %+v", result.AddedDependencies)
	}
}

func TestResolve_SkipsLoaderIncompatibleDependency(t *testing.T) {
	top := domain.Mod{SourceID: "top", Loaders: []string{"fabric"},
		Dependencies: []domain.Dependency{{ProjectID: "forge-only", Type: domain.DependencyRequired}}}
	forgeOnly := domain.Mod{SourceID: "forge-only", Loaders: []string{"forge"}}

	result := Resolve(Input{SelectedMods: []domain.Mod{top}, Loader: "fabric", Lookup: lookupFrom(top, forgeOnly)})
	if len(result.AddedDependencies) != 0 {
		t.Errorf("expected loader-incompatible dependency skipped, got %+v", result.AddedDependencies)
	}
}

func TestResolve_ReportsBidirectionalIncompatibility(t *testing.T) {
	top := domain.Mod{SourceID: "top", Loaders: []string{"fabric"},
		Dependencies: []domain.Dependency{{ProjectID: "conflicting", Type: domain.DependencyRequired}}}
	existing := domain.Mod{SourceID: "existing-on-board", Loaders: []string{"fabric"},
		Incompatibilities: map[string][]string{"fabric": {"conflicting"}}}
	conflicting := domain.Mod{SourceID: "conflicting", Loaders: []string{"fabric"}}

	result := Resolve(Input{
		SelectedMods: []domain.Mod{top, existing},
		Loader:       "fabric",
		Lookup:       lookupFrom(top, existing, conflicting),
	})

	if len(result.AddedDependencies) != 0 {
		t.Errorf("expected conflicting dependency not added, got %+v", result.AddedDependencies)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 reported conflict, got %+v", result.Conflicts)
	}
}

func TestResolve_StopsAtMaxDepth(t *testing.T) {
	mods := make([]domain.Mod, maxDepth+3)
	for i := range mods {
		id := "m" + string(rune('a'+i))
		m := domain.Mod{SourceID: id, Loaders: []string{"fabric"}}
		if i+1 < len(mods) {
			next := "m" + string(rune('a'+i+1))
			m.Dependencies = []domain.Dependency{{ProjectID: next, Type: domain.DependencyRequired}}
		}
		mods[i] = m
	}

	result := Resolve(Input{SelectedMods: []domain.Mod{mods[0]}, Loader: "fabric", Lookup: lookupFrom(mods...)})
	if len(result.AddedDependencies) > maxDepth {
		t.Errorf("expected dependency chain capped at depth %d, got %d added", maxDepth, len(result.AddedDependencies))
	}
}
