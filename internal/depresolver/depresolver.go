// Package depresolver implements the Dependency Resolver (§4.D): a
// breadth-first closure over each selected mod's required dependencies,
// filtered by loader/version compatibility and checked for bidirectional
// incompatibility against everything already on the board. Grounded on
// original_source/api/dependency_resolver.py's traversal shape; the
// popularity-based conflict auto-resolution it performs is NOT carried
// over — conflicts are reported to the caller instead (an explicit open
// question decided in favor of caller-visible conflicts, see DESIGN.md).
package depresolver

import "github.com/modforge/assembler/internal/domain"

const maxDepth = 3

// ModLookup resolves a mod by source_id, the Mod Store's batch-get shape.
type ModLookup func(sourceID string) (domain.Mod, bool)

// Conflict records two mods that declared an incompatibility with each
// other under the resolved loader.
type Conflict struct {
	SourceID      string
	ConflictsWith string
	Reason        string
}

// Result is the Dependency Resolver's output.
type Result struct {
	AddedDependencies []domain.Mod
	Conflicts         []Conflict
}

// Input bundles the already-selected mods and the target environment.
type Input struct {
	SelectedMods []domain.Mod
	Loader       string
	GameVersion  string
	Lookup       ModLookup
}

// Resolve walks each selected mod's required-dependency graph up to
// maxDepth, filtering by loader/version compatibility and checking
// bidirectional incompatibility against everything already known (the
// original selection plus dependencies already queued for addition).
func Resolve(in Input) Result {
	selected := make(map[string]struct{}, len(in.SelectedMods))
	known := make([]domain.Mod, 0, len(in.SelectedMods))
	for _, m := range in.SelectedMods {
		selected[m.SourceID] = struct{}{}
		known = append(known, m)
	}

	processed := make(map[string]struct{})
	var added []domain.Mod
	var conflicts []Conflict

	var walk func(m domain.Mod, depth int)
	walk = func(m domain.Mod, depth int) {
		if depth >= maxDepth {
			return
		}
		if _, ok := processed[m.SourceID]; ok {
			return
		}
		processed[m.SourceID] = struct{}{}

		for _, dep := range m.Dependencies {
			if dep.Type != domain.DependencyRequired {
				continue
			}
			if _, ok := selected[dep.ProjectID]; ok {
				continue
			}
			if alreadyQueued(added, dep.ProjectID) {
				continue
			}

			depMod, ok := in.Lookup(dep.ProjectID)
			if !ok {
				continue
			}
			if !depMod.UsableUnder(in.Loader) {
				continue
			}
			if !versionCompatible(depMod, in.GameVersion) {
				continue
			}

			if conflict, reason := findConflict(depMod, known, in.Loader); conflict != "" {
				conflicts = append(conflicts, Conflict{SourceID: depMod.SourceID, ConflictsWith: conflict, Reason: reason})
				continue
			}

			added = append(added, depMod)
			known = append(known, depMod)
			walk(depMod, depth+1)
		}
	}

	for _, m := range in.SelectedMods {
		walk(m, 0)
	}

	return Result{AddedDependencies: added, Conflicts: conflicts}
}

func alreadyQueued(added []domain.Mod, sourceID string) bool {
	for _, m := range added {
		if m.SourceID == sourceID {
			return true
		}
	}
	return false
}

func versionCompatible(m domain.Mod, gameVersion string) bool {
	if len(m.GameVersions) == 0 || gameVersion == "" {
		return true
	}
	return m.SupportsVersion(gameVersion)
}

// findConflict checks bidirectional incompatibility (§4.D.3) between a
// candidate dependency and everything already known, under the given
// loader. Returns the conflicting mod's name/source_id and a reason.
func findConflict(candidate domain.Mod, existing []domain.Mod, loader string) (string, string) {
	for _, e := range existing {
		if candidate.IncompatibleWith(loader, e.SourceID) {
			return displayName(e), "declares incompatibility with " + displayName(e)
		}
		if e.IncompatibleWith(loader, candidate.SourceID) {
			return displayName(e), displayName(e) + " declares incompatibility with this mod"
		}
	}
	return "", ""
}

func displayName(m domain.Mod) string {
	if m.Name != "" {
		return m.Name
	}
	return m.SourceID
}
