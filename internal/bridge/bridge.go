// Package bridge implements the Loader-Bridge Policy (§4.J): a small set
// of declarative rules, applied after dependency resolution, that forbid
// known-incompatible mods and inject bridge/compatibility mods when a
// pack mixes loader ecosystems. Grounded on
// original_source/api/fabric_compat.py's data-driven rule table, reduced
// from a JSON-config-plus-DB-fetch design to a Go data table since the
// mods it names are resolved through the Mod Store like any other mod.
package bridge

import "github.com/modforge/assembler/internal/domain"

const (
	loaderFabric   = "fabric"
	loaderForge    = "forge"
	loaderNeoForge = "neoforge"
)

// forbiddenOn maps a source_id to the loaders it must never be selected
// for, even under compatibility mode.
var forbiddenOn = map[string][]string{
	"fabric-api": {loaderForge, loaderNeoForge},
}

// bridgeModIDs is the fixed bridge set injected when a Fabric pack
// carries a Forge/NeoForge mod under compatibility mode.
var bridgeModIDs = []string{"connector", "forgified-fabric-api"}

// renderingEquivalents maps the target loader to its Sodium-family
// rendering-optimizer equivalent. Selection table is data, not code, per
// §4.J so a new loader/optimizer pairing is a table edit, not new branching
// code.
var renderingEquivalents = map[string]string{
	loaderFabric:   "sodium",
	loaderForge:    "rubidium",
	loaderNeoForge: "embeddium",
}

// Policy applies the Loader-Bridge rules for one target loader.
type Policy struct {
	TargetLoader     string
	FabricCompatMode bool
}

// New constructs a Policy.
func New(targetLoader string, fabricCompatMode bool) Policy {
	return Policy{TargetLoader: targetLoader, FabricCompatMode: fabricCompatMode}
}

// FilterForbidden drops any mod the policy forbids on the target loader,
// regardless of compatibility mode.
func (p Policy) FilterForbidden(mods []domain.Mod) []domain.Mod {
	out := make([]domain.Mod, 0, len(mods))
	for _, m := range mods {
		if p.isForbidden(m.SourceID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (p Policy) isForbidden(sourceID string) bool {
	for _, loader := range forbiddenOn[sourceID] {
		if loader == p.TargetLoader {
			return true
		}
	}
	return false
}

// NeedsBridge reports whether the bridge set must be injected: the
// target is a Fabric pack, compatibility mode is on, and at least one
// selected mod is usable under Forge/NeoForge but not under Fabric.
func (p Policy) NeedsBridge(mods []domain.Mod) bool {
	if p.TargetLoader != loaderFabric || !p.FabricCompatMode {
		return false
	}
	for _, m := range mods {
		if (m.UsableUnder(loaderForge) || m.UsableUnder(loaderNeoForge)) && !m.UsableUnder(loaderFabric) {
			return true
		}
	}
	return false
}

// BridgeModIDs returns the source IDs to resolve through the Dependency
// Resolver (§4.D) when NeedsBridge reports true. Callers attach
// domain.RoleBridge to whatever the resolver returns for these IDs.
func (p Policy) BridgeModIDs() []string {
	if p.TargetLoader != loaderFabric {
		return nil
	}
	out := make([]string, len(bridgeModIDs))
	copy(out, bridgeModIDs)
	return out
}

// RenderingEquivalent returns the target loader's rendering-optimizer
// equivalent (the Sodium-family mod built for that loader), if any.
func RenderingEquivalent(targetLoader string) (string, bool) {
	id, ok := renderingEquivalents[targetLoader]
	return id, ok
}
