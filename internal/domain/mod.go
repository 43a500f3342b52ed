// Package domain holds the core data model shared by every pipeline stage:
// mods, reference modpacks, users, search plans, architectures, board state,
// and crash sessions. Types here are read-only views produced elsewhere
// (mod ingestion, user auth) or accumulated by the orchestrators in this
// module; nothing in this package performs I/O.
package domain

import "strings"

// DependencyType classifies a declared relation between two mods.
type DependencyType string

const (
	DependencyRequired     DependencyType = "required"
	DependencyOptional     DependencyType = "optional"
	DependencyEmbedded     DependencyType = "embedded"
	DependencyIncompatible DependencyType = "incompatible"
)

// Dependency is one entry of Mod.Dependencies.
type Dependency struct {
	ProjectID      string         `json:"project_id"`
	Type           DependencyType `json:"dependency_type"`
	VersionRange   string         `json:"version_range,omitempty"`
}

// Mod is the identity + content + compatibility + semantics record for a
// single registry entry. Mods are created by an external ingestion job and
// are read-only within this module.
type Mod struct {
	SourceID    string `json:"source_id"`
	Slug        string `json:"slug"`

	Name        string `json:"name"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	IconURL     string `json:"icon_url,omitempty"`

	Loaders      []string `json:"loaders"`
	GameVersions []string `json:"game_versions"`

	Capabilities      []string `json:"capabilities"`
	ModrinthCategories []string `json:"modrinth_categories,omitempty"`
	Tags              []string `json:"tags,omitempty"`

	Dependencies      []Dependency          `json:"dependencies,omitempty"`
	Incompatibilities map[string][]string   `json:"incompatibilities,omitempty"` // loader -> source_ids

	Downloads  int64 `json:"downloads"`
	Followers  int64 `json:"followers"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// universalLoader is the pseudo-loader name meaning "compatible with every
// loader" per §3's Mod invariant.
const universalLoader = "universal"

// UsableUnder reports whether the mod is usable under the given loader,
// per §3: "a mod is usable under loader L iff L ∈ loaders ∪ {universal}".
func (m Mod) UsableUnder(loader string) bool {
	for _, l := range m.Loaders {
		if strings.EqualFold(l, loader) || strings.EqualFold(l, universalLoader) {
			return true
		}
	}
	return false
}

// SupportsVersion reports whether the mod declares compatibility with the
// given game version.
func (m Mod) SupportsVersion(version string) bool {
	for _, v := range m.GameVersions {
		if v == version {
			return true
		}
	}
	return false
}

// HasAnyCapability reports whether the mod declares any of the given
// capabilities — used for Mod Store's any-match capability filter.
func (m Mod) HasAnyCapability(caps []string) bool {
	if len(caps) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(m.Capabilities))
	for _, c := range m.Capabilities {
		set[c] = struct{}{}
	}
	for _, want := range caps {
		if _, ok := set[want]; ok {
			return true
		}
	}
	return false
}

// IncompatibleWith reports whether m declares an incompatibility with
// other under the given loader — one direction of the bidirectional check
// in §4.D.3.
func (m Mod) IncompatibleWith(loader, otherSourceID string) bool {
	ids, ok := m.Incompatibilities[loader]
	if !ok {
		return false
	}
	for _, id := range ids {
		if id == otherSourceID {
			return true
		}
	}
	return false
}
