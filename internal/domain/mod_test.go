package domain

import "testing"

func TestMod_UsableUnder(t *testing.T) {
	m := Mod{Loaders: []string{"Fabric", "Quilt"}}

	if !m.UsableUnder("fabric") {
		t.Error("expected fabric to be usable (case-insensitive match)")
	}
	if m.UsableUnder("forge") {
		t.Error("forge should not be usable")
	}

	universal := Mod{Loaders: []string{"universal"}}
	if !universal.UsableUnder("forge") {
		t.Error("universal mods should be usable under any loader")
	}
}

func TestMod_HasAnyCapability(t *testing.T) {
	m := Mod{Capabilities: []string{"combat.weapons.melee", "performance.rendering"}}

	if !m.HasAnyCapability([]string{"world.generation", "combat.weapons.melee"}) {
		t.Error("expected any-match capability filter to find a shared capability")
	}
	if m.HasAnyCapability([]string{"world.generation"}) {
		t.Error("expected no match")
	}
	if !m.HasAnyCapability(nil) {
		t.Error("empty filter should match everything")
	}
}

func TestMod_IncompatibleWith(t *testing.T) {
	m := Mod{Incompatibilities: map[string][]string{"fabric": {"some-other-mod"}}}

	if !m.IncompatibleWith("fabric", "some-other-mod") {
		t.Error("expected declared incompatibility to be found")
	}
	if m.IncompatibleWith("forge", "some-other-mod") {
		t.Error("incompatibility is loader-scoped, should not match a different loader")
	}
}

func TestBoardState_Clone(t *testing.T) {
	b := BoardState{
		Mods: []BoardMod{{SourceID: "a", CachedDependencies: []string{"dep1"}}},
	}
	clone := b.Clone()
	clone.Mods[0].CachedDependencies[0] = "mutated"

	if b.Mods[0].CachedDependencies[0] == "mutated" {
		t.Error("Clone() did not deep copy CachedDependencies; original was mutated")
	}
}

func TestBoardState_CategoryByID(t *testing.T) {
	b := BoardState{Categories: []BoardCategory{{ID: "cat-1"}}}

	if _, ok := b.CategoryByID("cat-1"); !ok {
		t.Error("expected to find existing category")
	}
	if _, ok := b.CategoryByID("missing"); ok {
		t.Error("expected not to find missing category")
	}
}
