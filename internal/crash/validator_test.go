package crash

import (
	"testing"

	"github.com/modforge/assembler/internal/domain"
)

func boardWithMods(sourceIDs ...string) domain.BoardState {
	var mods []domain.BoardMod
	for _, id := range sourceIDs {
		mods = append(mods, domain.BoardMod{SourceID: id, Slug: id})
	}
	return domain.BoardState{Mods: mods}
}

func TestValidateFreshness_HighOverlapIsNotStale(t *testing.T) {
	board := boardWithMods("sodium", "lithium", "jei")
	ratio, stale := ValidateFreshness([]string{"sodium", "lithium"}, board)
	if stale {
		t.Errorf("expected fresh log, got stale with ratio %f", ratio)
	}
	if ratio < overlapThreshold {
		t.Errorf("expected ratio above threshold, got %f", ratio)
	}
}

func TestValidateFreshness_LowOverlapIsStale(t *testing.T) {
	board := boardWithMods("sodium", "lithium", "jei", "rei", "create", "botania", "tconstruct", "mekanism", "ae2", "thermal")
	ratio, stale := ValidateFreshness([]string{"sodium", "unknown1", "unknown2", "unknown3"}, board)
	if !stale {
		t.Errorf("expected stale log, got ratio %f", ratio)
	}
}

func TestValidateFreshness_EmptyLogModListSkipsValidation(t *testing.T) {
	board := boardWithMods("sodium")
	ratio, stale := ValidateFreshness(nil, board)
	if stale || ratio != 1 {
		t.Errorf("expected validation skipped for empty mod list, got ratio=%f stale=%v", ratio, stale)
	}
}

func TestValidateFreshness_EmptyBoardSkipsValidation(t *testing.T) {
	ratio, stale := ValidateFreshness([]string{"sodium"}, domain.BoardState{})
	if stale || ratio != 1 {
		t.Errorf("expected validation skipped for empty board, got ratio=%f stale=%v", ratio, stale)
	}
}

func TestValidateFreshness_CaseInsensitiveMatch(t *testing.T) {
	board := boardWithMods("Sodium")
	_, stale := ValidateFreshness([]string{"SODIUM"}, board)
	if stale {
		t.Error("expected case-insensitive match to count as overlap")
	}
}
