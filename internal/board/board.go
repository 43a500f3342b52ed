// Package board implements the Board Assembler (§4.K): a deterministic
// grid layout over a list of categorized mods. Given the same input, the
// resulting geometry is reproducible modulo UUID generation. Grounded on
// internal/checkpoint/types.go's ID-stamped, JSON-tagged result-struct
// shape from the teacher repo.
package board

import (
	"github.com/google/uuid"

	"github.com/modforge/assembler/internal/domain"
)

const (
	columnWidth    = 340.0
	rowPitch       = 60.0
	categoryMargin = 40.0
	cellPadding    = 20.0
)

// CategoryInput is one category's name plus the mods placed in it, in
// display order.
type CategoryInput struct {
	Name string
	Mods []domain.Mod
}

// DependencyLookup reports the resolved dependency source_ids present on
// the same board for a given mod, used to populate cached_dependencies.
type DependencyLookup func(sourceID string) []string

// Assemble lays out categories left-to-right in insertion order, each a
// fixed-width column of row-major mod cells at a fixed vertical pitch,
// and stamps every mod/category with a fresh UUIDv4 id.
func Assemble(projectID string, categories []CategoryInput, deps DependencyLookup) domain.BoardState {
	state := domain.BoardState{
		ProjectID:  projectID,
		Categories: make([]domain.BoardCategory, 0, len(categories)),
		Mods:       make([]domain.BoardMod, 0),
	}

	x := 0.0
	for catIndex, cat := range categories {
		categoryID := uuid.NewString()
		height := categoryMargin*2 + float64(len(cat.Mods))*rowPitch

		state.Categories = append(state.Categories, domain.BoardCategory{
			ID:       categoryID,
			Title:    cat.Name,
			Position: domain.Position{X: x, Y: 0},
			Width:    columnWidth,
			Height:   height,
		})

		for row, m := range cat.Mods {
			var cachedDeps []string
			if deps != nil {
				cachedDeps = deps(m.SourceID)
			}
			state.Mods = append(state.Mods, domain.BoardMod{
				SourceID:           m.SourceID,
				Slug:               m.Slug,
				Title:              m.Name,
				IconURL:            m.IconURL,
				Description:        m.Summary,
				UniqueID:           uuid.NewString(),
				Position:           domain.Position{X: x + cellPadding, Y: categoryMargin + float64(row)*rowPitch},
				CategoryID:         categoryID,
				CategoryIndex:      catIndex,
				CachedDependencies: cachedDeps,
			})
		}

		x += columnWidth
	}

	return state
}
