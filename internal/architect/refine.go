package architect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
)

// capability-prefix tables used for the classification-priority rule in
// §4.G.2: performance (90) > graphics (90) > library (80, or 90 if no
// performance/graphics signal) > gameplay (75).
var (
	performancePrefixes = []string{"performance.", "optimization."}
	graphicsPrefixes    = []string{"graphics.", "shaders.", "lighting.", "postprocessing.", "particles.", "sky.", "water.", "ctm."}
	libraryPrefixes     = []string{"dependency.library", "api.exposed", "compatibility."}
)

type techClass int

const (
	classGameplay techClass = iota
	classLibrary
	classGraphics
	classPerformance
)

// classify applies the classification-priority table to one mod's
// capabilities. A mod matching more than one technical class is resolved
// by the stated priority order.
func classify(caps []string) techClass {
	hasPrefix := func(prefixes []string) bool {
		for _, c := range caps {
			for _, p := range prefixes {
				if strings.HasPrefix(c, p) {
					return true
				}
			}
		}
		return false
	}

	performance := hasPrefix(performancePrefixes)
	graphics := hasPrefix(graphicsPrefixes)
	library := hasPrefix(libraryPrefixes)

	switch {
	case performance:
		return classPerformance
	case graphics:
		return classGraphics
	case library:
		return classLibrary
	default:
		return classGameplay
	}
}

// RefineInput is the Refine stage's input: the initial skeleton plus the
// mods actually chosen by dependency resolution.
type RefineInput struct {
	UserPrompt   string
	Initial      domain.PlannedArchitecture
	SelectedMods []domain.Mod
}

// RefinedCategory is one finalized category together with the actual mods
// placed into it — the Board Assembler's direct input.
type RefinedCategory struct {
	Category domain.PlannedCategory
	Mods     []domain.Mod
}

// RefineResult is the Refine stage's output: a category list whose
// membership and sizing already satisfy §4.G.2's split/merge invariants,
// with names/descriptions polished by one LLM call.
type RefineResult struct {
	Categories []RefinedCategory
	Usage      llmgateway.Usage
	CostUSD    float64
}

// workingCategory tracks one category through placement/split/merge before
// the final naming pass.
type workingCategory struct {
	name                  string
	description           string
	requiredCapabilities  []string
	preferredCapabilities []string
	class                 techClass
	mods                  []domain.Mod
}

// Refine places the actually-selected mods into the initial skeleton,
// splits any category that grew past 15 mods, merges any category that
// stayed under 4, then asks the LLM for display names only — membership
// and counts are already final by the time that call happens.
func (a *Architect) Refine(ctx context.Context, in RefineInput) (RefineResult, error) {
	working := placeMods(in.Initial, in.SelectedMods)
	working = splitOverloaded(working)
	working = mergeUndersized(working)

	if a.gateway == nil {
		return RefineResult{Categories: toRefinedCategories(working)}, nil
	}

	userPrompt := buildRefineUserPrompt(in.UserPrompt, working)
	raw, usage, cost, err := a.gateway.Call(ctx, llmgateway.Request{
		SystemPrompt: refineSystemPrompt,
		UserPrompt:   userPrompt,
		Schema:       refineSchema,
		Temperature:  0.4,
		MaxTokens:    2000,
	})
	if err != nil {
		// The teacher's refiner falls back to the mechanically-derived
		// architecture on any LLM failure rather than failing the pipeline.
		return RefineResult{Categories: toRefinedCategories(working)}, nil
	}

	var resp struct {
		Categories []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Categories) != len(working) {
		return RefineResult{Categories: toRefinedCategories(working), Usage: usage, CostUSD: cost}, nil
	}

	for i := range working {
		if resp.Categories[i].Name != "" {
			working[i].name = resp.Categories[i].Name
		}
		if resp.Categories[i].Description != "" {
			working[i].description = resp.Categories[i].Description
		}
	}

	return RefineResult{Categories: toRefinedCategories(working), Usage: usage, CostUSD: cost}, nil
}

// placeMods assigns each selected mod to the best-matching initial
// category, resolved by the classification-priority table and, among
// ties, by each category's remaining target-fill (fewer mods placed so
// far relative to target wins).
func placeMods(initial domain.PlannedArchitecture, mods []domain.Mod) []workingCategory {
	working := make([]workingCategory, len(initial.Categories))
	for i, c := range initial.Categories {
		working[i] = workingCategory{
			name:                  c.Name,
			description:           c.Description,
			requiredCapabilities:  c.RequiredCapabilities,
			preferredCapabilities: c.PreferredCapabilities,
			class:                 classify(c.RequiredCapabilities),
		}
	}

	fallback := -1
	for i, w := range working {
		if w.class == classGameplay {
			fallback = i
			break
		}
	}
	if fallback == -1 && len(working) > 0 {
		fallback = 0
	}

	for _, m := range mods {
		class := classify(m.Capabilities)
		best := bestCategoryFor(working, m, class)
		if best == -1 {
			best = fallback
		}
		if best == -1 {
			continue
		}
		working[best].mods = append(working[best].mods, m)
	}
	return working
}

// bestCategoryFor picks the category that shares the most capabilities
// with m among those matching m's technical class (or any category, for
// gameplay mods), breaking ties by remaining target-fill.
func bestCategoryFor(working []workingCategory, m domain.Mod, class techClass) int {
	modCaps := toSet(m.Capabilities)

	best := -1
	bestOverlap := -1
	bestRemaining := -1

	for i, w := range working {
		if class != classGameplay && w.class != class {
			continue
		}
		overlap := overlapCount(modCaps, w.requiredCapabilities) + overlapCount(modCaps, w.preferredCapabilities)
		remaining := len(w.requiredCapabilities) - len(w.mods) // proxy for "target-fill remaining"
		if overlap == 0 && class == classGameplay {
			continue
		}
		if overlap > bestOverlap || (overlap == bestOverlap && remaining > bestRemaining) {
			best = i
			bestOverlap = overlap
			bestRemaining = remaining
		}
	}
	return best
}

func overlapCount(set map[string]struct{}, caps []string) int {
	n := 0
	for _, c := range caps {
		if _, ok := set[c]; ok {
			n++
		}
	}
	return n
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}

// splitOverloaded divides any category with more than 15 mods into 2-3
// sub-categories grouped by capability affinity, per §4.G.2.
func splitOverloaded(working []workingCategory) []workingCategory {
	out := make([]workingCategory, 0, len(working))
	for _, w := range working {
		if len(w.mods) <= splitThreshold {
			out = append(out, w)
			continue
		}

		numSplits := 2
		if len(w.mods) > splitThreshold*2 {
			numSplits = 3
		}
		groups := groupByCapabilityAffinity(w.mods, numSplits)
		for i, g := range groups {
			if len(g) == 0 {
				continue
			}
			out = append(out, workingCategory{
				name:                  fmt.Sprintf("%s %s", w.name, romanNumeral(i+1)),
				description:           w.description,
				requiredCapabilities:  w.requiredCapabilities,
				preferredCapabilities: w.preferredCapabilities,
				class:                 w.class,
				mods:                  g,
			})
		}
	}
	return out
}

// groupByCapabilityAffinity buckets mods by their first capability, orders
// the buckets largest first, and cuts that ordering into n contiguous
// groups of near-equal size, so mods sharing a capability stay together
// except where a group boundary falls inside a bucket.
func groupByCapabilityAffinity(mods []domain.Mod, n int) [][]domain.Mod {
	byCap := make(map[string][]domain.Mod)
	for _, m := range mods {
		key := "misc"
		if len(m.Capabilities) > 0 {
			key = m.Capabilities[0]
		}
		byCap[key] = append(byCap[key], m)
	}

	keys := make([]string, 0, len(byCap))
	for k := range byCap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(byCap[keys[i]]) > len(byCap[keys[j]]) })

	ordered := make([]domain.Mod, 0, len(mods))
	for _, k := range keys {
		ordered = append(ordered, byCap[k]...)
	}

	groups := make([][]domain.Mod, n)
	size := (len(ordered) + n - 1) / n
	for i, m := range ordered {
		groups[i/size] = append(groups[i/size], m)
	}
	return groups
}

func romanNumeral(n int) string {
	switch n {
	case 1:
		return "I"
	case 2:
		return "II"
	case 3:
		return "III"
	default:
		return fmt.Sprintf("%d", n)
	}
}

// mergeUndersized folds any category with fewer than 4 mods into its
// nearest sibling by capability Jaccard similarity >= 0.4, per §4.G.2.
// A category with no qualifying sibling is left as-is.
func mergeUndersized(working []workingCategory) []workingCategory {
	merged := make([]bool, len(working))

	for i := range working {
		if merged[i] || len(working[i].mods) >= mergeThreshold {
			continue
		}
		target := nearestSibling(working, i, merged)
		if target == -1 {
			continue
		}
		working[target].mods = append(working[target].mods, working[i].mods...)
		merged[i] = true
	}

	out := make([]workingCategory, 0, len(working))
	for i, w := range working {
		if !merged[i] {
			out = append(out, w)
		}
	}
	return out
}

func nearestSibling(working []workingCategory, i int, merged []bool) int {
	a := toSet(append(append([]string{}, working[i].requiredCapabilities...), working[i].preferredCapabilities...))
	best := -1
	bestScore := mergeJaccardThreshold
	for j, w := range working {
		if j == i || merged[j] {
			continue
		}
		b := toSet(append(append([]string{}, w.requiredCapabilities...), w.preferredCapabilities...))
		score := jaccard(a, b)
		if score >= bestScore {
			best = j
			bestScore = score
		}
	}
	return best
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func buildRefineUserPrompt(userPrompt string, working []workingCategory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER REQUEST: %q\n\n", userPrompt)
	fmt.Fprintf(&b, "FINALIZED CATEGORY STRUCTURE (%d categories, do not change membership):\n", len(working))
	for i, w := range working {
		fmt.Fprintf(&b, "%d. %s (%d mods) - capabilities: %s\n", i+1, w.name, len(w.mods), strings.Join(w.requiredCapabilities, ", "))
	}
	b.WriteString("\nPropose a display name and one-sentence description for each category, in the same order, fitting the pack's theme.")
	return b.String()
}

func toRefinedCategories(working []workingCategory) []RefinedCategory {
	out := make([]RefinedCategory, len(working))
	for i, w := range working {
		out[i] = RefinedCategory{
			Category: domain.PlannedCategory{
				Name:                  w.name,
				Description:           w.description,
				RequiredCapabilities:  w.requiredCapabilities,
				PreferredCapabilities: w.preferredCapabilities,
				TargetMods:            len(w.mods),
			},
			Mods: w.mods,
		}
	}
	return out
}
