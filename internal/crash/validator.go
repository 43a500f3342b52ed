package crash

import (
	"strings"

	"github.com/modforge/assembler/internal/domain"
)

// overlapThreshold is §4.L.3's "<30%" staleness cutoff.
const overlapThreshold = 0.30

// ValidateFreshness computes the overlap ratio between the mods named in
// the sanitized log and the mods currently on the board. A ratio below
// overlapThreshold means the log likely predates the board's current
// state, so the caller should annotate the response with a stale_log
// warning but proceed with analysis regardless.
func ValidateFreshness(modsInLog []string, board domain.BoardState) (ratio float64, stale bool) {
	if len(modsInLog) == 0 {
		return 1, false // nothing to compare against; skip validation
	}

	boardMods := make(map[string]struct{}, len(board.Mods))
	for _, m := range board.Mods {
		if m.SourceID != "" {
			boardMods[strings.ToLower(m.SourceID)] = struct{}{}
		}
		if m.Slug != "" {
			boardMods[strings.ToLower(m.Slug)] = struct{}{}
		}
	}
	if len(boardMods) == 0 {
		return 1, false
	}

	matches := 0
	for _, id := range modsInLog {
		if _, ok := boardMods[strings.ToLower(id)]; ok {
			matches++
		}
	}

	ratio = float64(matches) / float64(len(modsInLog))
	return ratio, ratio < overlapThreshold
}
