package crash

import "github.com/modforge/assembler/internal/domain"

// PatchResult is the Board Patcher's output (§4.L.6).
type PatchResult struct {
	Board    domain.BoardState
	Applied  []domain.Operation
	Skipped  []string
}

// ApplyPatches applies remove_mod and disable_mod operations to a deep
// copy of board — the original is never mutated. update_mod operations
// whose target is on the board are reported as applied but change no
// board field. add_mod
// operations are intent only: the patcher never fetches a binary, so
// they pass through to the caller unapplied.
func ApplyPatches(board domain.BoardState, operations []domain.Operation) PatchResult {
	patched := board.Clone()
	result := PatchResult{Board: patched}

	for _, op := range operations {
		switch op.Kind {
		case domain.OpRemoveMod:
			idx, ok := indexByUniqueID(result.Board.Mods, op.Target)
			if !ok {
				result.Skipped = append(result.Skipped, "remove_mod: target not found: "+op.Target)
				continue
			}
			result.Board.Mods = append(result.Board.Mods[:idx], result.Board.Mods[idx+1:]...)
			result.Applied = append(result.Applied, op)

		case domain.OpDisableMod:
			idx, ok := indexByUniqueID(result.Board.Mods, op.Target)
			if !ok {
				result.Skipped = append(result.Skipped, "disable_mod: target not found: "+op.Target)
				continue
			}
			result.Board.Mods[idx].IsDisabled = true
			result.Applied = append(result.Applied, op)

		case domain.OpUpdateMod:
			if _, ok := indexByUniqueID(result.Board.Mods, op.Target); !ok {
				result.Skipped = append(result.Skipped, "update_mod: target not found: "+op.Target)
				continue
			}
			// The board mod is left unchanged: BoardMod has no version
			// field and planning leaves op.ToVersion empty. Planning only
			// checked that the registry has some compatible version.
			result.Applied = append(result.Applied, op)

		case domain.OpAddMod:
			// Intent only — carried through unapplied per §4.L.6.
			result.Applied = append(result.Applied, op)

		case domain.OpClearLoaderCache:
			result.Applied = append(result.Applied, op)

		default:
			result.Skipped = append(result.Skipped, "unrecognized operation kind: "+string(op.Kind))
		}
	}

	return result
}

func indexByUniqueID(mods []domain.BoardMod, uniqueID string) (int, bool) {
	for i, m := range mods {
		if m.UniqueID == uniqueID {
			return i, true
		}
	}
	return 0, false
}
