package crash

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
)

const analyzerSchema = `{
  "type": "object",
  "required": ["root_cause", "error_kind", "confidence"],
  "properties": {
    "root_cause": {"type": "string"},
    "error_kind": {"type": "string", "enum": ["mod_conflict", "missing_dependency", "outdated_mod", "mixin_error", "class_not_found", "fabric_on_forge", "memory", "unknown"]},
    "problematic_mods": {
      "type": "array",
      "items": {"type": "object", "required": ["name", "reason"], "properties": {"name": {"type": "string"}, "reason": {"type": "string"}}}
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "suggested_fixes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action", "target_mod", "reason", "priority"],
        "properties": {
          "action": {"type": "string", "enum": ["remove_mod", "disable_mod", "update_mod", "add_mod", "clear_loader_cache"]},
          "target_mod": {"type": "string"},
          "reason": {"type": "string"},
          "priority": {"type": "string", "enum": ["critical", "high", "normal", "low"]}
        }
      }
    }
  }
}`

const analyzerSystemPrompt = `You are an expert Minecraft crash analyst. Given a sanitized crash log and
the mods currently on the user's board, identify the root cause, classify the
error, name the problematic mods, and propose a prioritized sequence of fixes.
Prefer the least destructive fix that plausibly resolves the crash.`

// AnalyzerResult is the Analyzer stage's output (§4.L.4), in the domain's
// wire shape so the Fix Planner and Recorder can consume it directly.
type AnalyzerResult struct {
	RootCause       string
	ErrorKind       domain.ErrorKind
	ProblematicMods []domain.ProblematicMod
	Confidence      float64
	SuggestedFixes  []SuggestedFix
	Usage           llmgateway.Usage
	CostUSD         float64
}

// SuggestedFix is one raw LLM-proposed fix before Fix Planner validation.
type SuggestedFix struct {
	Action     domain.OperationKind
	TargetMod  string
	Reason     string
	Priority   domain.Priority
}

// Analyze runs the Analyzer LLM call against the sanitized log and the
// current board state.
func Analyze(ctx context.Context, gateway *llmgateway.Gateway, sanitized Sanitized, board domain.BoardState) (AnalyzerResult, error) {
	userPrompt := buildAnalyzerPrompt(sanitized, board)
	raw, usage, cost, err := gateway.Call(ctx, llmgateway.Request{
		SystemPrompt: analyzerSystemPrompt,
		UserPrompt:   userPrompt,
		Schema:       analyzerSchema,
		Temperature:  0.2,
		MaxTokens:    1500,
	})
	if err != nil {
		return AnalyzerResult{}, fmt.Errorf("crash analyzer: %w", err)
	}

	var resp struct {
		RootCause       string `json:"root_cause"`
		ErrorKind       string `json:"error_kind"`
		ProblematicMods []struct {
			Name   string `json:"name"`
			Reason string `json:"reason"`
		} `json:"problematic_mods"`
		Confidence     float64 `json:"confidence"`
		SuggestedFixes []struct {
			Action    string `json:"action"`
			TargetMod string `json:"target_mod"`
			Reason    string `json:"reason"`
			Priority  string `json:"priority"`
		} `json:"suggested_fixes"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AnalyzerResult{}, fmt.Errorf("crash analyzer: %w: %s", llmgateway.ErrInvalidOutput, err)
	}

	problematic := make([]domain.ProblematicMod, len(resp.ProblematicMods))
	for i, m := range resp.ProblematicMods {
		problematic[i] = domain.ProblematicMod{Name: m.Name, Reason: m.Reason}
	}

	fixes := make([]SuggestedFix, 0, len(resp.SuggestedFixes))
	for _, f := range resp.SuggestedFixes {
		fixes = append(fixes, SuggestedFix{
			Action:    domain.OperationKind(f.Action),
			TargetMod: strings.ToLower(strings.TrimSpace(f.TargetMod)),
			Reason:    f.Reason,
			Priority:  domain.Priority(f.Priority),
		})
	}

	return AnalyzerResult{
		RootCause:       resp.RootCause,
		ErrorKind:       domain.ErrorKind(resp.ErrorKind),
		ProblematicMods: problematic,
		Confidence:      resp.Confidence,
		SuggestedFixes:  fixes,
		Usage:           usage,
		CostUSD:         cost,
	}, nil
}

func buildAnalyzerPrompt(sanitized Sanitized, board domain.BoardState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MC VERSION: %s\nMOD LOADER: %s\nHEURISTIC ERROR KIND HINT: %s\n\n", sanitized.MCVersion, sanitized.ModLoader, sanitized.ErrorKind)
	b.WriteString("SANITIZED CRASH LOG:\n")
	b.WriteString(sanitized.Log)
	b.WriteString("\n\nCURRENT BOARD MODS:\n")
	for _, m := range board.Mods {
		fmt.Fprintf(&b, "- %s (%s)%s\n", m.Title, m.SourceID, disabledSuffix(m.IsDisabled))
	}
	return b.String()
}

func disabledSuffix(disabled bool) string {
	if disabled {
		return " [disabled]"
	}
	return ""
}
