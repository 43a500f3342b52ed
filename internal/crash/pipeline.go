package crash

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
	"github.com/modforge/assembler/internal/modstore"
)

// CrashResult is the Crash Pipeline's final payload.
type CrashResult struct {
	SessionID         string
	RootCause         string
	ErrorKind         domain.ErrorKind
	ProblematicMods   []domain.ProblematicMod
	Confidence        float64
	Suggestions       []domain.Operation
	Warnings          []string
	PatchedBoardState domain.BoardState
	TokenUsage        domain.TokenUsage
	CostUSD           float64
}

// Input is one crash-analysis request.
type Input struct {
	UserID      string
	Tier        domain.Tier
	RawLog      string
	Board       domain.BoardState
	Loader      string
	GameVersion string
}

// Pipeline runs every stage of §4.L in sequence.
type Pipeline struct {
	gateway  *llmgateway.Gateway
	store    *modstore.Store
	registry Registry
	dedup    *DedupCache
}

// New constructs a Pipeline.
func New(gateway *llmgateway.Gateway, store *modstore.Store, registry Registry, dedup *DedupCache) *Pipeline {
	return &Pipeline{gateway: gateway, store: store, registry: registry, dedup: dedup}
}

// Run executes the dedup cache, sanitizer, validator, analyzer, fix
// planner, board patcher, and recorder stages in order.
func (p *Pipeline) Run(ctx context.Context, in Input) (CrashResult, error) {
	key := Key(in.UserID, in.RawLog)
	if cached, ok := p.dedup.Lookup(key); ok {
		return cached, nil
	}

	sanitized := Sanitize(in.RawLog)

	var warnings []string
	if _, stale := ValidateFreshness(sanitized.ModsInLog, in.Board); stale {
		warnings = append(warnings, "stale_log")
	}

	analysis, err := Analyze(ctx, p.gateway, sanitized, in.Board)
	if err != nil {
		return CrashResult{}, fmt.Errorf("crash pipeline: %w", err)
	}

	plan := PlanFixes(ctx, analysis.SuggestedFixes, in.Board, in.Loader, in.GameVersion, p.registry)
	warnings = append(warnings, plan.Warnings...)

	patch := ApplyPatches(in.Board, plan.Operations)
	warnings = append(warnings, patch.Skipped...)

	sessionID := uuid.NewString()
	result := CrashResult{
		SessionID:         sessionID,
		RootCause:         analysis.RootCause,
		ErrorKind:         analysis.ErrorKind,
		ProblematicMods:   analysis.ProblematicMods,
		Confidence:        analysis.Confidence,
		Suggestions:       patch.Applied,
		Warnings:          warnings,
		PatchedBoardState: patch.Board,
		TokenUsage:        domain.TokenUsage{Input: analysis.Usage.InputTokens, Output: analysis.Usage.OutputTokens},
		CostUSD:           analysis.CostUSD,
	}

	p.dedup.Store(key, result)

	if p.store != nil {
		session := domain.CrashSession{
			ID:                 sessionID,
			UserID:             in.UserID,
			CrashLogSanitized:  sanitized.Log,
			BoardStateSnapshot: in.Board,
			RootCause:          result.RootCause,
			ErrorKind:          result.ErrorKind,
			Confidence:         result.Confidence,
			Suggestions:        result.Suggestions,
			Warnings:           result.Warnings,
			PatchedBoardState:  result.PatchedBoardState,
			TokenUsage:         result.TokenUsage,
			CreatedAt:          time.Now(),
		}
		if err := p.store.RecordCrashSession(ctx, session); err != nil {
			return CrashResult{}, fmt.Errorf("crash pipeline: recording session: %w", err)
		}
	}

	return result, nil
}
