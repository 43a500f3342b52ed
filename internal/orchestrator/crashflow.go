package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/modforge/assembler/internal/crash"
	"github.com/modforge/assembler/internal/progress"
	"github.com/modforge/assembler/internal/quota"
	"github.com/modforge/assembler/internal/tracer"
)

// CrashOrchestrator wraps the Crash Pipeline with the same progress,
// tracing, and quota conventions the assembly flow uses. The pipeline's
// own stage sequencing (dedup, sanitize, validate, analyze, plan fixes,
// patch, record) is authoritative per §4.L; this wrapper adds only the
// quota check §4.M requires of "assembly and crash endpoints alike" and
// reports around the pipeline call.
type CrashOrchestrator struct {
	pipeline *crash.Pipeline
	quota    *quota.Gate
}

// NewCrashOrchestrator constructs a CrashOrchestrator around an already
// wired Pipeline and Quota Gate.
func NewCrashOrchestrator(pipeline *crash.Pipeline, gate *quota.Gate) *CrashOrchestrator {
	return &CrashOrchestrator{pipeline: pipeline, quota: gate}
}

// Run checks quota, executes the Crash Pipeline for one request, and
// charges the tokens it spent on success. Crash-doctor has no
// max_mods_per_request concept, so the quota check runs with maxMods=0
// (a value every non-zero tier limit trivially clears; free tier is
// still rejected outright by the Quota Gate).
func (o *CrashOrchestrator) Run(ctx context.Context, in crash.Input, stream *progress.Stream, tr *tracer.Tracer) (crash.CrashResult, error) {
	now := time.Now()
	if _, err := o.quota.Check(ctx, in.UserID, in.Tier, 0, now); err != nil {
		stream.Error("quota", err.Error())
		return crash.CrashResult{}, err
	}

	stream.Stage(StageCrashAnalysis, 10, "")

	var result crash.CrashResult
	err := tr.Stage(ctx, StageCrashAnalysis, func(ctx context.Context) error {
		r, err := o.pipeline.Run(ctx, in)
		if err != nil {
			return err
		}
		result = r
		tr.RecordLLMCall(StageCrashAnalysis, result.TokenUsage.Input, result.TokenUsage.Output, result.CostUSD)
		return nil
	})
	if err != nil {
		stream.Error(StageCrashAnalysis, err.Error())
		return crash.CrashResult{}, err
	}

	if err := o.quota.Complete(ctx, in.UserID, int64(result.TokenUsage.Total()), now); err != nil {
		stream.Error("quota", err.Error())
		return crash.CrashResult{}, fmt.Errorf("completing quota accounting: %w", err)
	}

	stream.Complete(result)
	return result, nil
}
