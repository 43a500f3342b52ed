// Package tracer implements the Pipeline Tracer (§4.O): a per-request
// accumulator of stage timings, LLM call costs, and totals, attached to
// the orchestrator's final payload as `_pipeline`. It instruments one
// OTEL span per stage the way internal/logging bridges zap through
// otelzap, but the accumulated totals themselves are read by callers
// directly — the Tracer is observational only and never drives
// orchestrator control flow.
package tracer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// StageTrace records one stage's execution window and outcome.
type StageTrace struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	OK        bool      `json:"ok"`
}

// LLMCallTrace records one LLM Gateway call's token and cost accounting.
type LLMCallTrace struct {
	Name       string  `json:"name"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
}

// Totals summarizes every LLM call recorded on the trace.
type Totals struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Trace is the `_pipeline` payload attached to every orchestrator
// response, successful or not.
type Trace struct {
	PipelineID string         `json:"pipeline_id"`
	Stages     []StageTrace   `json:"stages"`
	LLMCalls   []LLMCallTrace `json:"llm_calls"`
	Totals     Totals         `json:"totals"`
}

// Tracer accumulates a Trace across one request's lifetime. Safe for
// concurrent use since independent stages (e.g. parallel retrieval
// queries) may record LLM calls concurrently.
type Tracer struct {
	mu         sync.Mutex
	pipelineID string
	stages     []StageTrace
	calls      []LLMCallTrace
	otelTracer trace.Tracer
}

// New constructs a Tracer for one request, identified by pipelineID.
// otelTracer may be nil, in which case stage spans are skipped but
// accumulation still happens.
func New(pipelineID string, otelTracer trace.Tracer) *Tracer {
	return &Tracer{pipelineID: pipelineID, otelTracer: otelTracer}
}

// StageFunc is invoked between a stage's start and end; its error (if
// any) determines the recorded stage's ok flag, and is returned to the
// caller unchanged.
type StageFunc func(ctx context.Context) error

// Stage runs fn within an OTEL span named name, recording its timing
// and outcome on the trace regardless of success or failure.
func (t *Tracer) Stage(ctx context.Context, name string, fn StageFunc) error {
	ctx, span := t.startSpan(ctx, name)
	started := time.Now()

	err := fn(ctx)

	st := StageTrace{Name: name, StartedAt: started, EndedAt: time.Now(), OK: err == nil}
	t.mu.Lock()
	t.stages = append(t.stages, st)
	t.mu.Unlock()

	if span != nil {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}

	return err
}

func (t *Tracer) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t.otelTracer == nil {
		return ctx, nil
	}
	return t.otelTracer.Start(ctx, name)
}

// RecordLLMCall appends one LLM Gateway call's usage to the trace.
func (t *Tracer) RecordLLMCall(name string, tokensIn, tokensOut int, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, LLMCallTrace{Name: name, TokensIn: tokensIn, TokensOut: tokensOut, CostUSD: costUSD})
}

// Trace returns the accumulated trace, computing totals over every
// recorded LLM call.
func (t *Tracer) Trace() Trace {
	t.mu.Lock()
	defer t.mu.Unlock()

	var totals Totals
	for _, c := range t.calls {
		totals.Tokens += c.TokensIn + c.TokensOut
		totals.CostUSD += c.CostUSD
	}

	stages := make([]StageTrace, len(t.stages))
	copy(stages, t.stages)
	calls := make([]LLMCallTrace, len(t.calls))
	copy(calls, t.calls)

	return Trace{
		PipelineID: t.pipelineID,
		Stages:     stages,
		LLMCalls:   calls,
		Totals:     totals,
	}
}
