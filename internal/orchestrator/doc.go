// Package orchestrator sequences the two request-scoped flows of the
// modpack assembly and crash-analysis system.
//
// # Assembly
//
// The build-board request runs the Query Planner, then branches on the
// plan's request_type: a themed request runs the Architecture Planner
// (plan), Hybrid Retrieval, the Final Selector, the Dependency
// Resolver, the Loader-Bridge Policy, the Architecture Planner
// (refine), and the Board Assembler; a simple request skips both
// Architecture Planner stages and classifies selected mods with the
// Categorizer instead. Every stage reports progress over a
// progress.Stream and records timing/LLM cost on a tracer.Tracer; on
// any stage failure the orchestrator emits an error event naming the
// failing stage and returns, leaving the quota counters untouched.
//
// # Crash analysis
//
// The crash-doctor request delegates directly to internal/crash's own
// pipeline, which already implements the dedup/sanitize/validate/
// analyze/plan-fixes/patch/record sequence; this package wraps it with
// the same progress and tracing conventions the assembly flow uses,
// plus the quota check that §4.M requires of crash endpoints too.
package orchestrator
