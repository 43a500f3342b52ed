package domain

import "time"

// ErrorKind classifies the root cause the Crash Analyzer identified (§4.L.4).
type ErrorKind string

const (
	ErrorModConflict       ErrorKind = "mod_conflict"
	ErrorMissingDependency ErrorKind = "missing_dependency"
	ErrorOutdatedMod       ErrorKind = "outdated_mod"
	ErrorMixin             ErrorKind = "mixin_error"
	ErrorClassNotFound     ErrorKind = "class_not_found"
	ErrorFabricOnForge     ErrorKind = "fabric_on_forge"
	ErrorMemory            ErrorKind = "memory"
	ErrorUnknown           ErrorKind = "unknown"
)

// OperationKind is the tag of a repair Operation (§3).
type OperationKind string

const (
	OpRemoveMod       OperationKind = "remove_mod"
	OpDisableMod      OperationKind = "disable_mod"
	OpUpdateMod       OperationKind = "update_mod"
	OpAddMod          OperationKind = "add_mod"
	OpClearLoaderCache OperationKind = "clear_loader_cache"
)

// Priority ranks an Operation or warning by urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Operation is one repair action the Fix Planner emits. Fields not
// relevant to Kind are left zero (e.g. ToVersion is empty outside
// update_mod).
type Operation struct {
	Kind      OperationKind `json:"kind"`
	Target    string        `json:"target,omitempty"`     // board mod unique_id or source_id
	SourceID  string        `json:"source_id,omitempty"`  // add_mod; also the resolved board mod for remove/disable/update
	ToVersion string        `json:"to_version,omitempty"` // update_mod only
	Reason    string        `json:"reason"`
	Priority  Priority      `json:"priority"`
}

// ProblematicMod is one entry of the Analyzer's problematic_mods list.
type ProblematicMod struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// TokenUsage is the input/output token count for one or more LLM calls,
// charged together on successful completion per §9's design note.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns the combined token count.
func (t TokenUsage) Total() int { return t.Input + t.Output }

// CrashSession is the append-only record of one crash-analysis request (§3).
type CrashSession struct {
	ID                 string       `json:"id"`
	UserID              string       `json:"user_id"`
	CrashLogSanitized   string       `json:"crash_log_sanitized"`
	BoardStateSnapshot  BoardState   `json:"board_state_snapshot"`
	RootCause           string       `json:"root_cause"`
	ErrorKind           ErrorKind    `json:"error_kind"`
	Confidence          float64      `json:"confidence"`
	Suggestions         []Operation  `json:"suggestions"`
	Warnings            []string     `json:"warnings,omitempty"`
	PatchedBoardState   BoardState   `json:"patched_board_state"`
	TokenUsage          TokenUsage   `json:"token_usage"`
	CreatedAt           time.Time    `json:"created_at"`
}
