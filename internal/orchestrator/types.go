package orchestrator

import "github.com/modforge/assembler/internal/domain"

// Stage names reported on progress events and tracer spans. They match
// the component names of §2/§4 so a client can correlate a stage event
// with the section of the system that emitted it.
const (
	StageQueryPlanner        = "query_planner"
	StageModpackSearch       = "modpack_search"
	StageArchitecturePlan    = "architecture_plan"
	StageRetrieval           = "retrieval"
	StageFinalSelector       = "final_selector"
	StageDependencyResolver  = "dependency_resolver"
	StageLoaderBridge        = "loader_bridge"
	StageArchitectureRefine  = "architecture_refine"
	StageCategorizer         = "categorizer"
	StageBoardAssembler      = "board_assembler"
	StageCrashAnalysis       = "crash_analysis"
)

// BuildRequest is the `/api/ai/build-board` request body (§6).
type BuildRequest struct {
	UserID           string
	Prompt           string
	MCVersion        string
	ModLoader        string
	MaxMods          int
	CurrentMods      []string
	ProjectID        string
	FabricCompatMode bool
	UseArchitectureV3 bool
	Tier             domain.Tier
}

// BuildStats summarizes one build-board run for the `stats` response field.
type BuildStats struct {
	CandidatesConsidered int     `json:"candidates_considered"`
	ModsSelected         int     `json:"mods_selected"`
	DependenciesAdded    int     `json:"dependencies_added"`
	Conflicts            int     `json:"conflicts"`
	TokensUsed           int64   `json:"tokens_used"`
	CostUSD              float64 `json:"cost_usd"`
}

// BuildResult is the terminal `complete` payload of `/api/ai/build-board`.
type BuildResult struct {
	Success     bool             `json:"success"`
	BuildID     string           `json:"build_id"`
	BoardState  domain.BoardState `json:"board_state"`
	Summary     string           `json:"summary"`
	Explanation string           `json:"explanation"`
	Stats       BuildStats       `json:"stats"`
}
