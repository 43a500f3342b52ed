// Package http implements the wire API of §6: three AI-driven endpoints
// (build-board, auto-sort, crash-doctor), the public get-mod-tags catalog
// lookup, plus feedback recording, all behind a consistent
// {error, message} failure shape.
package http

import "github.com/modforge/assembler/internal/domain"

// buildBoardRequest is the POST /api/ai/build-board request body.
type buildBoardRequest struct {
	Prompt            string   `json:"prompt"`
	MCVersion         string   `json:"mc_version"`
	ModLoader         string   `json:"mod_loader"`
	MaxMods           int      `json:"max_mods"`
	CurrentMods       []string `json:"current_mods,omitempty"`
	ProjectID         string   `json:"project_id,omitempty"`
	FabricCompatMode  bool     `json:"fabric_compat_mode,omitempty"`
	UseV3Architecture bool     `json:"use_v3_architecture,omitempty"`
}

// autoSortModInput is one entry of the auto-sort request's `mods` array.
type autoSortModInput struct {
	Name        string `json:"name"`
	SourceID    string `json:"source_id"`
	Description string `json:"description,omitempty"`
}

// autoSortRequest is the POST /api/ai/auto-sort request body.
//
// MaxCategories and Creativity are accepted for forward compatibility
// with callers built against the full request shape, but internal/
// categorizer assigns from a fixed category set and has no notion of a
// creativity dial, so neither currently changes the result.
type autoSortRequest struct {
	Mods          []autoSortModInput `json:"mods"`
	MaxCategories int                `json:"max_categories,omitempty"`
	Creativity    float64            `json:"creativity,omitempty"`
}

type autoSortStats struct {
	TokensUsed int64   `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// autoSortResponse is the terminal payload of POST /api/ai/auto-sort.
type autoSortResponse struct {
	Success       bool              `json:"success"`
	Categories    []string          `json:"categories"`
	ModToCategory map[string]string `json:"mod_to_category"`
	Stats         autoSortStats     `json:"stats"`
}

// crashDoctorRequest is the POST /api/ai/crash-doctor/analyze request body.
type crashDoctorRequest struct {
	CrashLog   string            `json:"crash_log"`
	BoardState domain.BoardState `json:"board_state"`
	GameLog    string            `json:"game_log,omitempty"`
	MCVersion  string            `json:"mc_version"`
	ModLoader  string            `json:"mod_loader"`
}

// crashDoctorResponse is the terminal payload of POST /api/ai/crash-doctor/analyze.
type crashDoctorResponse struct {
	Success           bool               `json:"success"`
	Suggestions       []domain.Operation `json:"suggestions"`
	PatchedBoardState domain.BoardState  `json:"patched_board_state"`
	Warnings          []string           `json:"warnings"`
	Confidence        float64            `json:"confidence"`
	SessionID         string             `json:"session_id"`
}

// modTagsRequest is the POST /api/get-mod-tags request body: the set of
// mods to report tags for.
type modTagsRequest struct {
	SourceIDs []string `json:"source_ids"`
}

// modTagsResponse reports each requested mod's tags. A source_id with no
// match in the catalog is simply absent from the map.
type modTagsResponse struct {
	Tags map[string][]string `json:"tags"`
}

// feedbackRequest is the shared body of POST /api/feedback and
// POST /api/feedback/categorization.
type feedbackRequest struct {
	BuildID  string `json:"build_id"`
	Positive bool   `json:"positive"`
	Comment  string `json:"comment,omitempty"`
}

type feedbackResponse struct {
	Success bool `json:"success"`
}

// healthResponse is the GET /health response body.
type healthResponse struct {
	Status string `json:"status"`
}

// errorResponse is §6's fixed wire error shape.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
