package domain

// RequestType classifies the intent of an assembly request, decided by
// the Query Planner (§4.F).
type RequestType string

const (
	RequestSimpleAdd   RequestType = "simple_add"
	RequestPerformance RequestType = "performance"
	RequestThemedPack  RequestType = "themed_pack"
)

// SearchQueryKind distinguishes a semantic (vector) query from a lexical
// (keyword) one within a SearchPlan.
type SearchQueryKind string

const (
	SearchKeyword SearchQueryKind = "keyword"
	SearchSemantic SearchQueryKind = "semantic"
)

// SearchQuery is one weighted entry of SearchPlan.SearchQueries.
type SearchQuery struct {
	Kind   SearchQueryKind `json:"kind"`
	Text   string          `json:"text"`
	Weight float64         `json:"weight"`
}

// SearchPlan is the Query Planner's single output: a classification of the
// request plus the queries Hybrid Retrieval should run.
type SearchPlan struct {
	RequestType          RequestType   `json:"request_type"`
	UseArchitecturePlanner bool        `json:"use_architecture_planner"`
	SearchQueries        []SearchQuery `json:"search_queries"`
	CapabilitiesFocus    []string      `json:"capabilities_focus,omitempty"`
	BaselineMods         []string      `json:"baseline_mods,omitempty"`
}

// PlannedCategory is one category of a PlannedArchitecture.
type PlannedCategory struct {
	Name                  string   `json:"name"`
	Description            string   `json:"description,omitempty"`
	RequiredCapabilities   []string `json:"required_capabilities"`
	PreferredCapabilities  []string `json:"preferred_capabilities,omitempty"`
	TargetMods             int      `json:"target_mods"`
}

// PlannedArchitecture is the Architecture Planner's "plan" output (§4.G.1).
type PlannedArchitecture struct {
	Categories        []PlannedCategory `json:"categories"`
	PackArchetype     string            `json:"pack_archetype"`
	EstimatedTotalMods int              `json:"estimated_total_mods"`
}

// SelectedModRole classifies why a mod was selected.
type SelectedModRole string

const (
	RolePrimary    SelectedModRole = "primary"
	RoleLibrary    SelectedModRole = "library"
	RoleDependency SelectedModRole = "dependency"
	RoleBridge     SelectedModRole = "bridge"
)

// SelectedMod is one entry of the Final Selector's output (§3).
type SelectedMod struct {
	SourceID      string          `json:"source_id"`
	CategoryIndex *int            `json:"category_index,omitempty"`
	Reason        string          `json:"reason"`
	Role          SelectedModRole `json:"role"`
}
