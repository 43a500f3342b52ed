package domain

import "time"

// Tier is a subscription tier controlling the user's effective quota
// limits (§4.M, §3 User invariants).
type Tier string

const (
	TierFree    Tier = "free"
	TierTest    Tier = "test"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// Unlimited is the sentinel value meaning "no cap" for any quota field.
const Unlimited = -1

// CustomLimits overrides the tier defaults per field when a field is set
// (non-nil). Absent fields fall back to the tier table.
type CustomLimits struct {
	DailyRequests     *int64 `json:"daily_requests,omitempty"`
	MonthlyRequests   *int64 `json:"monthly_requests,omitempty"`
	MaxModsPerRequest *int64 `json:"max_mods_per_request,omitempty"`
	AITokenLimit      *int64 `json:"ai_token_limit,omitempty"`
}

// User is the minimal view of an authenticated caller the Quota Gate needs.
// Users and their identity are managed by an external auth system; this
// module only reads and atomically updates the counters below.
type User struct {
	ID               string        `json:"id"`
	SubscriptionTier Tier          `json:"subscription_tier"`
	CustomLimits     *CustomLimits `json:"custom_limits,omitempty"`

	DailyRequestsUsed   int64 `json:"daily_requests_used"`
	MonthlyRequestsUsed int64 `json:"monthly_requests_used"`
	AITokensUsed        int64 `json:"ai_tokens_used"`

	LastRequestDate time.Time `json:"last_request_date"`
}
