// Package quota implements the Quota Gate (§4.M): tier policy, daily and
// monthly request counters, and an AI token budget, each reset on UTC
// calendar-day/month rollover. Counter updates are a compare-and-swap by
// date rather than the original system's unconditional read-then-patch,
// per §5's concurrency note and §9's explicit design-note decision.
package quota

import "github.com/modforge/assembler/internal/domain"

// Limits is one tier's (or one user's custom-override) effective limit
// set. A value of domain.Unlimited (-1) means "no cap".
type Limits struct {
	DailyRequests     int64
	MonthlyRequests   int64
	MaxModsPerRequest int64
	AITokenLimit      int64
}

// tierTable holds the exact per-tier numbers from
// original_source/api/rate_limiter.py's TIER_LIMITS.
var tierTable = map[domain.Tier]Limits{
	domain.TierFree: {
		DailyRequests:     0,
		MonthlyRequests:   0,
		MaxModsPerRequest: 0,
		AITokenLimit:      0,
	},
	domain.TierTest: {
		DailyRequests:     50,
		MonthlyRequests:   1000,
		MaxModsPerRequest: 50,
		AITokenLimit:      100000,
	},
	domain.TierPremium: {
		DailyRequests:     200,
		MonthlyRequests:   5000,
		MaxModsPerRequest: 100,
		AITokenLimit:      500000,
	},
	domain.TierPro: {
		DailyRequests:     domain.Unlimited,
		MonthlyRequests:   domain.Unlimited,
		MaxModsPerRequest: 200,
		AITokenLimit:      domain.Unlimited,
	},
}

// TierLimits returns the base limits for a tier, and whether the tier is
// recognized.
func TierLimits(tier domain.Tier) (Limits, bool) {
	l, ok := tierTable[tier]
	return l, ok
}

// EffectiveLimits merges a user's CustomLimits over the tier defaults,
// field by field — not wholesale replacement, per §3's User invariant
// ("custom_limits overrides tier defaults per field").
func EffectiveLimits(tier domain.Tier, custom *domain.CustomLimits) (Limits, bool) {
	base, ok := tierTable[tier]
	if !ok {
		return Limits{}, false
	}
	if custom == nil {
		return base, true
	}
	if custom.DailyRequests != nil {
		base.DailyRequests = *custom.DailyRequests
	}
	if custom.MonthlyRequests != nil {
		base.MonthlyRequests = *custom.MonthlyRequests
	}
	if custom.MaxModsPerRequest != nil {
		base.MaxModsPerRequest = *custom.MaxModsPerRequest
	}
	if custom.AITokenLimit != nil {
		base.AITokenLimit = *custom.AITokenLimit
	}
	return base, true
}
