package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/domain"
)

func mustTier(t int64) *int64 { return &t }

func TestGate_FreeTierAlwaysRejected(t *testing.T) {
	store := NewInMemoryStore(map[string]domain.User{
		"u1": {ID: "u1", SubscriptionTier: domain.TierFree},
	})
	gate := NewGate(store)

	_, err := gate.Check(context.Background(), "u1", domain.TierFree, 10, time.Now())
	if !errors.Is(err, apierr.ErrTierForbidden) {
		t.Fatalf("expected ErrTierForbidden, got %v", err)
	}
}

func TestGate_DailyLimitExceeded(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(map[string]domain.User{
		"u1": {
			ID:                "u1",
			SubscriptionTier:  domain.TierTest,
			DailyRequestsUsed: 50,
			LastRequestDate:   now,
		},
	})
	gate := NewGate(store)

	_, err := gate.Check(context.Background(), "u1", domain.TierTest, 10, now)
	if !errors.Is(err, apierr.ErrDailyExceeded) {
		t.Fatalf("expected ErrDailyExceeded, got %v", err)
	}
}

func TestGate_MaxModsOverTierCapIsForbidden(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(map[string]domain.User{
		"u1": {ID: "u1", SubscriptionTier: domain.TierTest, LastRequestDate: now},
	})
	gate := NewGate(store)

	_, err := gate.Check(context.Background(), "u1", domain.TierTest, 51, now)
	if !errors.Is(err, apierr.ErrTierForbidden) {
		t.Fatalf("expected ErrTierForbidden for over-cap max_mods, got %v", err)
	}
}

func TestGate_CustomLimitsOverrideTierDefaults(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(map[string]domain.User{
		"u1": {
			ID:               "u1",
			SubscriptionTier: domain.TierTest,
			CustomLimits:     &domain.CustomLimits{DailyRequests: mustTier(1)},
			DailyRequestsUsed: 1,
			LastRequestDate:  now,
		},
	})
	gate := NewGate(store)

	_, err := gate.Check(context.Background(), "u1", domain.TierTest, 10, now)
	if !errors.Is(err, apierr.ErrDailyExceeded) {
		t.Fatalf("expected custom daily override of 1 to be exhausted, got %v", err)
	}
}

func TestGate_DailyCounterResetsOnUTCDayRollover(t *testing.T) {
	yesterday := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	store := NewInMemoryStore(map[string]domain.User{
		"u1": {
			ID:                "u1",
			SubscriptionTier:  domain.TierTest,
			DailyRequestsUsed: 50,
			LastRequestDate:   yesterday,
		},
	})
	gate := NewGate(store)

	user, err := gate.Check(context.Background(), "u1", domain.TierTest, 10, today)
	if err != nil {
		t.Fatalf("expected day rollover to reset the daily counter to 0, got error: %v", err)
	}
	if user.DailyRequestsUsed != 0 {
		t.Errorf("DailyRequestsUsed = %d, want 0 after rollover", user.DailyRequestsUsed)
	}
}

func TestGate_MonthlyRolloverAlsoResetsTokens(t *testing.T) {
	lastMonth := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	thisMonth := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	store := NewInMemoryStore(map[string]domain.User{
		"u1": {
			ID:                  "u1",
			SubscriptionTier:    domain.TierPremium,
			MonthlyRequestsUsed: 5000,
			AITokensUsed:        500000,
			LastRequestDate:     lastMonth,
		},
	})
	gate := NewGate(store)

	user, err := gate.Check(context.Background(), "u1", domain.TierPremium, 5, thisMonth)
	if err != nil {
		t.Fatalf("expected month rollover to reset monthly+token counters, got error: %v", err)
	}
	if user.MonthlyRequestsUsed != 0 || user.AITokensUsed != 0 {
		t.Errorf("expected monthly and token counters reset to 0, got %d/%d", user.MonthlyRequestsUsed, user.AITokensUsed)
	}
}

func TestGate_CompleteIncrementsCountersAndTokens(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(map[string]domain.User{
		"u1": {ID: "u1", SubscriptionTier: domain.TierTest, LastRequestDate: now},
	})
	gate := NewGate(store)

	if err := gate.Complete(context.Background(), "u1", 1234, now); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	user, err := store.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	if user.DailyRequestsUsed != 1 || user.MonthlyRequestsUsed != 1 || user.AITokensUsed != 1234 {
		t.Errorf("unexpected counters after Complete(): %+v", user)
	}
}

func TestGate_ProTierUnlimitedRequestsButCappedMods(t *testing.T) {
	now := time.Now()
	store := NewInMemoryStore(map[string]domain.User{
		"u1": {
			ID:                  "u1",
			SubscriptionTier:    domain.TierPro,
			DailyRequestsUsed:   1_000_000,
			MonthlyRequestsUsed: 1_000_000,
			LastRequestDate:     now,
		},
	})
	gate := NewGate(store)

	if _, err := gate.Check(context.Background(), "u1", domain.TierPro, 200, now); err != nil {
		t.Fatalf("pro tier should never hit daily/monthly caps, got: %v", err)
	}
	if _, err := gate.Check(context.Background(), "u1", domain.TierPro, 201, now); !errors.Is(err, apierr.ErrTierForbidden) {
		t.Fatalf("expected max_mods_per_request cap of 200 to still apply to pro tier, got: %v", err)
	}
}
