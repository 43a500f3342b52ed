package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/domain"
)

// Store persists and atomically updates per-user counters. Implementations
// backed by an external database should perform the reset-or-increment as
// a single conditional UPDATE (e.g. "... WHERE last_request_date = $1"),
// per §9's design note: unconditional read-then-patch loses resets across
// concurrent requests that straddle a day/month boundary.
type Store interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	// ApplyReset resets daily (and, if monthly rolled over, monthly+token)
	// counters to zero for today, returning the updated user. Must be a
	// no-op (return the user unchanged) if the stored record is already
	// current for today.
	ApplyReset(ctx context.Context, userID string, today time.Time) (domain.User, error)
	// IncrementUsage adds 1 to daily and monthly counters and tokensUsed
	// to the AI token counter, atomically, and stamps LastRequestDate.
	IncrementUsage(ctx context.Context, userID string, tokensUsed int64, today time.Time) error
}

// Gate implements the per-request quota check of §4.M.
type Gate struct {
	store Store
}

// NewGate constructs a Gate backed by the given Store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Check resolves effective limits, applies a day/month reset if needed,
// and rejects the request if any counter is at or past its cap. Free
// tier is always rejected (§4.M: "Free tier has all effective limits 0
// and is always rejected"). On success it returns the refreshed user
// record so the caller can pass it through to Complete.
func (g *Gate) Check(ctx context.Context, userID string, tier domain.Tier, maxMods int, now time.Time) (domain.User, error) {
	if _, ok := TierLimits(tier); !ok {
		return domain.User{}, fmt.Errorf("%w: unknown subscription tier %q", apierr.ErrTierForbidden, tier)
	}

	user, err := g.store.ApplyReset(ctx, userID, now)
	if err != nil {
		return domain.User{}, fmt.Errorf("resetting quota counters: %w", err)
	}

	effective, ok := EffectiveLimits(user.SubscriptionTier, user.CustomLimits)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: unknown subscription tier %q", apierr.ErrTierForbidden, user.SubscriptionTier)
	}

	if user.SubscriptionTier == domain.TierFree {
		return domain.User{}, fmt.Errorf("%w: free tier has no request allowance", apierr.ErrTierForbidden)
	}

	if effective.MaxModsPerRequest != domain.Unlimited && int64(maxMods) > effective.MaxModsPerRequest {
		return domain.User{}, fmt.Errorf("%w: max_mods %d exceeds tier limit %d", apierr.ErrTierForbidden, maxMods, effective.MaxModsPerRequest)
	}
	if effective.DailyRequests != domain.Unlimited && user.DailyRequestsUsed >= effective.DailyRequests {
		return domain.User{}, fmt.Errorf("%w: daily limit %d reached", apierr.ErrDailyExceeded, effective.DailyRequests)
	}
	if effective.MonthlyRequests != domain.Unlimited && user.MonthlyRequestsUsed >= effective.MonthlyRequests {
		return domain.User{}, fmt.Errorf("%w: monthly limit %d reached", apierr.ErrMonthlyExceeded, effective.MonthlyRequests)
	}
	if effective.AITokenLimit != domain.Unlimited && user.AITokensUsed >= effective.AITokenLimit {
		return domain.User{}, fmt.Errorf("%w: token limit %d reached", apierr.ErrTokensExceeded, effective.AITokenLimit)
	}

	return user, nil
}

// Complete increments the daily/monthly counters and charges tokensUsed.
// Callers MUST only invoke this on a successful terminal `complete` per
// §7 ("Counters increment ONLY on a successful terminal complete") and
// §8 Testable Property 1 ("A request cancelled before complete MUST NOT
// increment any counters").
func (g *Gate) Complete(ctx context.Context, userID string, tokensUsed int64, now time.Time) error {
	return g.store.IncrementUsage(ctx, userID, tokensUsed, now)
}

// InMemoryStore is a mutex-guarded Store suitable for tests and
// single-process deployments. Each user's counters are protected by the
// same lock the reset-or-increment sequence runs under, which is
// equivalent in effect to a compare-and-swap by date for a single
// process; a multi-instance deployment needs a Store backed by a
// conditional database UPDATE instead.
type InMemoryStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

// NewInMemoryStore constructs an InMemoryStore seeded with the given users.
func NewInMemoryStore(seed map[string]domain.User) *InMemoryStore {
	users := make(map[string]domain.User, len(seed))
	for k, v := range seed {
		users[k] = v
	}
	return &InMemoryStore{users: users}
}

func (s *InMemoryStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("unknown user %q", userID)
	}
	return u, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func sameUTCMonth(a, b time.Time) bool {
	ay, am, _ := a.UTC().Date()
	by, bm, _ := b.UTC().Date()
	return ay == by && am == bm
}

func (s *InMemoryStore) ApplyReset(_ context.Context, userID string, today time.Time) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("unknown user %q", userID)
	}

	if !u.LastRequestDate.IsZero() {
		if !sameUTCDay(u.LastRequestDate, today) {
			u.DailyRequestsUsed = 0
		}
		if !sameUTCMonth(u.LastRequestDate, today) {
			u.MonthlyRequestsUsed = 0
			u.AITokensUsed = 0
		}
	}

	s.users[userID] = u
	return u, nil
}

func (s *InMemoryStore) IncrementUsage(_ context.Context, userID string, tokensUsed int64, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("unknown user %q", userID)
	}

	u.DailyRequestsUsed++
	u.MonthlyRequestsUsed++
	u.AITokensUsed += tokensUsed
	u.LastRequestDate = today

	s.users[userID] = u
	return nil
}
