package crash

import (
	"crypto/md5" //nolint:gosec // content fingerprinting, not a security boundary
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// dedupSampleSize is how much of the normalized log feeds the cache key —
// the crash and stack trace live at the front; trailing library noise
// doesn't affect whether two submissions are "the same crash".
const dedupSampleSize = 10000

// defaultDedupTTL is used when NewDedupCache is called with a zero TTL,
// e.g. in tests that don't care about expiry.
const defaultDedupTTL = time.Hour

// DedupCache deduplicates repeated submissions of the same crash log
// within a TTL window, keyed per user (§4.L.1).
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]dedupEntry
}

type dedupEntry struct {
	result    CrashResult
	expiresAt time.Time
}

// NewDedupCache constructs an empty cache that retains entries for ttl.
// A zero ttl falls back to defaultDedupTTL.
func NewDedupCache(ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &DedupCache{ttl: ttl, entries: make(map[string]dedupEntry)}
}

// Key computes the dedup key for a (user, log) pair: MD5 of the first
// dedupSampleSize characters of the lowercased, whitespace-collapsed log.
func Key(userID, rawLog string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(rawLog)), " ")
	if len(normalized) > dedupSampleSize {
		normalized = normalized[:dedupSampleSize]
	}
	sum := md5.Sum([]byte(normalized)) //nolint:gosec
	return userID + ":" + hex.EncodeToString(sum[:])
}

// Lookup returns a cached result for key if one exists and hasn't
// expired, evicting it if it has.
func (c *DedupCache) Lookup(key string) (CrashResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return CrashResult{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return CrashResult{}, false
	}
	return entry.result, true
}

// Store caches result under key for the cache's TTL, and opportunistically
// evicts any other expired entries.
func (c *DedupCache) Store(key string, result CrashResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = dedupEntry{result: result, expiresAt: now.Add(c.ttl)}
}
