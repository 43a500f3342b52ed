package modstore

import (
	"context"
	"sync"

	"github.com/modforge/assembler/internal/domain"
)

// ModpackBuildRecord is a completed build-board run, recorded for
// analytics/feedback correlation (§6 POST /api/feedback keys off build_id).
type ModpackBuildRecord struct {
	BuildID   string
	UserID    string
	Board     domain.BoardState
	CreatedAt int64
}

// SortFeedback records a thumbs up/down (and optional free-text) on an
// auto-sort or categorization result.
type SortFeedback struct {
	BuildID  string
	UserID   string
	Positive bool
	Comment  string
}

// WriteLog is the Mod Store's narrow write surface — everything else in
// the pipeline only reads via Store. Grounded on §4.C's explicit write
// whitelist: user counters (owned by internal/quota.Store, not here),
// crash sessions, modpack build records, and sort-session feedback.
type WriteLog interface {
	RecordCrashSession(ctx context.Context, session domain.CrashSession) error
	RecordModpackBuild(ctx context.Context, record ModpackBuildRecord) error
	RecordSortFeedback(ctx context.Context, feedback SortFeedback) error
}

// InMemoryWriteLog is a WriteLog suitable for tests and single-process
// deployments without an external analytics sink.
type InMemoryWriteLog struct {
	mu            sync.Mutex
	CrashSessions []domain.CrashSession
	ModpackBuilds []ModpackBuildRecord
	SortFeedbacks []SortFeedback
}

// NewInMemoryWriteLog constructs an empty InMemoryWriteLog.
func NewInMemoryWriteLog() *InMemoryWriteLog {
	return &InMemoryWriteLog{}
}

func (w *InMemoryWriteLog) RecordCrashSession(_ context.Context, session domain.CrashSession) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.CrashSessions = append(w.CrashSessions, session)
	return nil
}

func (w *InMemoryWriteLog) RecordModpackBuild(_ context.Context, record ModpackBuildRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ModpackBuilds = append(w.ModpackBuilds, record)
	return nil
}

// RecordSortFeedback is idempotent by BuildID (§6): a repeat submission
// for a build already on file overwrites it in place rather than
// appending a duplicate entry.
func (w *InMemoryWriteLog) RecordSortFeedback(_ context.Context, feedback SortFeedback) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.SortFeedbacks {
		if existing.BuildID == feedback.BuildID {
			w.SortFeedbacks[i] = feedback
			return nil
		}
	}
	w.SortFeedbacks = append(w.SortFeedbacks, feedback)
	return nil
}
