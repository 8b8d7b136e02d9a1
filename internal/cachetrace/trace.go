package cachetrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// Stage represents a pipeline stage used for tracking a message through
// the cache.
type Stage string

const (
	StageReceived      Stage = "received"
	StageLoadedCache   Stage = "loaded_from_cache"
	StageMerged        Stage = "merged"
	StageReplyResolved Stage = "reply_resolved"
	StagePersisted     Stage = "persisted"

	StageDroppedPrefix = "dropped_"
)

// StageDropped creates a Stage for a dropped message with the given reason.
func StageDropped(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageDroppedPrefix, reason))
}

// Trace captures metadata for a message as it moves through load,
// enrichment, and persistence.
type Trace struct {
	Session string
	Sender  string
	Snippet string
	TraceID string

	mu       sync.Mutex
	counters map[Stage]int64
}

// New constructs a trace from message metadata and seeds the received
// counter.
func New(session, sender, snippet string) *Trace {
	trace := &Trace{
		Session:  session,
		Sender:   sender,
		Snippet:  snippet,
		TraceID:  computeTraceID(session, sender, snippet),
		counters: make(map[Stage]int64),
	}

	trace.counters[StageReceived] = 1
	return trace
}

// IncCounter increments the counter for the provided stage and returns
// the updated value.
func (t *Trace) IncCounter(stage Stage) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage]++
	return t.counters[stage]
}

// LogTrace logs the trace metadata and counters using structured logging.
func (t *Trace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info(msg,
		"trace_id", t.TraceID,
		"session", t.Session,
		"sender", t.Sender,
		"snippet", t.Snippet,
		"counters", t.snapshotCounters(),
	)
}

func (t *Trace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	copy := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		copy[stage] = count
	}

	return copy
}

func computeTraceID(session, sender, snippet string) string {
	digest := sha256.Sum256([]byte(session + "\x1f" + sender + "\x1f" + snippet))
	return hex.EncodeToString(digest[:])
}
