package cachetrace

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewSeedsReceived(t *testing.T) {
	trace := New("s1", "ash", "hi")
	if trace.TraceID == "" {
		t.Fatal("missing trace id")
	}
	if got := trace.IncCounter(StageReceived); got != 2 {
		t.Fatalf("received counter %d, want 2", got)
	}
}

func TestTraceIDDeterministic(t *testing.T) {
	a := New("s1", "ash", "hi")
	b := New("s1", "ash", "hi")
	if a.TraceID != b.TraceID {
		t.Fatalf("same inputs, different ids: %s vs %s", a.TraceID, b.TraceID)
	}

	c := New("s2", "ash", "hi")
	if a.TraceID == c.TraceID {
		t.Fatal("different sessions share a trace id")
	}
}

func TestTraceIDFieldBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	a := New("s", "ab", "c")
	b := New("s", "a", "bc")
	if a.TraceID == b.TraceID {
		t.Fatal("field boundary collision")
	}
}

func TestIncCounterStages(t *testing.T) {
	trace := New("s1", "ash", "hi")
	for i := int64(1); i <= 3; i++ {
		if got := trace.IncCounter(StagePersisted); got != i {
			t.Fatalf("persisted counter %d, want %d", got, i)
		}
	}
	if got := trace.IncCounter(StageMerged); got != 1 {
		t.Fatalf("merged counter %d, want 1", got)
	}
}

func TestStageDropped(t *testing.T) {
	if got := StageDropped("duplicate"); got != Stage("dropped_duplicate") {
		t.Fatalf("got %q", got)
	}
}

func TestLogTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	trace := New("s1", "ash", "hi")
	trace.IncCounter(StagePersisted)
	trace.LogTrace(logger, "message cached")

	out := buf.String()
	for _, want := range []string{"message cached", "trace_id=", "session=s1", "sender=ash"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}
