package utils

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, ms := range []int{50, 10, 40, 20, 30} {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	if tracker.Count() != 5 {
		t.Fatalf("expected count 5, got %d", tracker.Count())
	}
	if p95 := tracker.Percentile(95); p95 < 40*time.Millisecond {
		t.Fatalf("expected p95 >= 40ms, got %v", p95)
	}
	if min := tracker.Percentile(0); min != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", min)
	}
	if max := tracker.Percentile(100); max != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", max)
	}
}

func TestLatencyTrackerWindowRotates(t *testing.T) {
	tracker := NewLatencyTracker(3)
	var total uint64
	for i := 1; i <= 10; i++ {
		total = tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected window size 3, got %d", tracker.Count())
	}
	if total != 10 {
		t.Fatalf("expected 10 observations, got %d", total)
	}
	if min := tracker.Percentile(0); min != 8*time.Millisecond {
		t.Fatalf("oldest samples should have rotated out, min=%v", min)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	if got := NewLatencyTracker(0).Percentile(95); got != 0 {
		t.Fatalf("expected zero for empty tracker, got %v", got)
	}
}

func TestAppErrorStatus(t *testing.T) {
	cause := errors.New("voice timed out")
	err := NewAppError("fusion.Fuse", http.StatusBadGateway, "mandatory modality unavailable", cause)

	wrapped := errors.Join(errors.New("outer"), err)
	if StatusOf(wrapped) != http.StatusBadGateway {
		t.Fatalf("status not found through wrapping")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("cause not reachable")
	}
	if !strings.Contains(MessageOf(err), "voice timed out") {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
	if StatusOf(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatalf("plain errors should map to 500")
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "debug", "json")
	logger.Debug("fused", "prediction", "Truthful")
	if !strings.Contains(buf.String(), `"prediction":"Truthful"`) || !strings.Contains(buf.String(), `"service":"vericloud-fusion"`) {
		t.Fatalf("unexpected json output %q", buf.String())
	}

	buf.Reset()
	logger = NewLoggerTo(&buf, "warn", "text")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
}
