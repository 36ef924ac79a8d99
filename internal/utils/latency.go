package utils

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps a fixed window of recent durations in a ring buffer.
type LatencyTracker struct {
	mu     sync.Mutex
	window []time.Duration
	next   int
	filled bool
	total  uint64
}

// NewLatencyTracker creates a tracker holding the last size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{window: make([]time.Duration, size)}
}

// Observe records d and returns the number of observations seen so far,
// including ones that have rotated out of the window.
func (l *LatencyTracker) Observe(d time.Duration) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window[l.next] = d
	l.next = (l.next + 1) % len(l.window)
	if l.next == 0 {
		l.filled = true
	}
	l.total++
	return l.total
}

// Percentile returns the nearest-rank percentile (0-100) of the window, or
// zero when empty.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.Lock()
	samples := slices.Clone(l.samples())
	l.mu.Unlock()

	if len(samples) == 0 {
		return 0
	}
	slices.Sort(samples)
	switch {
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[int(p/100*float64(len(samples)-1))]
}

// Count returns the number of samples currently in the window.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples())
}

func (l *LatencyTracker) samples() []time.Duration {
	if l.filled {
		return l.window
	}
	return l.window[:l.next]
}
