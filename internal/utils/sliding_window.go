package utils

import (
	"sync"
	"time"
)

// SlidingWindow counts events that happened within the last window.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

// TryAdd records an event only while fewer than limit are in the window.
// When the window is full it returns false and how long until the oldest
// event leaves it.
func (w *SlidingWindow) TryAdd(now time.Time, limit int) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.hits) >= limit {
		return false, w.retryAfter(now)
	}
	w.hits = append(w.hits, now)
	return true, 0
}

// Remove drops one event recorded at exactly at. It reports whether one
// was found.
func (w *SlidingWindow) Remove(at time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := len(w.hits) - 1; i >= 0; i-- {
		if w.hits[i].Equal(at) {
			w.hits = append(w.hits[:i], w.hits[i+1:]...)
			return true
		}
	}
	return false
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return len(w.hits)
}

func (w *SlidingWindow) retryAfter(now time.Time) time.Duration {
	if len(w.hits) == 0 {
		return 0
	}
	return w.hits[0].Add(w.window).Sub(now)
}

func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}
