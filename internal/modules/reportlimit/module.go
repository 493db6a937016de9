// Package reportlimit throttles report submissions per reporter so one
// member cannot flood the queue.
package reportlimit

import (
	"sync"
	"time"

	"scamwatch/internal/config"
	"scamwatch/internal/utils"
)

// sweepThreshold is the number of tracked reporters above which idle windows
// are dropped.
const sweepThreshold = 1024

type Module struct {
	mu      sync.Mutex
	windows map[string]*utils.SlidingWindow
	limit   int
	window  time.Duration
}

func New(cfg config.UploadConfig) *Module {
	return &Module{
		windows: make(map[string]*utils.SlidingWindow),
		limit:   cfg.SubmissionLimit,
		window:  cfg.SubmissionWindow,
	}
}

func (m *Module) Enabled() bool {
	return m != nil && m.limit > 0 && m.window > 0
}

// Reservation holds one slot of a reporter's limit. A submission that is
// not stored gives its slot back with Release.
type Reservation struct {
	module *Module
	userID string
	at     time.Time
}

// Reserve takes a slot for userID if one is free, and otherwise reports how
// long to wait. Concurrent callers never get more slots than the limit.
func (m *Module) Reserve(userID string, now time.Time) (Reservation, bool, time.Duration) {
	if !m.Enabled() {
		return Reservation{}, true, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.windows[userID]
	if window == nil {
		if len(m.windows) >= sweepThreshold {
			m.sweep(now)
		}
		window = utils.NewSlidingWindow(m.window)
		m.windows[userID] = window
	}
	if ok, wait := window.TryAdd(now, m.limit); !ok {
		return Reservation{}, false, wait
	}
	return Reservation{module: m, userID: userID, at: now}, true, 0
}

// Release returns the slot. It is a no-op on the zero Reservation.
func (r Reservation) Release() {
	if r.module == nil {
		return
	}
	r.module.mu.Lock()
	defer r.module.mu.Unlock()
	if window := r.module.windows[r.userID]; window != nil {
		window.Remove(r.at)
	}
}

func (m *Module) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *Module) sweep(now time.Time) {
	for id, window := range m.windows {
		if window.Count(now) == 0 {
			delete(m.windows, id)
		}
	}
}
