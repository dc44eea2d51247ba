package disclosure

import (
	"sync"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// call stopped the timer.
	Stop() bool
}

// Scheduler runs deferred work. Fade phases and staggered buffering go
// through it so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the wall clock with time.AfterFunc.
type RealScheduler struct{}

// AfterFunc implements Scheduler.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler runs callbacks only when the test advances it. Callbacks
// run in due-time order, ties in scheduling order.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	s   *ManualScheduler
	at  time.Duration
	seq int
	f   func()
}

// NewManualScheduler returns a scheduler whose clock starts at zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc implements Scheduler.
func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{s: m, at: m.now + d, seq: m.seq, f: f}
	m.pending = append(m.pending, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, p := range t.s.pending {
		if p == t {
			t.s.pending = append(t.s.pending[:i], t.s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// next removes and returns the earliest timer due at or before limit.
func (m *ManualScheduler) next(limit time.Duration, bounded bool) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := -1
	for i, p := range m.pending {
		if bounded && p.at > limit {
			continue
		}
		if best < 0 || p.at < m.pending[best].at || (p.at == m.pending[best].at && p.seq < m.pending[best].seq) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	t := m.pending[best]
	m.pending = append(m.pending[:best], m.pending[best+1:]...)
	if t.at > m.now {
		m.now = t.at
	}
	return t
}

// Advance moves the clock forward by d, running every callback that falls
// due, including ones scheduled by earlier callbacks. It returns how many
// callbacks ran.
func (m *ManualScheduler) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	n := 0
	for t := m.next(target, true); t != nil; t = m.next(target, true) {
		t.f()
		n++
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	return n
}

// Flush runs callbacks until none are pending, advancing the clock to each
// one's due time. It returns how many callbacks ran.
func (m *ManualScheduler) Flush() int {
	n := 0
	for t := m.next(0, false); t != nil; t = m.next(0, false) {
		t.f()
		n++
	}
	return n
}

// Pending returns the number of callbacks waiting to run.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Elapsed returns the scheduler's clock.
func (m *ManualScheduler) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}
