package rentaly

import (
	"sync"
	"time"
)

// Clock abstracts the time source used by every timer in a session.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper is the cancellation half of a scheduled callback.
type Stopper interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }

// TimerGroup owns every timer a component schedules. Once Close is called no
// pending callback runs and new timers are refused, so nothing fires against
// torn-down state.
type TimerGroup struct {
	clock Clock

	mu     sync.Mutex
	nextID uint64
	timers map[uint64]Stopper
	closed bool
}

// Timer is a handle to one scheduled callback of a TimerGroup.
type Timer struct {
	group *TimerGroup
	id    uint64
}

// NewTimerGroup creates a group on the given clock (nil means the wall clock).
func NewTimerGroup(clock Clock) *TimerGroup {
	if clock == nil {
		clock = SystemClock()
	}
	return &TimerGroup{
		clock:  clock,
		timers: make(map[uint64]Stopper),
	}
}

// Now returns the group's current time.
func (g *TimerGroup) Now() time.Time {
	return g.clock.Now()
}

// AfterFunc schedules f to run after d. On a closed group it returns an inert
// timer and f never runs.
func (g *TimerGroup) AfterFunc(d time.Duration, f func()) *Timer {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return &Timer{}
	}
	g.nextID++
	id := g.nextID
	// The callback blocks on g.mu until the entry below is stored.
	g.timers[id] = g.clock.AfterFunc(d, func() {
		g.mu.Lock()
		_, live := g.timers[id]
		delete(g.timers, id)
		g.mu.Unlock()
		if live {
			f()
		}
	})
	return &Timer{group: g, id: id}
}

// Pending reports how many timers are still scheduled.
func (g *TimerGroup) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// Close cancels all pending timers and refuses new ones.
func (g *TimerGroup) Close() {
	g.mu.Lock()
	timers := g.timers
	g.timers = make(map[uint64]Stopper)
	g.closed = true
	g.mu.Unlock()

	for _, s := range timers {
		s.Stop()
	}
}

// Stop cancels the timer. It reports whether the callback was still pending.
// A nil or inert timer is a no-op.
func (t *Timer) Stop() bool {
	if t == nil || t.group == nil {
		return false
	}
	g := t.group
	g.mu.Lock()
	s, ok := g.timers[t.id]
	delete(g.timers, t.id)
	g.mu.Unlock()
	if ok {
		s.Stop()
	}
	return ok
}
