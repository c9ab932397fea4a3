package node

import (
	"container/heap"
	"sync"
	"time"
)

// Clock abstracts wall-clock vs. simulated time (spec.md §4.9): the
// node facade selects WallClock by default and SimClock when the
// /use_sim_time parameter is truthy. The node does not subscribe to
// /clock itself; SimClock.Trigger advances only when the caller feeds
// it (see Node.SimClock).
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	WaitUntil(t time.Time)
}

// WallClock delegates directly to the OS clock.
type WallClock struct{}

func (WallClock) Now() time.Time        { return time.Now() }
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }
func (WallClock) WaitUntil(t time.Time) {
	if d := time.Until(t); d > 0 {
		time.Sleep(d)
	}
}

type waiter struct {
	until time.Time
	ch    chan struct{}
	index int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int            { return len(h) }
func (h waiterHeap) Less(i, j int) bool  { return h[i].until.Before(h[j].until) }
func (h waiterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *waiterHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

// SimClock is an in-memory simulated timeline driven by Trigger,
// normally fed by a subscription to /clock, per spec.md §4.9. Waiters
// blocked in Sleep/WaitUntil are held on a min-heap keyed by wake
// time and released in order as Trigger advances the clock past them.
type SimClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters waiterHeap
}

// NewSimClock builds a SimClock starting at the zero time; the first
// Trigger call establishes the actual starting timestamp.
func NewSimClock() *SimClock {
	return &SimClock{}
}

func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Trigger advances the simulated clock to t and wakes every waiter
// whose deadline is now at or before t.
func (c *SimClock) Trigger(t time.Time) {
	c.mu.Lock()
	if t.Before(c.now) {
		c.mu.Unlock()
		return
	}
	c.now = t
	var woken []*waiter
	for c.waiters.Len() > 0 && !c.waiters[0].until.After(c.now) {
		w := heap.Pop(&c.waiters).(*waiter)
		woken = append(woken, w)
	}
	c.mu.Unlock()

	for _, w := range woken {
		close(w.ch)
	}
}

func (c *SimClock) WaitUntil(t time.Time) {
	c.mu.Lock()
	if !t.After(c.now) {
		c.mu.Unlock()
		return
	}
	w := &waiter{until: t, ch: make(chan struct{})}
	heap.Push(&c.waiters, w)
	c.mu.Unlock()

	<-w.ch
}

func (c *SimClock) Sleep(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.WaitUntil(target)
}

// Rate implements the sleep-until-next-tick helper spec.md §4.9 names
// on the node facade (rate(hz)), grounded on original_source/rosrust's
// time.rs Rate: each Sleep call advances the target by exactly one
// period from the previous tick, so drift from slow iterations doesn't
// accumulate across calls.
type Rate struct {
	clock  Clock
	period time.Duration
	next   time.Time
}

// NewRate builds a Rate ticking at hz Hz against clock, with the first
// tick scheduled one period after construction.
func NewRate(clock Clock, hz float64) *Rate {
	period := time.Duration(float64(time.Second) / hz)
	return &Rate{clock: clock, period: period, next: clock.Now().Add(period)}
}

// Sleep blocks until the next tick and schedules the following one.
func (r *Rate) Sleep() {
	r.clock.WaitUntil(r.next)
	r.next = r.next.Add(r.period)
	if now := r.clock.Now(); r.next.Before(now) {
		// fell behind by more than one period; resync instead of
		// firing a burst of already-past ticks.
		r.next = now.Add(r.period)
	}
}
