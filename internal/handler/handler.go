// Package handler runs the dispatcher: the single goroutine that walks
// the TimerStore forward in time, hands due timers to the callback
// pool, and reinserts whichever of them are still within their repeat
// window.
//
// Big idea:
//
//   - One dispatcher, one state machine
//     WAITING(until) -> DISPATCHING -> WAITING(next) -> ... -> STOPPING.
//     Only the dispatcher goroutine ever calls Store.AddTimer/
//     GetNextTimers for locally-owned pop-driven reinsertion, so there
//     is never a race between "a timer just popped" and "a timer was
//     just rescheduled from the same pop".
//
//   - Wake channel instead of a condition variable
//     Go has no condition variable primitive worth reaching for here;
//     a buffered chan struct{} plays the same role. ApplyIncoming and
//     DeleteTimer signal it, and the dispatcher wakes whenever either
//     the signal arrives or its current deadline elapses, whichever is
//     first.
//
//   - Completion channel breaks the cyclic ownership
//     The callback pool doesn't hold a reference back to the handler,
//     and the handler does not read the pool's Completions() channel
//     either: it advances the sequence number and reinserts a timer at
//     dispatch time, before the callback runs. Whoever owns the pool
//     (cmd/chronosd) drains Completions().
package handler

import (
	"log"
	"sync"
	"time"

	"chronos/internal/callback"
	"chronos/internal/clockwork"
	"chronos/internal/store"
	"chronos/internal/timer"
)

// maxWakeupDelay bounds how long the dispatcher will ever sleep in one
// WAITING state, regardless of how far out the next real pop is. This
// keeps it responsive to newly-added timers and to clock skew.
const maxWakeupDelay = 100 * time.Millisecond

// pastReinsertSmear is added to "now" when a reinsert's computed next
// pop time has already elapsed, so a burst of timers with the same
// interval don't all refire in lockstep.
const pastReinsertSmear = time.Millisecond

// Handler owns the dispatcher goroutine for one node's locally-stored
// timers.
type Handler struct {
	store     *store.Store
	pool      *callback.Pool
	clock     clockwork.Clock
	localAddr string

	wake chan struct{}
	stop chan struct{}

	wg sync.WaitGroup
}

// New constructs a Handler and starts its dispatcher goroutine.
// localAddr identifies which replica slot belongs to this node, used
// only for log messages.
func New(s *store.Store, pool *callback.Pool, clock clockwork.Clock, localAddr string) *Handler {
	h := &Handler{
		store:     s,
		pool:      pool,
		clock:     clock,
		localAddr: localAddr,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// ApplyIncoming resolves t against whatever this node currently holds
// for the same id before storing it, so an out-of-order or duplicate
// write (a peer's replicated PUT arriving late, or a retried client
// PUT) can never roll a timer backwards. It reports whether t was
// applied; a false return means t lost the conflict and the store was
// left untouched. Both locally-originated writes (a create, a client
// PUT) and remote ones (a peer's replication PUT) go through this same
// path, since neither can be trusted to arrive in order.
func (h *Handler) ApplyIncoming(t *timer.Timer) bool {
	if existing, ok := h.store.Get(t.ID); ok && !t.SupersedesOnConflict(existing) {
		return false
	}
	h.store.AddTimer(t)
	h.signal()
	return true
}

// DeleteTimer removes a timer by id and wakes the dispatcher.
func (h *Handler) DeleteTimer(id uint64) {
	h.store.DeleteTimer(id)
	h.signal()
}

// Get returns the current state of the timer with id, if this node
// currently stores it.
func (h *Handler) Get(id uint64) (*timer.Timer, bool) {
	return h.store.Get(id)
}

func (h *Handler) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Stop requests a graceful shutdown: the dispatcher flushes one more
// drain pass and exits. Stop blocks until the goroutine has returned.
func (h *Handler) Stop() {
	close(h.stop)
	h.wg.Wait()
}

func (h *Handler) run() {
	defer h.wg.Done()

	for {
		if h.waitForWakeupOrDeadline() {
			h.dispatch()
			continue
		}

		// stop() was requested: flush pending drains once more, then exit.
		h.dispatch()
		return
	}
}

// waitForWakeupOrDeadline blocks until either the computed deadline
// elapses or a wake signal arrives, returning true in both cases and
// false only when Stop() was requested.
func (h *Handler) waitForWakeupOrDeadline() bool {
	deadline := h.nextDeadline()
	d := deadline.Sub(h.clock.Now())
	if d < 0 {
		d = 0
	}

	select {
	case <-h.stop:
		return false
	case <-h.wake:
		return true
	case <-h.clock.After(d):
		return true
	}
}

// nextDeadline computes the next wakeup instant: the earliest pending
// pop time in the store, capped at now+100ms.
func (h *Handler) nextDeadline() time.Time {
	now := h.clock.Now()
	ceiling := now.Add(maxWakeupDelay)

	next, ok := h.store.NextWakeup()
	if !ok || next.After(ceiling) {
		return ceiling
	}
	return next
}

// dispatch is one DISPATCHING step: drain every timer due by now,
// submit each to the callback pool, and reinsert whichever have a next
// pop still within their repeat window.
func (h *Handler) dispatch() {
	now := h.clock.Now()

	var drained []*timer.Timer
	h.store.GetNextTimers(now, &drained)

	for _, t := range drained {
		if t.IsTombstone() {
			continue
		}

		t.SequenceNumber++
		if t.WithinRepeatWindow(t.SequenceNumber + 1) {
			h.reinsert(t, now)
		}

		if !h.pool.Submit(t.Clone()) {
			log.Printf("handler[%s]: dropped callback dispatch for %s (already in flight or pool saturated)", h.localAddr, t)
		}
	}
}

// reinsert places t back in the store for its next pop. NextPopTime is
// always derived from StartTime and SequenceNumber, so smearing a
// past-due reinsert forward by pastReinsertSmear means solving that
// formula backwards for the StartTime that makes NextPopTime land
// exactly at now+smear.
func (h *Handler) reinsert(t *timer.Timer, now time.Time) {
	if !t.NextPopTime().After(now) {
		elapsed := time.Duration(t.SequenceNumber+1) * time.Duration(t.IntervalMS) * time.Millisecond
		t.StartTime = now.Add(pastReinsertSmear).Add(-elapsed)
	}
	h.store.AddTimer(t)
}
