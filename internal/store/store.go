// Package store holds the TimerStore: a two-tier timing wheel plus an
// overflow heap, keyed by id for O(1) replace/delete.
//
// Big idea:
//
//  1. Short wheel
//     Most timers pop within the next few seconds. A fixed-granularity
//     wheel gives O(1) insert and O(1) advance for that common case.
//     Each bucket is addressed by an absolute tick number modulo the
//     wheel size, not by a moving time offset — a bucket's contents
//     never need to be re-indexed as the cursor advances, only
//     drained when the cursor's tick reaches it.
//
//  2. Long wheel
//     Timers further out than the short wheel's horizon sit in a
//     coarser wheel, addressed the same tick-modulo way, and get
//     promoted into the short wheel once the short wheel's cursor
//     completes a full revolution (one long-wheel tick).
//
//  3. Extra heap
//     Timers beyond even the long wheel's horizon sit in a
//     next-pop-time-ordered heap, promoted into the long wheel as
//     its cursor advances.
//
//  4. Concurrency
//     A single sync.Mutex protects all three tiers plus the id index;
//     this is a write-heavy structure (every pop reinserts) so a plain
//     Mutex, not an RWMutex, matches the access pattern.
package store

import (
	"sync"
	"time"

	"chronos/internal/timer"
)

const (
	// ShortBuckets is the number of buckets in the short wheel.
	ShortBuckets = 1024
	// ShortGranularity is the duration each short-wheel tick covers.
	ShortGranularity = 10 * time.Millisecond

	// LongBuckets is the number of buckets in the long wheel.
	LongBuckets = 4096
	// LongGranularity is the duration each long-wheel tick covers:
	// exactly one full revolution of the short wheel.
	LongGranularity = ShortBuckets * ShortGranularity
)

// ShortHorizon is the furthest-future instant the short wheel alone
// can address, relative to its current tick.
const ShortHorizon = ShortBuckets * ShortGranularity

// LongHorizon is the furthest-future instant the long wheel can
// address, relative to its current tick.
const LongHorizon = LongBuckets * LongGranularity

// tier names which of the store's three structures holds an entry.
type tier int

const (
	tierShort tier = iota
	tierLong
	tierHeap
)

// entry is the store's private record for one scheduled timer: the
// timer itself plus the bookkeeping needed to locate and remove it in
// O(1).
type entry struct {
	t       *timer.Timer
	nextPop time.Time
	tier    tier
	bucket  int // valid only when tier is tierShort or tierLong
	heapIdx int // maintained by container/heap when tier is tierHeap
}

// Store is the TimerStore: a two-tier wheel plus overflow heap.
type Store struct {
	mu sync.Mutex

	origin    time.Time // fixed reference instant; tick numbers are measured from here
	shortTick int64     // next short-wheel tick not yet fully drained
	longTick  int64     // long-wheel tick the short cursor is in; its bucket is already promoted

	short [ShortBuckets][]*entry
	long  [LongBuckets][]*entry
	extra timerHeap

	byID map[uint64]*entry
}

// New returns an empty Store. start anchors tick 0 of both wheels.
func New(start time.Time) *Store {
	return &Store{
		origin: start,
		byID:   make(map[uint64]*entry),
	}
}

// shortTickOf returns the short-wheel tick number t falls in.
func (s *Store) shortTickOf(t time.Time) int64 {
	return int64(t.Sub(s.origin) / ShortGranularity)
}

// longTickOf returns the long-wheel tick number t falls in.
func (s *Store) longTickOf(t time.Time) int64 {
	return int64(t.Sub(s.origin) / LongGranularity)
}

// AddTimer inserts t, replacing any existing entry for the same id.
// After return, exactly one entry for t.ID exists, placed in the
// correct tier and bucket for its next pop time.
func (s *Store) AddTimer(t *timer.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[t.ID]; ok {
		s.removeEntryLocked(old)
	}

	e := &entry{t: t, nextPop: t.NextPopTime()}
	s.placeLocked(e)
	s.byID[t.ID] = e
}

// placeLocked assigns e to the correct tier and bucket for e.nextPop.
// A tick that has already elapsed (the timer is already due) is
// clamped to the wheel's current tick, so it drains on the very next
// pass rather than being missed or wrapping a full revolution late.
func (s *Store) placeLocked(e *entry) {
	shortTick := s.shortTickOf(e.nextPop)
	if shortTick < s.shortTick {
		shortTick = s.shortTick
	}
	if shortTick-s.shortTick < ShortBuckets {
		idx := int(shortTick % ShortBuckets)
		e.tier, e.bucket = tierShort, idx
		s.short[idx] = append(s.short[idx], e)
		return
	}

	longTick := s.longTickOf(e.nextPop)
	if longTick < s.longTick {
		longTick = s.longTick
	}
	if longTick-s.longTick < LongBuckets {
		idx := int(longTick % LongBuckets)
		e.tier, e.bucket = tierLong, idx
		s.long[idx] = append(s.long[idx], e)
		return
	}

	e.tier = tierHeap
	heapPush(&s.extra, e)
}

// DeleteTimer removes the entry for id, if present. Idempotent.
func (s *Store) DeleteTimer(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return
	}
	s.removeEntryLocked(e)
	delete(s.byID, id)
}

// removeEntryLocked detaches e from whichever tier currently holds it.
// Callers are responsible for also removing it from s.byID.
func (s *Store) removeEntryLocked(e *entry) {
	switch e.tier {
	case tierShort:
		s.short[e.bucket] = removeFromSlice(s.short[e.bucket], e)
	case tierLong:
		s.long[e.bucket] = removeFromSlice(s.long[e.bucket], e)
	case tierHeap:
		heapRemove(&s.extra, e)
	}
}

func removeFromSlice(bucket []*entry, target *entry) []*entry {
	for i, e := range bucket {
		if e == target {
			bucket[i] = bucket[len(bucket)-1]
			return bucket[:len(bucket)-1]
		}
	}
	return bucket
}

// GetNextTimers drains every timer whose next pop time is at or before
// now, appending them to out. The store no longer owns a drained
// timer once this returns; the caller decides whether to reinsert it.
//
// Promotion from the long wheel into the short wheel (and from the
// heap into the long wheel) happens opportunistically each time the
// short wheel's cursor completes a revolution.
func (s *Store) GetNextTimers(now time.Time, out *[]*timer.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.shortTickOf(now)
	for {
		idx := int(s.shortTick % ShortBuckets)
		s.drainBucketLocked(&s.short[idx], now, out)

		// The cursor stays on now's tick, so entries later in that same
		// tick are drained by a later call.
		if s.shortTick >= target {
			return
		}
		s.shortTick++
		if s.shortTick%ShortBuckets == 0 {
			s.promoteLongLocked()
		}
	}
}

// drainBucketLocked removes every entry in bucket whose next pop time
// is at or before now, appending their timers to out and clearing
// their id-index entries. Entries not yet due (later in the same tick
// as now) are kept in place.
func (s *Store) drainBucketLocked(bucket *[]*entry, now time.Time, out *[]*timer.Timer) {
	remaining := (*bucket)[:0]
	for _, e := range *bucket {
		if !e.nextPop.After(now) {
			*out = append(*out, e.t)
			delete(s.byID, e.t.ID)
		} else {
			remaining = append(remaining, e)
		}
	}
	*bucket = remaining
}

// promoteLongLocked fires once per short-wheel revolution: the long
// wheel's current tick has now entered the short wheel's addressable
// horizon, so every entry in its bucket is re-placed into the short
// wheel, and the heap is drained of anything that now fits in the
// freed long-wheel tick.
func (s *Store) promoteLongLocked() {
	s.longTick++

	idx := int(s.longTick % LongBuckets)
	bucket := s.long[idx]
	s.long[idx] = nil
	for _, e := range bucket {
		s.placeLocked(e)
	}

	for s.extra.Len() > 0 {
		e := s.extra[0]
		longTick := s.longTickOf(e.nextPop)
		if longTick-s.longTick >= LongBuckets {
			break
		}
		heapPop(&s.extra)
		s.placeLocked(e)
	}
}

// NextWakeup returns the earliest next pop time across every tier, and
// false if the store is empty. The dispatcher, not the store, is
// responsible for capping the result at now+100ms.
func (s *Store) NextWakeup() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	var earliest time.Time
	consider := func(e *entry) {
		if !found || e.nextPop.Before(earliest) {
			earliest = e.nextPop
			found = true
		}
	}
	for _, bucket := range s.short {
		for _, e := range bucket {
			consider(e)
		}
	}
	for _, bucket := range s.long {
		for _, e := range bucket {
			consider(e)
		}
	}
	if s.extra.Len() > 0 {
		consider(s.extra[0])
	}
	return earliest, found
}

// Get returns the current entry for id without removing it.
func (s *Store) Get(id uint64) (*timer.Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.t, true
}

// Len returns the number of timers currently held across every tier.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
