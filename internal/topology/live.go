package topology

import "sync/atomic"

// Live is the process-wide, hot-swappable topology snapshot. Mirrors
// config.Live's atomic.Pointer discipline: a SIGHUP reload builds a
// brand new Topology from the reloaded Config and swaps it in here,
// and a timer already mid-dispatch keeps the snapshot pointer it
// captured at the start of its operation rather than observing a
// half-updated cluster.
type Live struct {
	ptr atomic.Pointer[Topology]
}

// NewLive wraps an initial topology snapshot.
func NewLive(t *Topology) *Live {
	l := &Live{}
	l.ptr.Store(t)
	return l
}

// Get returns the currently active topology snapshot.
func (l *Live) Get() *Topology {
	return l.ptr.Load()
}

// Swap installs next as the active snapshot, returning the previous one.
func (l *Live) Swap(next *Topology) *Topology {
	return l.ptr.Swap(next)
}
