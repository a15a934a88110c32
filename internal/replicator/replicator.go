// Package replicator fans a timer's current state out to its replicas
// over HTTP, fire-and-forget from the caller's perspective.
//
// Big idea:
//
//   - Bounded worker pool
//     A fixed number of goroutines pull replication tasks off a
//     channel and perform the PUT. This caps how much concurrent
//     outbound HTTP the node ever attempts, regardless of how bursty
//     timer churn gets.
//
//   - Bounded queue, drop-oldest on overflow
//     If every worker is busy and the queue is full, the oldest queued
//     task is dropped (and logged) to make room for the newest one —
//     a late-arriving PUT for a timer's current state is more useful
//     to a peer than a PUT for a state that's already stale.
//
//   - No acknowledgement
//     The caller never learns whether a replication attempt succeeded.
//     Peer conflict resolution (by sequence number, tombstones winning
//     ties) is what makes this safe: a dropped or failed replication
//     attempt is indistinguishable from one that simply hasn't
//     happened yet.
package replicator

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chronos/internal/timer"
)

const requestTimeout = 3 * time.Second

type task struct {
	url       string
	body      []byte
	attemptID string
}

// Replicator is the bounded worker pool described above.
type Replicator struct {
	localAddr string
	client    *http.Client
	queue     chan task

	dropped atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
}

// New starts a Replicator with poolSize workers and a queue of depth
// queueCap. localAddr is excluded from every fan-out, since a node
// never replicates to itself.
func New(localAddr string, poolSize, queueCap int) *Replicator {
	if poolSize <= 0 {
		poolSize = 1
	}
	if queueCap <= 0 {
		queueCap = 1
	}
	r := &Replicator{
		localAddr: localAddr,
		client:    &http.Client{Timeout: requestTimeout},
		queue:     make(chan task, queueCap),
	}
	for i := 0; i < poolSize; i++ {
		go r.worker()
	}
	return r
}

func (r *Replicator) worker() {
	for t := range r.queue {
		r.send(t)
	}
}

// Replicate fans a PUT of t's current JSON encoding out to every
// address in t.Replicas except localAddr, using bloomHash as the
// bloom portion of the URL each peer sees. It never blocks the caller
// on network I/O: a full queue drops its oldest pending task to make
// room.
func (r *Replicator) Replicate(t *timer.Timer, bloomHash uint64) {
	body, err := t.ToJSON()
	if err != nil {
		log.Printf("replicator: encoding timer %s: %v", t, err)
		return
	}

	for _, addr := range t.Replicas {
		if addr == r.localAddr {
			continue
		}
		r.enqueue(task{
			url:       t.PeerURL(addr, bloomHash),
			body:      body,
			attemptID: uuid.NewString(),
		})
	}
}

func (r *Replicator) enqueue(tk task) {
	select {
	case r.queue <- tk:
		return
	default:
	}

	// Queue is full: drop the oldest pending task to make room for
	// this one.
	select {
	case <-r.queue:
		r.dropped.Add(1)
		log.Printf("replicator: queue full, dropped oldest pending task")
	default:
	}

	select {
	case r.queue <- tk:
	default:
		// Another Replicate call refilled the freed slot before this
		// send; the task is simply lost, same as a dropped one.
		r.dropped.Add(1)
		log.Printf("replicator: queue full, dropped task %s", tk.attemptID)
	}
}

func (r *Replicator) send(tk task) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, tk.url, bytes.NewReader(tk.body))
	if err != nil {
		r.failed.Add(1)
		log.Printf("replicator: building request for %s: %v", tk.url, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Replication-Attempt-ID", tk.attemptID)

	resp, err := r.client.Do(req)
	if err != nil {
		r.failed.Add(1)
		log.Printf("replicator: PUT %s (attempt %s): %v", tk.url, tk.attemptID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		r.failed.Add(1)
		log.Printf("replicator: PUT %s (attempt %s): peer returned HTTP %d", tk.url, tk.attemptID, resp.StatusCode)
		return
	}
	r.sent.Add(1)
}

// Stats returns running counters for observability: successfully sent
// replication PUTs, failed ones (transport error or non-2xx), and
// tasks dropped for queue overflow.
func (r *Replicator) Stats() (sent, failed, dropped int64) {
	return r.sent.Load(), r.failed.Load(), r.dropped.Load()
}

// Close closes the task queue and returns without waiting. Workers go
// on sending the tasks still queued and then exit; a Replicate call
// after Close panics on the closed queue.
func (r *Replicator) Close() {
	close(r.queue)
}
