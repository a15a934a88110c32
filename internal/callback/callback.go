// Package callback runs the fixed-size worker pool that performs a
// timer's HTTP callback once it pops.
//
// Big idea:
//
//   - Fixed-size pool
//     A bounded number of goroutines perform callback POSTs
//     concurrently; unlike the replicator's queue, callback tasks are
//     never dropped silently — a full pool simply means Submit logs
//     and refuses the task rather than letting it pile up unbounded,
//     since a skipped callback is a real client-visible miss.
//
//   - Per-timer in-flight guard
//     Concurrent callbacks for the same timer id are never allowed:
//     the handler must not re-dispatch a timer while its previous pop
//     is still outstanding. A sync.Map tracks which ids are currently
//     in flight.
//
//   - Consecutive-failure alarm
//     After K consecutive failures for the same id, an alarm fires on
//     a channel the caller may subscribe to. The alarm/monitoring glue
//     itself lives outside this package; this is only the signal.
package callback

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"chronos/internal/timer"
)

// defaultAlarmThreshold is how many consecutive failed pops for the
// same id raise an alarm, absent an explicit override.
const defaultAlarmThreshold = 3

// Result is handed back to the caller once a callback attempt
// completes, whether it succeeded or not: a pop always advances the
// timer's sequence number regardless of the callback's outcome.
type Result struct {
	Timer   *timer.Timer
	Success bool
	Err     error
}

// Pool is the fixed-size HTTP callback worker pool.
type Pool struct {
	client         *http.Client
	tasks          chan *timer.Timer
	completions    chan Result
	alarms         chan uint64
	inFlight       sync.Map // id (uint64) -> struct{}
	failureStreaks sync.Map // id (uint64) -> int
	alarmThreshold int
	wg             sync.WaitGroup
}

// New starts a Pool with poolSize workers. alarmThreshold <= 0 uses
// the default of 3 consecutive failures.
func New(poolSize, alarmThreshold int) *Pool {
	if poolSize <= 0 {
		poolSize = 1
	}
	if alarmThreshold <= 0 {
		alarmThreshold = defaultAlarmThreshold
	}
	p := &Pool{
		client:         &http.Client{},
		tasks:          make(chan *timer.Timer, poolSize*4),
		completions:    make(chan Result, poolSize*4),
		alarms:         make(chan uint64, 16),
		alarmThreshold: alarmThreshold,
	}
	p.wg.Add(poolSize)
	for i := 0; i < poolSize; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

// Submit enqueues t for a callback attempt. It returns false without
// enqueuing if t's id already has a callback in flight, or if the
// pool's task queue is momentarily full.
func (p *Pool) Submit(t *timer.Timer) bool {
	if _, already := p.inFlight.LoadOrStore(t.ID, struct{}{}); already {
		return false
	}

	select {
	case p.tasks <- t:
		return true
	default:
		p.inFlight.Delete(t.ID)
		log.Printf("callback: pool saturated, dropping dispatch for timer %s", t)
		return false
	}
}

func (p *Pool) run(t *timer.Timer) {
	defer p.inFlight.Delete(t.ID)

	result := p.perform(context.Background(), t)
	p.trackFailureStreak(t.ID, result.Success)

	select {
	case p.completions <- result:
	default:
		log.Printf("callback: completions channel full, dropping result for timer %s", t)
	}
}

// perform executes the HTTP POST itself. It takes ownership of t for
// the duration of the call, per spec.md's "Perform takes ownership of
// the timer" contract.
func (p *Pool) perform(ctx context.Context, t *timer.Timer) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.CallbackURL, bytes.NewReader([]byte(t.CallbackBody)))
	if err != nil {
		return Result{Timer: t, Success: false, Err: err}
	}
	req.Header.Set("X-Sequence-Number", strconv.FormatUint(t.SequenceNumber, 10))
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Timer: t, Success: false, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Timer: t, Success: false, Err: unexpectedStatusError(resp.StatusCode)}
	}
	return Result{Timer: t, Success: true}
}

func (p *Pool) trackFailureStreak(id uint64, success bool) {
	if success {
		p.failureStreaks.Delete(id)
		return
	}

	streak := 1
	if v, ok := p.failureStreaks.Load(id); ok {
		streak = v.(int) + 1
	}
	p.failureStreaks.Store(id, streak)

	if streak >= p.alarmThreshold {
		select {
		case p.alarms <- id:
		default:
		}
	}
}

// Completions returns the channel of finished callback attempts.
func (p *Pool) Completions() <-chan Result {
	return p.completions
}

// Alarms returns the channel of ids that just crossed the
// consecutive-failure threshold.
func (p *Pool) Alarms() <-chan uint64 {
	return p.alarms
}

// Close stops accepting new tasks and waits for in-flight ones to
// finish.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
}

type unexpectedStatusError int

func (e unexpectedStatusError) Error() string {
	return "unexpected HTTP status " + strconv.Itoa(int(e))
}
