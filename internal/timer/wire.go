package timer

import (
	"encoding/json"
	"fmt"
	"time"
)

// defaultReplicationFactor is used whenever the client supplies neither
// an explicit replica list nor a replication-factor.
const defaultReplicationFactor = 2

type wireTiming struct {
	IntervalMS       *int64 `json:"interval"`
	RepeatForMS      *int64 `json:"repeat-for"`
	StartTimeDeltaMS *int64 `json:"start-time-delta,omitempty"`

	// StartTimeMS is never sent by a well-behaved client — it lets a peer
	// replication PUT carry the authoritative absolute start time instead
	// of reinterpreting a relative delta against its own clock.
	StartTimeMS *int64 `json:"start-time,omitempty"`
}

type wireHTTP struct {
	URI    *string `json:"uri"`
	Opaque *string `json:"opaque"`
}

type wireCallback struct {
	HTTP *wireHTTP `json:"http"`
}

type wireReliability struct {
	ReplicationFactor *int      `json:"replication-factor,omitempty"`
	Replicas          *[]string `json:"replicas,omitempty"`
}

type wireTimer struct {
	Timing         wireTiming       `json:"timing"`
	Callback       wireCallback     `json:"callback"`
	Reliability    *wireReliability `json:"reliability,omitempty"`
	SequenceNumber *uint64          `json:"sequence-number,omitempty"`
	Tombstone      bool             `json:"tombstone,omitempty"`
}

// ToJSON renders the timer in the documented wire shape, including the
// current sequence number.
func (t *Timer) ToJSON() ([]byte, error) {
	seq := t.SequenceNumber
	startMS := t.StartTime.UnixMilli()
	w := wireTimer{
		Timing: wireTiming{
			IntervalMS:  &t.IntervalMS,
			RepeatForMS: &t.RepeatForMS,
			StartTimeMS: &startMS,
		},
		Callback: wireCallback{
			HTTP: &wireHTTP{URI: &t.CallbackURL, Opaque: &t.CallbackBody},
		},
		Reliability: &wireReliability{
			Replicas: &t.Replicas,
		},
		SequenceNumber: &seq,
		Tombstone:      t.Tombstone,
	}
	return json.Marshal(w)
}

// FromJSON parses body per the documented schema, strictly: a required
// field that is missing or of the wrong shape returns
// ErrMalformedBody. id is assigned by the caller (fresh random id for
// a client POST, the URL-decoded id for a PUT). now is injected so
// start-time-delta resolves against the caller's clock rather than
// time.Now directly.
//
// The returned bool reports whether the parsed timer carries an
// explicit replica list — callers use this to skip re-replicating a
// timer that arrived already knowing its replicas (either because the
// client supplied them, or because the request came from a peer).
func FromJSON(id uint64, body []byte, now time.Time) (*Timer, bool, error) {
	var w wireTimer
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	if w.Timing.IntervalMS == nil || w.Timing.RepeatForMS == nil {
		return nil, false, fmt.Errorf("%w: timing.interval and timing.repeat-for are required", ErrMalformedBody)
	}
	if *w.Timing.IntervalMS < 0 || *w.Timing.RepeatForMS < 0 {
		return nil, false, fmt.Errorf("%w: timing.interval and timing.repeat-for must be non-negative", ErrMalformedBody)
	}
	if *w.Timing.IntervalMS == 0 {
		return nil, false, fmt.Errorf("%w: timing.interval must be strictly positive", ErrMalformedBody)
	}

	if w.Callback.HTTP == nil || w.Callback.HTTP.URI == nil || w.Callback.HTTP.Opaque == nil {
		return nil, false, fmt.Errorf("%w: callback.http.uri and callback.http.opaque are required", ErrMalformedBody)
	}

	startTime := now
	switch {
	case w.Timing.StartTimeMS != nil:
		startTime = time.UnixMilli(*w.Timing.StartTimeMS)
	case w.Timing.StartTimeDeltaMS != nil:
		startTime = now.Add(time.Duration(*w.Timing.StartTimeDeltaMS) * time.Millisecond)
	}

	t := &Timer{
		ID:           id,
		StartTime:    startTime,
		IntervalMS:   *w.Timing.IntervalMS,
		RepeatForMS:  *w.Timing.RepeatForMS,
		CallbackURL:  *w.Callback.HTTP.URI,
		CallbackBody: *w.Callback.HTTP.Opaque,
		Tombstone:    w.Tombstone,
	}
	if w.SequenceNumber != nil {
		t.SequenceNumber = *w.SequenceNumber
	}

	alreadyReplicated := false
	factor := defaultReplicationFactor
	if w.Reliability != nil {
		switch {
		case w.Reliability.Replicas != nil && len(*w.Reliability.Replicas) == 0:
			return nil, false, fmt.Errorf("%w: reliability.replicas must not be empty when present", ErrMalformedBody)
		case w.Reliability.Replicas != nil:
			t.Replicas = append([]string(nil), *w.Reliability.Replicas...)
			factor = len(t.Replicas)
			alreadyReplicated = true
		case w.Reliability.ReplicationFactor != nil:
			factor = *w.Reliability.ReplicationFactor
		}
	}
	t.ReplicationFactor = factor

	return t, alreadyReplicated, nil
}
