package timer

import (
	"strings"
	"testing"
	"time"
)

func TestFromJSONRejectsMalformed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []string{
		`{}`,
		`{"timing": []}`,
		`{"timing": [], "callback": []}`,
		`{"timing": {}, "callback": [], "reliability": []}`,
		`{"timing": {"interval": "hello"}, "callback": {}, "reliability": []}`,
		`{"timing": {"interval": 100, "repeat-for": "hello"}, "callback": {}}`,
		`{"timing": {"interval": 100, "repeat-for": 200}, "callback": {}}`,
		`{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {}}}`,
		`{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": []}}}`,
		`{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": "x", "opaque": []}}}`,
		`{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": "x", "opaque": "y"}}, "reliability": {"replication-factor": "hello"}}`,
		`{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": "x", "opaque": "y"}}, "reliability": {"replicas": []}}`,
		`{"timing": {"interval": 0, "repeat-for": 200}, "callback": {"http": {"uri": "x", "opaque": "y"}}}`,
	}
	for _, body := range cases {
		if _, _, err := FromJSON(1, []byte(body), now); err == nil {
			t.Errorf("expected error for body %q", body)
		} else if !strings.Contains(err.Error(), ErrMalformedBody.Error()) {
			t.Errorf("expected malformed-body error for %q, got %v", body, err)
		}
	}
}

func TestFromJSONDefaultReplicationFactor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := `{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": "localhost", "opaque": "stuff"}}, "reliability": {}}`
	tm, replicated, err := FromJSON(1, []byte(body), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replicated {
		t.Fatal("expected not pre-replicated")
	}
	if tm.ReplicationFactor != 2 {
		t.Fatalf("want replication factor 2, got %d", tm.ReplicationFactor)
	}
}

func TestFromJSONCustomReplicationFactor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := `{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": "localhost", "opaque": "stuff"}}, "reliability": {"replication-factor": 3}}`
	tm, replicated, err := FromJSON(1, []byte(body), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replicated {
		t.Fatal("expected not pre-replicated")
	}
	if tm.ReplicationFactor != 3 {
		t.Fatalf("want replication factor 3, got %d", tm.ReplicationFactor)
	}
}

func TestFromJSONExplicitReplicas(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := `{"timing": {"interval": 100, "repeat-for": 200}, "callback": {"http": {"uri": "localhost", "opaque": "stuff"}}, "reliability": {"replicas": ["10.0.0.1", "10.0.0.2"]}}`
	tm, replicated, err := FromJSON(1, []byte(body), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replicated {
		t.Fatal("expected pre-replicated")
	}
	if tm.ReplicationFactor != 2 {
		t.Fatalf("want replication factor 2, got %d", tm.ReplicationFactor)
	}
	if len(tm.Replicas) != 2 || tm.Replicas[0] != "10.0.0.1" {
		t.Fatalf("unexpected replicas: %v", tm.Replicas)
	}
}

func TestToJSONRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	original := &Timer{
		ID:                42,
		StartTime:         now,
		IntervalMS:        100,
		RepeatForMS:       200,
		SequenceNumber:    3,
		Replicas:          []string{"10.0.0.1", "10.0.0.2"},
		ReplicationFactor: 2,
		CallbackURL:       "http://localhost:80/callback",
		CallbackBody:      "stuff stuff stuff",
	}
	body, err := original.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	reparsed, replicated, err := FromJSON(7, body, now)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !replicated {
		t.Fatal("expected pre-replicated since the original carried explicit replicas")
	}
	if reparsed.IntervalMS != original.IntervalMS ||
		reparsed.RepeatForMS != original.RepeatForMS ||
		reparsed.CallbackURL != original.CallbackURL ||
		reparsed.CallbackBody != original.CallbackBody ||
		reparsed.SequenceNumber != original.SequenceNumber ||
		len(reparsed.Replicas) != len(original.Replicas) {
		t.Fatalf("round trip mismatch: %+v vs %+v", reparsed, original)
	}
	if !reparsed.StartTime.Equal(original.StartTime) {
		t.Fatalf("start time mismatch: %v vs %v", reparsed.StartTime, original.StartTime)
	}
}

func TestNextPopTime(t *testing.T) {
	tm := &Timer{StartTime: time.UnixMilli(1_000_000), IntervalMS: 100, SequenceNumber: 0}
	want := time.UnixMilli(1_000_100)
	if !tm.NextPopTime().Equal(want) {
		t.Fatalf("want %v, got %v", want, tm.NextPopTime())
	}
}

func TestWithinRepeatWindow(t *testing.T) {
	tm := &Timer{IntervalMS: 100, RepeatForMS: 200}
	if !tm.WithinRepeatWindow(1) {
		t.Fatal("pop 1 (100ms) should be within a 200ms window")
	}
	if !tm.WithinRepeatWindow(2) {
		t.Fatal("pop 2 (200ms) should be within a 200ms window")
	}
	if tm.WithinRepeatWindow(3) {
		t.Fatal("pop 3 (300ms) should be outside a 200ms window")
	}
}

func TestIsLocal(t *testing.T) {
	tm := &Timer{Replicas: []string{"10.0.0.1", "10.0.0.2"}}
	if !tm.IsLocal("10.0.0.1") {
		t.Fatal("expected 10.0.0.1 to be local")
	}
	if tm.IsLocal("20.0.0.1") {
		t.Fatal("expected 20.0.0.1 to not be local")
	}
}

func TestBecomeTombstone(t *testing.T) {
	tm := &Timer{StartTime: time.UnixMilli(1_000_000), IntervalMS: 100, RepeatForMS: 200}
	tm.BecomeTombstone()
	if !tm.IsTombstone() {
		t.Fatal("expected tombstone")
	}
	if tm.RepeatForMS != tm.IntervalMS {
		t.Fatalf("expected repeat_for collapsed to interval, got %d vs %d", tm.RepeatForMS, tm.IntervalMS)
	}
}

func TestSupersedesOnConflict(t *testing.T) {
	base := &Timer{SequenceNumber: 1}
	higherSeq := &Timer{SequenceNumber: 2}
	if !higherSeq.SupersedesOnConflict(base) {
		t.Fatal("higher sequence number should supersede")
	}
	if base.SupersedesOnConflict(higherSeq) {
		t.Fatal("lower sequence number should not supersede")
	}

	tieTombstone := &Timer{SequenceNumber: 1, Tombstone: true}
	if !tieTombstone.SupersedesOnConflict(base) {
		t.Fatal("tombstone should win a sequence number tie")
	}
	if base.SupersedesOnConflict(tieTombstone) {
		t.Fatal("non-tombstone should not win a sequence number tie against a tombstone")
	}
}

func TestIDHexRoundTrip(t *testing.T) {
	hexStr := IDHex(42, 0xdeadbeef)
	if len(hexStr) != IDHexLen {
		t.Fatalf("want length %d, got %d", IDHexLen, len(hexStr))
	}
	id, hash, err := ParseIDHex(hexStr)
	if err != nil {
		t.Fatalf("ParseIDHex: %v", err)
	}
	if id != 42 || hash != 0xdeadbeef {
		t.Fatalf("want id=42 hash=0xdeadbeef, got id=%d hash=%#x", id, hash)
	}
}

func TestParseIDHexRejectsWrongLength(t *testing.T) {
	if _, _, err := ParseIDHex("abcd"); err == nil {
		t.Fatal("expected error for short id")
	}
}
