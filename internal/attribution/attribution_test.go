package attribution

import (
	"testing"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

func TestAssignPicksHigherOverlapRatio(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	seg := segment.Segment{StartSec: 1.0, EndSec: 3.0}

	intervals := []Interval{
		{SpeakerID: "A", Name: "Alice", Start: t0.Add(500 * time.Millisecond), End: t0.Add(1800 * time.Millisecond)},
		{SpeakerID: "B", Name: "Bob", Start: t0.Add(1800 * time.Millisecond), End: t0.Add(3200 * time.Millisecond)},
	}

	id, name, ok := Assign(t0, seg, intervals)
	if !ok || id != "B" || name != "Bob" {
		t.Fatalf("expected speaker B (ratio 0.6) to win, got id=%q name=%q ok=%v", id, name, ok)
	}
}

func TestAssignNoSpeakerAtExactlyHalf(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	seg := segment.Segment{StartSec: 0, EndSec: 2.0}
	intervals := []Interval{
		{SpeakerID: "A", Name: "Alice", Start: t0, End: t0.Add(1 * time.Second)}, // ratio exactly 0.5
	}
	_, _, ok := Assign(t0, seg, intervals)
	if ok {
		t.Fatalf("expected no assignment at exactly 0.5 ratio")
	}
}

func TestAssignSkipsNonPositiveDuration(t *testing.T) {
	t0 := time.Now()
	seg := segment.Segment{StartSec: 2.0, EndSec: 2.0}
	_, _, ok := Assign(t0, seg, []Interval{{SpeakerID: "A", Start: t0, End: t0.Add(time.Second)}})
	if ok {
		t.Fatalf("expected no assignment for zero-duration segment")
	}
}

func TestBuildIntervalsMergesContiguousSlots(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC) // end of window
	entries := []ActivityEntry{
		{SpeakerID: "A", Name: "Alice", Timestamp: ts, MetaBits: "111"},
	}
	intervals := BuildIntervals(entries)
	if len(intervals) != 1 {
		t.Fatalf("expected one merged interval, got %d: %v", len(intervals), intervals)
	}
	want := 300 * time.Millisecond
	if got := intervals[0].End.Sub(intervals[0].Start); got != want {
		t.Fatalf("expected merged interval span %v, got %v", want, got)
	}
}

func TestBuildIntervalsEmptyMetaBits(t *testing.T) {
	intervals := BuildIntervals([]ActivityEntry{{SpeakerID: "A", MetaBits: ""}})
	if intervals != nil {
		t.Fatalf("expected no intervals from empty meta_bits, got %v", intervals)
	}
}
