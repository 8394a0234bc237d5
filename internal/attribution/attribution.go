// Package attribution correlates transcript segment timing with
// per-speaker mic-activity bitmaps to assign speaker identity (§4.4).
package attribution

import (
	"sort"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

const slotDuration = 100 * time.Millisecond

// ActivityEntry is one speaker-activity sample received over the gateway
// WebSocket's speaker_activity_update control frame.
type ActivityEntry struct {
	SpeakerID string
	Name      string
	Timestamp time.Time // UTC
	MetaBits  string    // '0'/'1' slots trailing backwards from Timestamp
}

// Interval is a contiguous run of active 100ms slots for one speaker.
type Interval struct {
	SpeakerID string
	Name      string
	Start     time.Time
	End       time.Time
}

type slot struct {
	speakerID string
	name      string
	start     time.Time
	end       time.Time
}

// expandSlots turns one ActivityEntry's meta_bits string into individual
// active 100ms slots, per §4.4 step 1. meta_bits[0] is the slot ending at
// Timestamp; subsequent characters step backwards in time.
func expandSlots(e ActivityEntry) []slot {
	var out []slot
	for i, bit := range e.MetaBits {
		if bit != '1' {
			continue
		}
		end := e.Timestamp.Add(-time.Duration(i) * slotDuration)
		start := end.Add(-slotDuration)
		out = append(out, slot{speakerID: e.SpeakerID, name: e.Name, start: start, end: end})
	}
	return out
}

// BuildIntervals expands and merges raw activity entries into
// per-speaker contiguous intervals (§4.4 steps 1-2). It operates on a
// snapshot copy of entries to avoid races with concurrently arriving
// updates, per the spec's explicit snapshot-not-stream requirement.
func BuildIntervals(entries []ActivityEntry) []Interval {
	snapshot := make([]ActivityEntry, len(entries))
	copy(snapshot, entries)

	var slots []slot
	for _, e := range snapshot {
		if e.MetaBits == "" {
			continue
		}
		slots = append(slots, expandSlots(e)...)
	}
	if len(slots) == 0 {
		return nil
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].speakerID != slots[j].speakerID {
			return slots[i].speakerID < slots[j].speakerID
		}
		return slots[i].start.Before(slots[j].start)
	})

	var intervals []Interval
	var cur *Interval
	for _, s := range slots {
		if cur != nil && cur.SpeakerID == s.speakerID && !s.start.After(cur.End) {
			if s.end.After(cur.End) {
				cur.End = s.end
			}
			continue
		}
		if cur != nil {
			intervals = append(intervals, *cur)
		}
		cur = &Interval{SpeakerID: s.speakerID, Name: s.name, Start: s.start, End: s.end}
	}
	if cur != nil {
		intervals = append(intervals, *cur)
	}
	return intervals
}

// Assign implements §4.4 steps 3-4: given a session's t0 (session start
// wall clock) and a segment (start_sec/end_sec relative to t0), pick the
// interval with the highest overlap ratio and assign speaker identity only
// if that ratio is strictly greater than 0.5.
func Assign(t0 time.Time, seg segment.Segment, intervals []Interval) (speakerID, speakerName string, assigned bool) {
	duration := seg.EndSec - seg.StartSec
	if duration <= 0 {
		return "", "", false
	}
	segStart := t0.Add(time.Duration(seg.StartSec * float64(time.Second)))
	segEnd := t0.Add(time.Duration(seg.EndSec * float64(time.Second)))

	bestRatio := 0.0
	var bestID, bestName string
	for _, iv := range intervals {
		overlapStart := maxTime(segStart, iv.Start)
		overlapEnd := minTime(segEnd, iv.End)
		if !overlapEnd.After(overlapStart) {
			continue
		}
		overlap := overlapEnd.Sub(overlapStart).Seconds()
		ratio := overlap / duration
		if ratio > bestRatio {
			bestRatio = ratio
			bestID = iv.SpeakerID
			bestName = iv.Name
		}
	}

	if bestRatio > 0.5 {
		return bestID, bestName, true
	}
	return "", "", false
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
