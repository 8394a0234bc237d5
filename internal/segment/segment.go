// Package segment defines the canonical transcript segment record and the
// hypothesis stabiliser that turns rolling ASR passes into ordered,
// non-overlapping finals plus a single trailing partial.
package segment

import (
	"fmt"
	"math"
)

// Completion marks whether a Segment is still subject to revision.
type Completion int

const (
	Partial Completion = iota
	Final
)

func (c Completion) String() string {
	if c == Final {
		return "final"
	}
	return "partial"
}

// Segment is the canonical transcript record shared by the gateway,
// collector, and decision engine.
type Segment struct {
	SessionUID    string     `json:"-"`
	MeetingID     string     `json:"-"`
	StartSec      float64    `json:"start"`
	EndSec        float64    `json:"end"`
	Text          string     `json:"text"`
	SpeakerID     string     `json:"speaker_id,omitempty"`
	SpeakerName   string     `json:"speaker_name,omitempty"`
	Language      string     `json:"language,omitempty"`
	Confidence    float64    `json:"confidence"`
	Completed     Completion `json:"-"`
}

// IsFinal exposes Completed as a bool; the gateway and collector wire
// encoders use it to fill "completed": true/false (Segment's own JSON
// encoding omits Completed).
func (s Segment) IsFinal() bool { return s.Completed == Final }

// Validate reports the data-kind errors named in the error taxonomy: a
// segment with a non-finite or inverted interval is never emitted.
func (s Segment) Validate() error {
	if math.IsNaN(s.StartSec) || math.IsInf(s.StartSec, 0) {
		return fmt.Errorf("segment: non-finite start_sec %v", s.StartSec)
	}
	if math.IsNaN(s.EndSec) || math.IsInf(s.EndSec, 0) {
		return fmt.Errorf("segment: non-finite end_sec %v", s.EndSec)
	}
	if s.StartSec < 0 {
		return fmt.Errorf("segment: negative start_sec %v", s.StartSec)
	}
	if s.EndSec < s.StartSec {
		return fmt.Errorf("segment: end_sec %v before start_sec %v", s.EndSec, s.StartSec)
	}
	return nil
}

// Overlaps reports whether the half-open interval [StartSec, EndSec)
// overlaps the other segment's.
func (s Segment) Overlaps(o Segment) bool {
	return s.StartSec < o.EndSec && o.StartSec < s.EndSec
}
