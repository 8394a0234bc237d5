package segment

// RawHypothesis is one entry of an ASR pass's output, before stabilisation.
// Field names mirror the WhisperLive-style backend contract (§4.3):
// no_speech_prob / avg_logprob / compression_ratio are the standard
// faster-whisper-style quality signals used to drop hallucinated segments.
type RawHypothesis struct {
	StartSec         float64
	EndSec           float64
	Text             string
	NoSpeechProb     float64
	AvgLogprob       float64
	CompressionRatio float64
}

// Thresholds configures the drop/promote rules of Stabilise. Defaults match
// §4.1 of the specification.
type Thresholds struct {
	NoSpeechThreshold       float64
	LogprobThreshold        float64
	CompressionRatioThresh  float64
	SameOutputThreshold     int
}

// DefaultThresholds returns the specification's default quality gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NoSpeechThreshold:      0.6,
		LogprobThreshold:       -1.0,
		CompressionRatioThresh: 2.4,
		SameOutputThreshold:    10,
	}
}

// Stabiliser tracks the repeated-partial counter across successive ASR
// passes for a single session, so the same trailing hypothesis repeating
// many times in a row can be promoted to final even without new content.
type Stabiliser struct {
	thresholds Thresholds

	lastPartialText string
	repeatCount     int
}

// New constructs a Stabiliser with the given thresholds.
func New(t Thresholds) *Stabiliser {
	return &Stabiliser{thresholds: t}
}

// Stabilise implements the operation from §4.1: given a new ordered list
// of raw ASR hypotheses for the chunk starting at timestampOffsetSec, it
// returns the finals to emit this pass and the current trailing partial
// (which may be the zero value if nothing survived quality filtering).
// Previously emitted finals are not passed in; the only state carried
// between passes is the stabiliser's own repeated-partial counter.
//
// The caller is responsible for advancing timestampOffsetSec by the end of
// the last emitted final, per §4.1's closing rule; this function does not
// mutate caller-held offsets.
func (s *Stabiliser) Stabilise(timestampOffsetSec float64, hyps []RawHypothesis) (finals []Segment, partial Segment, hasPartial bool) {
	kept := make([]RawHypothesis, 0, len(hyps))
	for _, h := range hyps {
		if h.NoSpeechProb > s.thresholds.NoSpeechThreshold {
			continue
		}
		if h.AvgLogprob < s.thresholds.LogprobThreshold {
			continue
		}
		if h.CompressionRatio > s.thresholds.CompressionRatioThresh {
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		return nil, Segment{}, false
	}

	// All but the last are committed provisionally as finals; the last is
	// always partial because its trailing word may be cut by the chunk
	// boundary.
	for i, h := range kept {
		abs := Segment{
			StartSec: timestampOffsetSec + h.StartSec,
			EndSec:   timestampOffsetSec + h.EndSec,
			Text:     h.Text,
		}
		if i < len(kept)-1 {
			abs.Completed = Final
			finals = append(finals, abs)
			continue
		}

		// last hypothesis: repeated-partial promotion check.
		if h.Text == s.lastPartialText && h.Text != "" {
			s.repeatCount++
		} else {
			s.repeatCount = 1
			s.lastPartialText = h.Text
		}

		if s.repeatCount >= s.thresholds.SameOutputThreshold {
			abs.Completed = Final
			finals = append(finals, abs)
			s.repeatCount = 0
			s.lastPartialText = ""
			continue
		}

		abs.Completed = Partial
		partial = abs
		hasPartial = true
	}

	return finals, partial, hasPartial
}

// Reset clears the repeated-partial tracking, e.g. after a session's
// buffer is force-clipped (§4.2 clip_if_stalled).
func (s *Stabiliser) Reset() {
	s.lastPartialText = ""
	s.repeatCount = 0
}
