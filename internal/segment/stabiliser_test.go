package segment

import "testing"

func TestStabiliseDropsLowQuality(t *testing.T) {
	s := New(DefaultThresholds())
	finals, _, hasPartial := s.Stabilise(0, []RawHypothesis{
		{StartSec: 0, EndSec: 1, Text: "noise", NoSpeechProb: 0.9, AvgLogprob: -0.1, CompressionRatio: 1.0},
	})
	if len(finals) != 0 || hasPartial {
		t.Fatalf("expected everything dropped, got finals=%v hasPartial=%v", finals, hasPartial)
	}
}

func TestStabiliseLastIsAlwaysPartial(t *testing.T) {
	s := New(DefaultThresholds())
	finals, partial, hasPartial := s.Stabilise(0, []RawHypothesis{
		{StartSec: 0, EndSec: 2, Text: "hello", AvgLogprob: -0.2, CompressionRatio: 1.2},
		{StartSec: 2, EndSec: 4, Text: "world", AvgLogprob: -0.2, CompressionRatio: 1.2},
	})
	if len(finals) != 1 || finals[0].Text != "hello" {
		t.Fatalf("expected one committed final 'hello', got %v", finals)
	}
	if !hasPartial || partial.Text != "world" || partial.Completed != Partial {
		t.Fatalf("expected trailing partial 'world', got %+v hasPartial=%v", partial, hasPartial)
	}
}

func TestStabiliseRepeatedPartialPromotesToFinal(t *testing.T) {
	th := DefaultThresholds()
	th.SameOutputThreshold = 3
	s := New(th)

	var finals []Segment
	for i := 0; i < 3; i++ {
		var hasPartial bool
		finals, _, hasPartial = s.Stabilise(0, []RawHypothesis{
			{StartSec: 0, EndSec: 1.5, Text: "ship it", AvgLogprob: -0.1, CompressionRatio: 1.1},
		})
		if i < 2 && (hasPartial == false || len(finals) != 0) {
			t.Fatalf("pass %d: expected still partial, got finals=%v hasPartial=%v", i, finals, hasPartial)
		}
	}
	if len(finals) != 1 || finals[0].Text != "ship it" || finals[0].Completed != Final {
		t.Fatalf("expected promotion to final after repeat threshold, got %v", finals)
	}
}

func TestStabiliseEmptyHypothesesYieldsNothing(t *testing.T) {
	s := New(DefaultThresholds())
	finals, _, hasPartial := s.Stabilise(0, nil)
	if finals != nil || hasPartial {
		t.Fatalf("expected no output for empty input, got finals=%v hasPartial=%v", finals, hasPartial)
	}
}
