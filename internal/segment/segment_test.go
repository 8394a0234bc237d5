package segment

import (
	"math"
	"testing"
)

func TestValidateRejectsNonFiniteBounds(t *testing.T) {
	cases := []Segment{
		{StartSec: math.NaN(), EndSec: 1},
		{StartSec: 0, EndSec: math.NaN()},
		{StartSec: math.Inf(1), EndSec: math.Inf(1)},
		{StartSec: 0, EndSec: math.Inf(1)},
	}
	for _, s := range cases {
		if err := s.Validate(); err == nil {
			t.Fatalf("expected error for %+v", s)
		}
	}
}

func TestValidateRejectsNegativeOrInverted(t *testing.T) {
	if err := (Segment{StartSec: -1, EndSec: 1}).Validate(); err == nil {
		t.Fatalf("expected error for negative start_sec")
	}
	if err := (Segment{StartSec: 2, EndSec: 1}).Validate(); err == nil {
		t.Fatalf("expected error for inverted interval")
	}
}

func TestValidateAcceptsOrdinaryInterval(t *testing.T) {
	if err := (Segment{StartSec: 1, EndSec: 2}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
