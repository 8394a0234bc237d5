package decision

import "testing"

// Reproduces spec.md §8 scenario 3 verbatim.
func TestDedupScenario3Accept(t *testing.T) {
	existing := "We will migrate to Postgres by Q3"
	candidate := "We've decided to migrate to Postgres in Q3"
	if IsDuplicate(candidate, existing, DefaultDedupThresholds()) {
		t.Fatalf("expected accept (neither threshold met), got duplicate")
	}
}

func TestDedupScenario3Reject(t *testing.T) {
	existing := "We will migrate to Postgres by Q3"
	candidate := "We will migrate to Postgres before Q3 ends"
	if !IsDuplicate(candidate, existing, DefaultDedupThresholds()) {
		t.Fatalf("expected reject (jaccard 0.60 >= 0.50), got accept")
	}
}

func TestJaccardExactValue(t *testing.T) {
	a := significantTokens("We will migrate to Postgres before Q3 ends")
	b := significantTokens("We will migrate to Postgres by Q3")
	got := jaccard(a, b)
	want := 3.0 / 5.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected jaccard %v, got %v", want, got)
	}
}

func TestIsDuplicateOfAnyEmptyLog(t *testing.T) {
	if IsDuplicateOfAny("anything", nil, DefaultDedupThresholds()) {
		t.Fatalf("expected no duplicate against an empty log")
	}
}
