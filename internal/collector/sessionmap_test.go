package collector

import (
	"testing"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

func TestSessionMergeFinalOverridesPartial(t *testing.T) {
	s := newSession("uid-1", "meeting-1", "zoom", "tok", time.Now())

	s.Merge(segment.Segment{StartSec: 1.0, EndSec: 2.0, Text: "hello", Completed: segment.Partial})
	s.Merge(segment.Segment{StartSec: 1.0, EndSec: 2.1, Text: "hello there", Completed: segment.Final})

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 merged entry, got %d", len(snap))
	}
	if !snap[0].IsFinal() || snap[0].Text != "hello there" {
		t.Fatalf("expected final merge to win, got %+v", snap[0])
	}
}

func TestSessionMergePartialNeverOverwritesFinal(t *testing.T) {
	s := newSession("uid-1", "meeting-1", "zoom", "tok", time.Now())

	s.Merge(segment.Segment{StartSec: 1.0, EndSec: 2.0, Text: "final text", Completed: segment.Final})
	changed := s.Merge(segment.Segment{StartSec: 1.0, EndSec: 2.0, Text: "late partial", Completed: segment.Partial})

	if changed {
		t.Fatalf("expected partial-over-final merge to be rejected")
	}
	snap := s.Snapshot()
	if snap[0].Text != "final text" {
		t.Fatalf("expected final text preserved, got %q", snap[0].Text)
	}
}

func TestSessionPromotableBeforeRespectsThresholdAndFinality(t *testing.T) {
	s := newSession("uid-1", "meeting-1", "zoom", "tok", time.Now())
	s.entries[roundKey(1.0)] = &sessionEntry{
		segment:   segment.Segment{StartSec: 1.0, Completed: segment.Final},
		writtenAt: time.Now().Add(-time.Hour),
	}
	s.entries[roundKey(2.0)] = &sessionEntry{
		segment:   segment.Segment{StartSec: 2.0, Completed: segment.Partial},
		writtenAt: time.Now().Add(-time.Hour),
	}
	s.entries[roundKey(3.0)] = &sessionEntry{
		segment:   segment.Segment{StartSec: 3.0, Completed: segment.Final},
		writtenAt: time.Now(),
	}

	promotable := s.PromotableBefore(10 * time.Second)
	if len(promotable) != 1 || promotable[0].StartSec != 1.0 {
		t.Fatalf("expected only the old final segment, got %+v", promotable)
	}
}

func TestSessionPromotableBeforeIgnoresThresholdOnceEnded(t *testing.T) {
	s := newSession("uid-1", "meeting-1", "zoom", "tok", time.Now())
	s.entries[roundKey(1.0)] = &sessionEntry{
		segment:   segment.Segment{StartSec: 1.0, Completed: segment.Final},
		writtenAt: time.Now(),
	}

	if promotable := s.PromotableBefore(time.Hour); len(promotable) != 0 {
		t.Fatalf("expected nothing promotable before threshold elapses, got %+v", promotable)
	}

	s.MarkEnded()
	promotable := s.PromotableBefore(time.Hour)
	if len(promotable) != 1 || promotable[0].StartSec != 1.0 {
		t.Fatalf("expected the fresh final segment promotable once ended, got %+v", promotable)
	}
}

func TestRoundKeyRoundsToThreeDecimals(t *testing.T) {
	if roundKey(1.23449) != 1.234 {
		t.Fatalf("expected 1.234, got %v", roundKey(1.23449))
	}
	if roundKey(1.23451) != 1.235 {
		t.Fatalf("expected 1.235, got %v", roundKey(1.23451))
	}
}

func TestDecodeEntryRejectsUnknownType(t *testing.T) {
	if _, err := DecodeEntry(`{"type":"bogus"}`); err == nil {
		t.Fatalf("expected error for unknown entry type")
	}
}

func TestDecodeEntryRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeEntry(`not json`); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestDecodeEntryAcceptsSessionEnd(t *testing.T) {
	entry, err := DecodeEntry(`{"type":"session_end","uid":"uid-1","meeting_id":"meeting-1","end_timestamp":"2026-07-29T00:00:00Z"}`)
	if err != nil {
		t.Fatalf("unexpected error decoding session_end entry: %v", err)
	}
	if entry.Type != EntrySessionEnd || entry.UID != "uid-1" {
		t.Fatalf("unexpected decoded entry: %+v", entry)
	}
}
