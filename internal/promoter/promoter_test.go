package promoter

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/collector"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

type fakeStore struct {
	inserted [][]segment.Segment
	failNext bool
}

func (f *fakeStore) InsertSegments(ctx context.Context, segs []segment.Segment) error {
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.inserted = append(f.inserted, segs)
	return nil
}

func TestTickPromotesOnlyStableFinalSegments(t *testing.T) {
	sessions := collector.NewSessionMap()
	sess := sessions.Open("uid-1", "meeting-1", "zoom", "tok", time.Now())
	sess.Merge(segment.Segment{StartSec: 1.0, Completed: segment.Final})
	sess.Merge(segment.Segment{StartSec: 2.0, Completed: segment.Partial})

	store := &fakeStore{}
	p := New(Config{Interval: time.Second, ImmutabilityThreshold: 0}, sessions, store, nil, logging.New("test"))
	p.tick(context.Background())

	if len(store.inserted) != 1 || len(store.inserted[0]) != 1 {
		t.Fatalf("expected exactly one promoted batch of one segment, got %+v", store.inserted)
	}
	if len(sess.Snapshot()) != 1 {
		t.Fatalf("expected the partial segment to remain, the final to be removed")
	}
}

func TestTickLeavesMapIntactOnStoreFailure(t *testing.T) {
	sessions := collector.NewSessionMap()
	sess := sessions.Open("uid-1", "meeting-1", "zoom", "tok", time.Now())
	sess.Merge(segment.Segment{StartSec: 1.0, Completed: segment.Final})

	store := &fakeStore{failNext: true}
	p := New(Config{Interval: time.Second, ImmutabilityThreshold: 0}, sessions, store, nil, logging.New("test"))
	p.tick(context.Background())

	if len(sess.Snapshot()) != 1 {
		t.Fatalf("expected segment to remain in map after a failed commit")
	}
}
