package asr

import (
	"context"
	"testing"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

type stubBackend struct {
	entered    chan struct{}
	blockUntil chan struct{}
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Transcribe(ctx context.Context, pcm []float32, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.blockUntil != nil {
		<-s.blockUntil
	}
	return []segment.RawHypothesis{{Text: "ok"}}, Info{}, nil
}

func TestAdmissionGatedFailsFastWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	inner := &stubBackend{entered: entered, blockUntil: block}
	gated := NewAdmissionGated(inner, 1, 0, 2.0)

	done := make(chan struct{})
	go func() {
		_, _, _ = gated.Transcribe(context.Background(), nil, "", TaskTranscribe, "")
		close(done)
	}()

	<-entered // first call now holds the only semaphore slot

	_, _, err := gated.Transcribe(context.Background(), nil, "", TaskTranscribe, "")
	if err == nil {
		t.Fatal("expected overloaded error when queue is full")
	}
	if _, ok := IsOverloaded(err); !ok {
		t.Fatalf("expected *Overloaded, got %v", err)
	}

	close(block)
	<-done
}
