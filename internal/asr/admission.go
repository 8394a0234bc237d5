package asr

import (
	"context"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// AdmissionGated wraps a Backend with the server-side load-shedding
// variant of §4.3: a semaphore caps concurrent transcriptions; a bounded
// queue absorbs a short burst; beyond that, callers get an Overloaded
// immediately rather than queueing indefinitely (fail-fast).
type AdmissionGated struct {
	inner      Backend
	sem        chan struct{}
	queueSlots chan struct{}
	retryAfter float64
}

// NewAdmissionGated builds an admission-gated wrapper. maxConcurrent caps
// in-flight transcriptions; maxQueue caps requests waiting for a slot
// before they are failed fast with Overloaded.
func NewAdmissionGated(inner Backend, maxConcurrent, maxQueue int, retryAfterSec float64) *AdmissionGated {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxQueue < 0 {
		maxQueue = 0
	}
	return &AdmissionGated{
		inner:      inner,
		sem:        make(chan struct{}, maxConcurrent),
		queueSlots: make(chan struct{}, maxQueue),
		retryAfter: retryAfterSec,
	}
}

func (a *AdmissionGated) Name() string { return a.inner.Name() }

func (a *AdmissionGated) Transcribe(ctx context.Context, pcm []float32, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error) {
	select {
	case a.sem <- struct{}{}:
	default:
		select {
		case a.queueSlots <- struct{}{}:
		default:
			return nil, Info{}, &Overloaded{RetryAfterSec: a.retryAfter, Status: 503}
		}
		select {
		case a.sem <- struct{}{}:
			<-a.queueSlots
		case <-ctx.Done():
			<-a.queueSlots
			return nil, Info{}, ctx.Err()
		}
	}
	defer func() { <-a.sem }()

	return a.inner.Transcribe(ctx, pcm, language, task, prompt)
}
