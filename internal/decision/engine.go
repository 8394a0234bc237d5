package decision

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
	"github.com/lokutor-ai/meeting-intel/internal/trackerconfig"
)

// LLMCaller is the narrow seam the engine needs from C10's LLM adapter:
// force a single tool call and decode its arguments.
type LLMCaller interface {
	CaptureMeetingItem(ctx context.Context, systemPrompt string, schema any, window []segment.Segment) (*CaptureMeetingItemArgs, error)
}

// Log is the durable, append-only decision log contract (§3, §4.8 step 7-8).
type Log interface {
	Summaries(ctx context.Context, meetingID string) ([]string, error)
	Append(ctx context.Context, meetingID string, item Item, ttl time.Duration) error
	All(ctx context.Context, meetingID string) ([]Item, error)
}

// Config holds the per-meeting window/offset/debounce knobs (§4.8,
// glossary).
type Config struct {
	WindowSegments  int
	OffsetSegments  int
	Debounce        time.Duration
	ConfidenceFloor float64
	DecisionsTTL    time.Duration
	Dedup           DedupThresholds

	// SemanticDedupFunc is an optional second-pass LLM-based dedup check
	// (§9 design notes). nil by default. Per spec it must fail-open: an
	// error from this func is treated as "not a duplicate".
	SemanticDedupFunc func(ctx context.Context, newSummary, existingSummary string) (bool, error)
}

func DefaultConfig() Config {
	return Config{
		WindowSegments:  20,
		OffsetSegments:  3,
		Debounce:        5 * time.Second,
		ConfidenceFloor: 0.5,
		DecisionsTTL:    7 * 24 * time.Hour,
		Dedup:           DefaultDedupThresholds(),
	}
}

type meetingState struct {
	mu             sync.Mutex
	buffer         []segment.Segment // sorted by StartSec, upserted by start_sec
	lastCallMono   time.Time
	analysisLocked bool
}

// Engine is the per-meeting sliding-window LLM dispatcher described in
// §4.8. One Engine instance serves every meeting; per-meeting state is
// created lazily.
type Engine struct {
	cfg     Config
	tracker *trackerconfig.Registry
	llm     LLMCaller
	log     Log
	hub     *Hub
	logger  logging.Logger

	mu       sync.Mutex
	meetings map[string]*meetingState
}

func NewEngine(cfg Config, tracker *trackerconfig.Registry, llm LLMCaller, log Log, hub *Hub, logger logging.Logger) *Engine {
	return &Engine{cfg: cfg, tracker: tracker, llm: llm, log: log, hub: hub, logger: logger, meetings: make(map[string]*meetingState)}
}

func (e *Engine) stateFor(meetingID string) *meetingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.meetings[meetingID]
	if !ok {
		st = &meetingState{}
		e.meetings[meetingID] = st
	}
	return st
}

// OnSegmentsUpdated handles one segments_updated pub/sub message (§4.8
// steps 1-8). It is safe to call concurrently for different meetings and
// serializes naturally per meeting via the meeting's own mutex.
func (e *Engine) OnSegmentsUpdated(ctx context.Context, meetingID string, incoming []segment.Segment) {
	st := e.stateFor(meetingID)

	st.mu.Lock()
	mergeSegments(&st.buffer, incoming, e.cfg.WindowSegments+e.cfg.OffsetSegments+10)

	now := time.Now()
	if !st.lastCallMono.IsZero() && now.Sub(st.lastCallMono) < e.cfg.Debounce {
		st.mu.Unlock()
		return
	}

	window := buildWindow(st.buffer, e.cfg.WindowSegments, e.cfg.OffsetSegments)
	if len(window) == 0 {
		st.mu.Unlock()
		return
	}

	if st.analysisLocked {
		st.mu.Unlock()
		return
	}
	st.analysisLocked = true
	st.lastCallMono = now
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		st.analysisLocked = false
		st.mu.Unlock()
	}()

	e.dispatch(ctx, meetingID, window)
}

// mergeSegments upserts incoming into buffer keyed by the exact StartSec
// value (no rounding is applied here or by the caller), kept sorted, and
// trimmed to capacity.
func mergeSegments(buffer *[]segment.Segment, incoming []segment.Segment, capacity int) {
	byStart := make(map[float64]segment.Segment, len(*buffer))
	for _, s := range *buffer {
		byStart[s.StartSec] = s
	}
	for _, s := range incoming {
		byStart[s.StartSec] = s
	}
	merged := make([]segment.Segment, 0, len(byStart))
	for _, s := range byStart {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].StartSec < merged[j].StartSec })
	if len(merged) > capacity {
		merged = merged[len(merged)-capacity:]
	}
	*buffer = merged
}

// buildWindow drops the trailing OffsetSegments (in-flight/unstable) and
// takes the last WindowSegments (§4.8 step 3).
func buildWindow(buffer []segment.Segment, windowSize, offset int) []segment.Segment {
	usable := buffer
	if offset > 0 {
		if offset >= len(usable) {
			return nil
		}
		usable = usable[:len(usable)-offset]
	}
	if len(usable) == 0 {
		return nil
	}
	if len(usable) > windowSize {
		usable = usable[len(usable)-windowSize:]
	}
	out := make([]segment.Segment, len(usable))
	copy(out, usable)
	return out
}

func (e *Engine) dispatch(ctx context.Context, meetingID string, window []segment.Segment) {
	tracker := e.tracker.Get()
	schema := BuildToolSchema(tracker)
	prompt := tracker.BuildSystemPrompt()

	args, err := e.llm.CaptureMeetingItem(ctx, prompt, schema, window)
	if err != nil {
		metrics.DecisionDispatches.WithLabelValues("llm_error").Inc()
		e.logger.Warn("decision llm call failed", "meeting_id", meetingID, "error", err)
		return
	}
	if args == nil || args.Type == "" || args.Type == "no_match" {
		metrics.DecisionDispatches.WithLabelValues("no_match").Inc()
		return
	}
	if args.Confidence < e.cfg.ConfidenceFloor {
		metrics.DecisionDispatches.WithLabelValues("below_confidence_floor").Inc()
		return
	}

	entities := make([]Entity, len(args.Entities))
	copy(entities, args.Entities)
	item := Item{
		ID:         uuid.NewString(),
		Type:       args.Type,
		Summary:    args.Summary,
		Speaker:    args.Speaker,
		Confidence: args.Confidence,
		Entities:   entities,
		MeetingID:  meetingID,
	}

	existing, err := e.log.Summaries(ctx, meetingID)
	if err != nil {
		e.logger.Warn("decision log read failed", "meeting_id", meetingID, "error", err)
		return
	}
	if IsDuplicateOfAny(item.Summary, existing, e.cfg.Dedup) {
		metrics.DecisionDispatches.WithLabelValues("duplicate").Inc()
		return
	}
	if e.cfg.SemanticDedupFunc != nil {
		for _, ex := range existing {
			dup, derr := e.cfg.SemanticDedupFunc(ctx, item.Summary, ex)
			if derr != nil {
				continue // fail-open: never silently suppress on a checker error
			}
			if dup {
				metrics.DecisionDispatches.WithLabelValues("duplicate").Inc()
				return
			}
		}
	}

	if err := e.log.Append(ctx, meetingID, item, e.cfg.DecisionsTTL); err != nil {
		metrics.DecisionDispatches.WithLabelValues("log_append_error").Inc()
		e.logger.Warn("decision log append failed", "meeting_id", meetingID, "error", err)
		return
	}
	metrics.DecisionDispatches.WithLabelValues("captured").Inc()
	if err := e.hub.Broadcast(meetingID, item); err != nil {
		e.logger.Warn("decision sse broadcast failed", "meeting_id", meetingID, "error", err)
	}
}
