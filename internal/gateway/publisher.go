package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/collector"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// StreamPublisher writes session_start/transcription entries onto the
// outbound stream the collector (C6) consumes (§4.6, §6). The wire
// shape is collector.Entry — the gateway is the stream's sole producer,
// the collector its sole consumer.
type StreamPublisher struct {
	client     *redis.Client
	streamName string
}

func NewStreamPublisher(client *redis.Client, streamName string) *StreamPublisher {
	return &StreamPublisher{client: client, streamName: streamName}
}

func (p *StreamPublisher) PublishSessionStart(ctx context.Context, cfg ConfigFrame, startedAt time.Time) error {
	entry := collector.Entry{
		Type:           collector.EntrySessionStart,
		UID:            cfg.UID,
		Token:          cfg.Token,
		Platform:       cfg.Platform,
		MeetingID:      cfg.MeetingID,
		StartTimestamp: startedAt.UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, entry)
}

// PublishSessionEnd announces the Draining transition (§4.5) so the
// collector can mark the session ended and stop the promoter from
// waiting out the immutability threshold on its tail segments.
func (p *StreamPublisher) PublishSessionEnd(ctx context.Context, cfg ConfigFrame, endedAt time.Time) error {
	entry := collector.Entry{
		Type:         collector.EntrySessionEnd,
		UID:          cfg.UID,
		Token:        cfg.Token,
		Platform:     cfg.Platform,
		MeetingID:    cfg.MeetingID,
		EndTimestamp: endedAt.UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, entry)
}

func (p *StreamPublisher) PublishTranscription(ctx context.Context, cfg ConfigFrame, segs []segment.Segment, language string) error {
	if len(segs) == 0 {
		return nil
	}
	wire := make([]collector.WireSegment, len(segs))
	for i, s := range segs {
		wire[i] = collector.WireSegment{
			Start: s.StartSec, End: s.EndSec, Text: s.Text,
			SpeakerID: s.SpeakerID, Speaker: s.SpeakerName,
			Confidence: s.Confidence, Completed: s.IsFinal(),
		}
	}
	entry := collector.Entry{
		Type:      collector.EntryTranscription,
		UID:       cfg.UID,
		Token:     cfg.Token,
		Platform:  cfg.Platform,
		MeetingID: cfg.MeetingID,
		Segments:  wire,
		Language:  language,
	}
	return p.publish(ctx, entry)
}

func (p *StreamPublisher) publish(ctx context.Context, entry collector.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("gateway: marshal stream entry: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamName,
		Values: map[string]any{"payload": string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("gateway: XAdd failed: %w", err)
	}
	return nil
}
