// Package pubsub holds the segments_updated wire envelope shared by the
// collector (publishes on every merged partial, §4.6) and the promoter
// (publishes on every promotion, §4.7), so the two writers and the
// decisions process that subscribes to them never drift on wire shape.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// SegmentsUpdatedMessage is the pub/sub wire schema of §6:
// {"event":"segments_updated","meeting_id","payload":{"segments":[...]}}.
type SegmentsUpdatedMessage struct {
	Event     string `json:"event"`
	MeetingID string `json:"meeting_id"`
	Payload   struct {
		Segments []segment.Segment `json:"segments"`
	} `json:"payload"`
}

func channelFor(meetingID string) string {
	return fmt.Sprintf("tc:meeting:%s:mutable", meetingID)
}

// PublishSegmentsUpdated announces one meaningful mutation — a new
// partial merged by the collector or a promotion by the promoter (§4.7
// step 4: "every meaningful mutation... triggers a single segments_updated
// message"). segments is truncated to the most recent maxSegments entries
// when maxSegments > 0. Failures are swallowed and only logged: every
// subscriber can always re-derive state from the next message or the
// durable store.
func PublishSegmentsUpdated(ctx context.Context, client *redis.Client, meetingID string, segments []segment.Segment, maxSegments int, logger logging.Logger) {
	if client == nil {
		return
	}
	if maxSegments > 0 && len(segments) > maxSegments {
		segments = segments[len(segments)-maxSegments:]
	}

	msg := SegmentsUpdatedMessage{Event: "segments_updated", MeetingID: meetingID}
	msg.Payload.Segments = segments

	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("pubsub: marshal segments_updated failed", "meeting_id", meetingID, "error", err)
		return
	}
	channel := channelFor(meetingID)
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		logger.Warn("pubsub: publish failed, best-effort", "channel", channel, "error", err)
	}
}
