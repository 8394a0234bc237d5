// Package collector implements the Redis-Streams transcription collector
// (stream consumer group, per-session merge, and outbound wire schema).
package collector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// EntryType discriminates the three stream payload shapes carried on the
// transcription_segments stream (§4.6, plus the gateway's session_end).
type EntryType string

const (
	EntrySessionStart  EntryType = "session_start"
	EntryTranscription EntryType = "transcription"
	EntrySessionEnd    EntryType = "session_end"
)

// WireSegment is the JSON shape of one segment inside a transcription
// entry; Completed travels as a bool on the wire, unlike segment.Segment's
// internal Completion enum.
type WireSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Speaker    string  `json:"speaker_name,omitempty"`
	Confidence float64 `json:"confidence"`
	Completed  bool    `json:"completed"`
}

func (w WireSegment) toSegment(sessionUID, language string) segment.Segment {
	completion := segment.Partial
	if w.Completed {
		completion = segment.Final
	}
	return segment.Segment{
		SessionUID:  sessionUID,
		StartSec:    w.Start,
		EndSec:      w.End,
		Text:        w.Text,
		SpeakerID:   w.SpeakerID,
		SpeakerName: w.Speaker,
		Language:    language,
		Confidence:  w.Confidence,
		Completed:   completion,
	}
}

// Entry is the decoded form of one stream entry (§4.6).
type Entry struct {
	Type           EntryType     `json:"type"`
	UID            string        `json:"uid"`
	Token          string        `json:"token"`
	Platform       string        `json:"platform"`
	MeetingID      string        `json:"meeting_id"`
	StartTimestamp string        `json:"start_timestamp,omitempty"`
	EndTimestamp   string        `json:"end_timestamp,omitempty"`
	Segments       []WireSegment `json:"segments,omitempty"`
	Language       string        `json:"language,omitempty"`
}

// DecodeEntry parses the single JSON field carried in a stream entry's
// "payload" field. A malformed payload is the poison-pill case handled by
// the caller (§4.6: ack'd and logged after bounded retries).
func DecodeEntry(payload string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Entry{}, fmt.Errorf("collector: decode entry: %w", err)
	}
	if e.Type != EntrySessionStart && e.Type != EntryTranscription && e.Type != EntrySessionEnd {
		return Entry{}, fmt.Errorf("collector: unknown entry type %q", e.Type)
	}
	return e, nil
}

// parseStartTimestamp parses the ISO-8601 session_start_time; an empty or
// malformed timestamp falls back to the current time rather than failing
// the whole entry, since the session map still needs to open.
func parseStartTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
