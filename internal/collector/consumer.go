package collector

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
	"github.com/lokutor-ai/meeting-intel/internal/pubsub"
)

// Config holds the stream/consumer-group knobs named in §4.6 and §6.
type Config struct {
	StreamName        string
	ConsumerGroup     string
	ConsumerName      string
	BlockDuration     time.Duration
	ReadCount         int64
	PendingTimeout    time.Duration
	ClaimInterval     time.Duration
	MaxParseRetries   int
	PubSubMaxSegments int
}

func DefaultConfig(streamName, consumerGroup, consumerName string) Config {
	return Config{
		StreamName:        streamName,
		ConsumerGroup:     consumerGroup,
		ConsumerName:      consumerName,
		BlockDuration:     5 * time.Second,
		ReadCount:         64,
		PendingTimeout:    30 * time.Second,
		ClaimInterval:     15 * time.Second,
		MaxParseRetries:   3,
		PubSubMaxSegments: 200,
	}
}

// Consumer reads transcription_segments via a consumer group, merges
// entries into the session map, and acks exactly once per entry (§4.6).
type Consumer struct {
	client   *redis.Client
	cfg      Config
	sessions *SessionMap
	logger   logging.Logger

	parseFailures map[string]int
}

func NewConsumer(client *redis.Client, cfg Config, sessions *SessionMap, logger logging.Logger) *Consumer {
	return &Consumer{client: client, cfg: cfg, sessions: sessions, logger: logger, parseFailures: make(map[string]int)}
}

// EnsureGroup creates the consumer group at the end of the stream if it
// does not already exist (idempotent, mirrors BUSYGROUP handling).
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.StreamName, c.cfg.ConsumerGroup, "$").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if isBusyGroup(err) {
			return nil
		}
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Run blocks, reading and processing entries until ctx is cancelled
// (§5: "respects SIGTERM by finishing in-flight entries, acking them,
// then exiting" — the caller cancels ctx on SIGTERM and Run returns once
// the in-flight ReadGroup call unblocks).
func (c *Consumer) Run(ctx context.Context) error {
	claimTicker := time.NewTicker(c.cfg.ClaimInterval)
	defer claimTicker.Stop()

	go func() {
		c.claimStalePending(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-claimTicker.C:
				c.claimStalePending(ctx)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.ConsumerGroup,
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{c.cfg.StreamName, ">"},
			Count:    c.cfg.ReadCount,
			Block:    c.cfg.BlockDuration,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn("collector: XReadGroup failed", "error", err)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	raw, _ := msg.Values["payload"].(string)
	entry, err := DecodeEntry(raw)
	if err != nil {
		c.parseFailures[msg.ID]++
		if c.parseFailures[msg.ID] >= c.cfg.MaxParseRetries {
			c.logger.Warn("collector: poison-pill entry ack'd after retries", "id", msg.ID, "error", err)
			metrics.CollectorEntriesProcessed.WithLabelValues("poison_pill").Inc()
			c.ack(ctx, msg.ID)
			delete(c.parseFailures, msg.ID)
		}
		return
	}
	delete(c.parseFailures, msg.ID)
	metrics.CollectorEntriesProcessed.WithLabelValues("ok").Inc()

	switch entry.Type {
	case EntrySessionStart:
		c.sessions.Open(entry.UID, entry.MeetingID, entry.Platform, entry.Token, parseStartTimestamp(entry.StartTimestamp))
	case EntryTranscription:
		sess := c.sessions.Open(entry.UID, entry.MeetingID, entry.Platform, entry.Token, time.Now())
		changed := false
		for _, ws := range entry.Segments {
			seg := ws.toSegment(entry.UID, entry.Language)
			seg.MeetingID = entry.MeetingID
			if sess.Merge(seg) {
				changed = true
			}
		}
		// §4.7 step 4: every meaningful mutation — not just promotions —
		// announces segments_updated, so the decision engine (C8) wakes
		// on each new partial instead of only at promotion cadence.
		if changed {
			pubsub.PublishSegmentsUpdated(ctx, c.client, entry.MeetingID, sess.Snapshot(), c.cfg.PubSubMaxSegments, c.logger)
		}
	case EntrySessionEnd:
		// The gateway has drained this session (§4.5 Draining). Mark it so
		// the promoter stops waiting out the immutability threshold for its
		// remaining final segments, and announce one last snapshot.
		if sess, ok := c.sessions.Get(entry.UID); ok {
			sess.MarkEnded()
			pubsub.PublishSegmentsUpdated(ctx, c.client, entry.MeetingID, sess.Snapshot(), c.cfg.PubSubMaxSegments, c.logger)
		}
	}

	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.StreamName, c.cfg.ConsumerGroup, id).Err(); err != nil {
		c.logger.Warn("collector: XAck failed", "id", id, "error", err)
	}
}

// claimStalePending reassigns entries idle for longer than PendingTimeout
// to this consumer via XAutoClaim (§4.6).
func (c *Consumer) claimStalePending(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.StreamName,
			Group:    c.cfg.ConsumerGroup,
			Consumer: c.cfg.ConsumerName,
			MinIdle:  c.cfg.PendingTimeout,
			Start:    start,
			Count:    64,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.logger.Warn("collector: XAutoClaim failed", "error", err)
			}
			return
		}
		if len(msgs) > 0 {
			metrics.CollectorPendingClaimed.Add(float64(len(msgs)))
		}
		for _, msg := range msgs {
			c.process(ctx, msg)
		}
		if next == "" || next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}
