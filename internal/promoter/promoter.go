// Package promoter implements the immutability promoter (§4.7): a
// background task that moves stable, final segments out of the
// collector's mutable session map into durable storage and announces the
// change over pub/sub.
package promoter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/collector"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
	"github.com/lokutor-ai/meeting-intel/internal/pubsub"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// Config holds the promoter's timing knobs (§6).
type Config struct {
	Interval              time.Duration
	ImmutabilityThreshold time.Duration
	PubSubMaxSegments      int
}

func DefaultConfig() Config {
	return Config{
		Interval:              10 * time.Second,
		ImmutabilityThreshold: 30 * time.Second,
		PubSubMaxSegments:     200,
	}
}

// Store is the durable persistence seam (§4.7 step 2-3); Postgres is the
// concrete implementation below, kept narrow so tests can fake it.
type Store interface {
	InsertSegments(ctx context.Context, segs []segment.Segment) error
}

// Promoter runs the background promotion tick described in §4.7.
type Promoter struct {
	cfg      Config
	sessions *collector.SessionMap
	store    Store
	redis    *redis.Client
	logger   logging.Logger
}

func New(cfg Config, sessions *collector.SessionMap, store Store, redisClient *redis.Client, logger logging.Logger) *Promoter {
	return &Promoter{cfg: cfg, sessions: sessions, store: store, redis: redisClient, logger: logger}
}

// Run ticks every cfg.Interval until ctx is cancelled.
func (p *Promoter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick scans every active session once (§4.7 steps 1-4). A DB commit
// failure leaves the session's map intact for the next tick; a pub/sub
// publish failure is swallowed and only logged.
func (p *Promoter) tick(ctx context.Context) {
	for _, sess := range p.sessions.All() {
		promotable := sess.PromotableBefore(p.cfg.ImmutabilityThreshold)
		if len(promotable) == 0 {
			if sess.Ended() && sess.Empty() {
				p.sessions.Close(sess.UID)
			}
			continue
		}

		if err := p.store.InsertSegments(ctx, withMeetingMeta(promotable, sess)); err != nil {
			p.logger.Warn("promoter: insert failed, retrying next tick", "session_uid", sess.UID, "error", err)
			continue
		}
		sess.Remove(promotable)
		metrics.PromoterSegmentsPromoted.Add(float64(len(promotable)))
		p.publish(ctx, sess)

		if sess.Ended() && sess.Empty() {
			p.sessions.Close(sess.UID)
		}
	}
}

func withMeetingMeta(segs []segment.Segment, sess *collector.Session) []segment.Segment {
	for i := range segs {
		segs[i].SessionUID = sess.UID
		segs[i].MeetingID = sess.MeetingID
	}
	return segs
}

// publish sends the "segments_updated" notification for sess's meeting
// with the most recent PubSubMaxSegments known segments (§4.7 step 4).
func (p *Promoter) publish(ctx context.Context, sess *collector.Session) {
	pubsub.PublishSegmentsUpdated(ctx, p.redis, sess.MeetingID, sess.Snapshot(), p.cfg.PubSubMaxSegments, p.logger)
}

// PostgresStore is the pgx-backed implementation of Store (§4.7).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertSegmentSQL = `
INSERT INTO segments (session_uid, start_sec, end_sec, text, speaker_id, speaker_name, language, confidence, meeting_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_uid, start_sec) DO NOTHING`

// InsertSegments persists segs in one transaction, skipping rows that
// already exist (at-least-once delivery, §4.7 step 2).
func (s *PostgresStore) InsertSegments(ctx context.Context, segs []segment.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("promoter: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, seg := range segs {
		_, err := tx.Exec(ctx, insertSegmentSQL,
			seg.SessionUID, seg.StartSec, seg.EndSec, seg.Text,
			seg.SpeakerID, seg.SpeakerName, seg.Language, seg.Confidence, seg.MeetingID)
		if err != nil {
			return fmt.Errorf("promoter: insert segment: %w", err)
		}
	}
	return tx.Commit(ctx)
}

const querySegmentsSQL = `
SELECT session_uid, start_sec, end_sec, text, speaker_id, speaker_name, language, confidence, meeting_id
FROM segments
WHERE meeting_id = $1 AND start_sec >= $2 AND start_sec <= $3
ORDER BY start_sec`

// QuerySegments satisfies C10's "query by (meeting_id, time range)"
// durable segment store contract (§4.10), shared with this promoter's
// insert path.
func (s *PostgresStore) QuerySegments(ctx context.Context, meetingID string, fromSec, toSec float64) ([]segment.Segment, error) {
	rows, err := s.pool.Query(ctx, querySegmentsSQL, meetingID, fromSec, toSec)
	if err != nil {
		return nil, fmt.Errorf("promoter: query segments: %w", err)
	}
	defer rows.Close()

	var out []segment.Segment
	for rows.Next() {
		var seg segment.Segment
		if err := rows.Scan(&seg.SessionUID, &seg.StartSec, &seg.EndSec, &seg.Text,
			&seg.SpeakerID, &seg.SpeakerName, &seg.Language, &seg.Confidence, &seg.MeetingID); err != nil {
			return nil, fmt.Errorf("promoter: scan segment row: %w", err)
		}
		seg.Completed = segment.Final
		out = append(out, seg)
	}
	return out, rows.Err()
}
