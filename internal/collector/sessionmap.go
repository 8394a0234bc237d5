package collector

import (
	"sort"
	"sync"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// sessionEntry is one key (start_sec rounded to 3dp) in a session's
// mutable segment map, tracking when it was last written so the promoter
// (C7) can apply its immutability threshold.
type sessionEntry struct {
	segment  segment.Segment
	writtenAt time.Time
}

// Session holds the mutable per-session segment map plus its lifecycle
// metadata (§4.6).
type Session struct {
	mu        sync.Mutex
	UID       string
	MeetingID string
	Platform  string
	Token     string
	StartedAt time.Time
	ended     bool
	entries   map[float64]*sessionEntry
}

func newSession(uid, meetingID, platform, token string, startedAt time.Time) *Session {
	return &Session{
		UID:       uid,
		MeetingID: meetingID,
		Platform:  platform,
		Token:     token,
		StartedAt: startedAt,
		entries:   make(map[float64]*sessionEntry),
	}
}

// roundKey rounds start_sec to 3 decimal places, matching the key
// semantics named in §4.6.
func roundKey(startSec float64) float64 {
	return float64(int64(startSec*1000+0.5)) / 1000
}

// Merge upserts one incoming segment: a final write overrides a partial,
// a partial never overwrites a final (§4.6 transcription handling).
func (s *Session) Merge(seg segment.Segment) (changed bool) {
	key := roundKey(seg.StartSec)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok {
		s.entries[key] = &sessionEntry{segment: seg, writtenAt: time.Now()}
		return true
	}
	if existing.segment.IsFinal() && !seg.IsFinal() {
		return false
	}
	existing.segment = seg
	existing.writtenAt = time.Now()
	return true
}

// Snapshot returns the currently-known segments for this session, sorted
// by start_sec.
func (s *Session) Snapshot() []segment.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]segment.Segment, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.segment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out
}

// PromotableBefore returns keys whose newest write is older than
// threshold and whose segment is final (§4.7 step 1), along with their
// segments. Callers remove the returned keys only after a successful
// durable-storage transaction (§4.7 step 3). Once the session has ended
// (MarkEnded), the age requirement is waived: a drained gateway session
// has no further writes coming, so every remaining final segment is
// promotable immediately instead of waiting out the threshold.
func (s *Session) PromotableBefore(threshold time.Duration) []segment.Segment {
	cutoff := time.Now().Add(-threshold)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []segment.Segment
	for _, e := range s.entries {
		if !e.segment.IsFinal() {
			continue
		}
		if s.ended || e.writtenAt.Before(cutoff) {
			out = append(out, e.segment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out
}

// MarkEnded records that the gateway has closed this session (session_end,
// §4.5 Draining). The promoter uses this to stop waiting out the
// immutability threshold for this session's remaining final segments.
func (s *Session) MarkEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

// Ended reports whether MarkEnded has been called.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Empty reports whether the session's mutable map has fully drained.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}

// Remove deletes the given keys from the map after they have been
// durably persisted (§4.7 step 3).
func (s *Session) Remove(segs []segment.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range segs {
		delete(s.entries, roundKey(seg.StartSec))
	}
}

// SessionMap is the process-wide registry of active sessions, indexed by
// session UID, shared between the stream consumer (writer) and the
// promoter (reader/remover).
type SessionMap struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionMap() *SessionMap {
	return &SessionMap{sessions: make(map[string]*Session)}
}

// Open creates (or returns the existing) session for uid — session_start
// is idempotent per §4.6.
func (m *SessionMap) Open(uid, meetingID, platform, token string, startedAt time.Time) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[uid]; ok {
		return s
	}
	s := newSession(uid, meetingID, platform, token, startedAt)
	m.sessions[uid] = s
	return s
}

// Get returns the session for uid if it is already open.
func (m *SessionMap) Get(uid string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[uid]
	return s, ok
}

// All returns every currently-open session; used by the promoter's
// background scan (§4.7).
func (m *SessionMap) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Close removes a session entirely; the promoter calls it once the session
// has ended (MarkEnded) and its map is empty.
func (m *SessionMap) Close(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, uid)
}
