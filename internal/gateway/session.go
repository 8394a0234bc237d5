package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/meeting-intel/internal/asr"
	"github.com/lokutor-ai/meeting-intel/internal/attribution"
	"github.com/lokutor-ai/meeting-intel/internal/audiobuf"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// connState is the per-connection state machine named in §4.5.
type connState int

const (
	stateAwaitingConfig connState = iota
	stateReady
	stateRunning
	stateDraining
)

const (
	awaitingConfigTimeout = 10 * time.Second
	defaultMaxLifetime    = 10 * time.Minute
	workerPollInterval    = 200 * time.Millisecond
)

// Deps bundles the shared collaborators a session needs, constructed
// once per server and handed to every connection.
type Deps struct {
	Backend        asr.Backend
	Publisher      *StreamPublisher
	Logger         logging.Logger
	EchoGuardOn    bool
	MaxLifetime    time.Duration
	CloudStreaming bool
}

// session drives one WebSocket connection through AwaitingConfig ->
// Ready -> Running -> Draining (§4.5).
type session struct {
	conn *websocket.Conn
	deps Deps

	state connState
	cfg   ConfigFrame

	buffer      *audiobuf.RollingBuffer
	vad         *audiobuf.VAD
	stabiliser  *segment.Stabiliser
	echoGuard   *echoGuard

	mu             sync.Mutex
	activity       []attribution.ActivityEntry
	sessionStartAt time.Time
}

func newSession(conn *websocket.Conn, deps Deps) *session {
	if deps.MaxLifetime <= 0 {
		deps.MaxLifetime = defaultMaxLifetime
	}
	return &session{
		conn:       conn,
		deps:       deps,
		state:      stateAwaitingConfig,
		buffer:     audiobuf.NewRollingBuffer(),
		vad:        audiobuf.NewVAD(0),
		stabiliser: segment.New(segment.DefaultThresholds()),
		echoGuard:  newEchoGuard(deps.EchoGuardOn),
	}
}

// run drives the whole connection lifecycle and returns once the
// connection is fully drained/closed.
func (s *session) run(ctx context.Context) {
	lifetimeCtx, cancel := context.WithTimeout(ctx, s.deps.MaxLifetime)
	defer cancel()

	if err := s.awaitConfig(lifetimeCtx); err != nil {
		s.deps.Logger.Warn("gateway: awaiting config failed", "error", err)
		s.closeConn(websocket.StatusPolicyViolation, "config timeout or invalid")
		return
	}

	s.state = stateReady
	s.sessionStartAt = time.Now().UTC()
	if err := s.deps.Publisher.PublishSessionStart(lifetimeCtx, s.cfg, s.sessionStartAt); err != nil {
		s.deps.Logger.Warn("gateway: publish session_start failed", "error", err)
	}
	if err := s.send(lifetimeCtx, readyStatus{Status: "SERVER_READY", UID: s.cfg.UID, Backend: s.deps.Backend.Name()}); err != nil {
		return
	}

	s.state = stateRunning
	workerCtx, workerCancel := context.WithCancel(lifetimeCtx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.asrWorkerLoop(workerCtx)
	}()

	s.readLoop(lifetimeCtx)

	s.state = stateDraining
	workerCancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	select {
	case <-workerDone:
	case <-drainCtx.Done():
	}

	s.flushFinal(ctx)
	if err := s.deps.Publisher.PublishSessionEnd(ctx, s.cfg, time.Now().UTC()); err != nil {
		s.deps.Logger.Warn("gateway: publish session_end failed", "uid", s.cfg.UID, "error", err)
	}
	_ = s.send(ctx, disconnectFrame{UID: s.cfg.UID, Message: "DISCONNECT"})

	s.closeConn(websocket.StatusNormalClosure, "session ended")
}

func (s *session) awaitConfig(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, awaitingConfigTimeout)
	defer cancel()

	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read config frame: %w", err)
	}
	var cfg ConfigFrame
	if err := json.Unmarshal(data, &cfg); err != nil {
		_ = s.send(ctx, errorStatus{Status: "ERROR", Message: "invalid config frame"})
		return fmt.Errorf("decode config frame: %w", err)
	}
	if missing := cfg.missingFields(); len(missing) > 0 {
		_ = s.send(ctx, errorStatus{Status: "ERROR", UID: cfg.UID, Message: fmt.Sprintf("missing fields: %v", missing)})
		return fmt.Errorf("config frame missing fields: %v", missing)
	}
	s.cfg = cfg
	return nil
}

// readLoop pushes binary PCM into the buffer and handles runtime JSON
// control frames, never blocking on ASR (§4.5).
func (s *session) readLoop(ctx context.Context) {
	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			s.handleBinaryFrame(data)
		case websocket.MessageText:
			if string(data) == endOfAudioSentinel {
				return
			}
			s.handleControlFrame(ctx, data)
		}
	}
}

func (s *session) handleBinaryFrame(data []byte) {
	if string(data) == endOfAudioSentinel {
		return
	}
	pcm := bytesToFloat32LE(data)
	if s.echoGuard.IsEcho(pcm) {
		return
	}
	s.buffer.Append(pcm)
}

func (s *session) handleControlFrame(ctx context.Context, data []byte) {
	var probe runtimeFrame
	if err := json.Unmarshal(data, &probe); err != nil {
		return
	}
	switch probe.Type {
	case "speaker_activity_update":
		var upd SpeakerActivityUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			return
		}
		s.recordActivity(upd)
	case "session_control":
		var ctrl SessionControl
		if err := json.Unmarshal(data, &ctrl); err != nil {
			return
		}
		if ctrl.Payload.Event == eventLeavingMeeting {
			s.closeConn(websocket.StatusNormalClosure, "leaving meeting")
		}
	}
}

func (s *session) recordActivity(upd SpeakerActivityUpdate) {
	ts, err := time.Parse(time.RFC3339, upd.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range upd.Speakers {
		s.activity = append(s.activity, attribution.ActivityEntry{
			SpeakerID: sp.ID, Name: sp.Name, Timestamp: ts, MetaBits: sp.MicActivityBits,
		})
	}
}

func (s *session) activitySnapshot() []attribution.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attribution.ActivityEntry, len(s.activity))
	copy(out, s.activity)
	return out
}

// asrWorkerLoop implements the dedicated per-connection loop from §4.5:
// "while running: if buf empty sleep; else chunk = next_chunk(); if
// chunk < min: sleep; else transcribe; stabilise; emit."
func (s *session) asrWorkerLoop(ctx context.Context) {
	minChunk := audiobuf.MinChunkSec(s.deps.CloudStreaming)
	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.buffer.ClipIfStalled()
		pcm, durationSec := s.buffer.NextChunk()
		if durationSec < minChunk {
			continue
		}

		_, timestampOffsetSec := s.buffer.Offsets()
		task := asr.TaskTranscribe
		if s.cfg.Task == string(asr.TaskTranslate) {
			task = asr.TaskTranslate
		}

		hyps, info, err := s.deps.Backend.Transcribe(ctx, pcm, s.cfg.Language, task, s.cfg.InitialPrompt)
		if err != nil {
			if _, ok := asr.IsOverloaded(err); ok {
				continue // re-buffer, retry next pass; do not advance offsets
			}
			s.deps.Logger.Warn("gateway: transcribe failed", "uid", s.cfg.UID, "error", err)
			continue
		}

		finals, partial, hasPartial := s.stabiliser.Stabilise(timestampOffsetSec, hyps)
		s.emit(ctx, finals, partial, hasPartial, info.DetectedLanguage)

		if len(finals) > 0 {
			lastEnd := finals[len(finals)-1].EndSec
			s.buffer.AdvanceOffset(lastEnd - timestampOffsetSec)
		}
	}
}

func (s *session) emit(ctx context.Context, finals []segment.Segment, partial segment.Segment, hasPartial bool, language string) {
	all := make([]segment.Segment, 0, len(finals)+1)
	all = append(all, finals...)
	if hasPartial {
		all = append(all, partial)
	}
	valid := all[:0]
	for _, seg := range all {
		if err := seg.Validate(); err != nil {
			s.deps.Logger.Warn("gateway: dropping invalid segment", "uid", s.cfg.UID, "error", err)
			continue
		}
		valid = append(valid, seg)
	}
	all = valid
	if len(all) == 0 {
		return
	}

	intervals := attribution.BuildIntervals(s.activitySnapshot())
	for i := range all {
		all[i].SessionUID = s.cfg.UID
		all[i].MeetingID = s.cfg.MeetingID
		all[i].Language = language
		if id, name, ok := attribution.Assign(s.sessionStartAt, all[i], intervals); ok {
			all[i].SpeakerID = id
			all[i].SpeakerName = name
		}
	}

	if err := s.deps.Publisher.PublishTranscription(ctx, s.cfg, all, language); err != nil {
		s.deps.Logger.Warn("gateway: publish transcription failed", "uid", s.cfg.UID, "error", err)
	}

	out := make([]wireSegmentOut, len(all))
	for i, seg := range all {
		out[i] = wireSegmentOut{
			Start: seg.StartSec, End: seg.EndSec, Text: seg.Text,
			SpeakerID: seg.SpeakerID, SpeakerName: seg.SpeakerName, Completed: seg.IsFinal(),
		}
	}
	_ = s.send(ctx, segmentsFrame{UID: s.cfg.UID, Segments: out})
}

// flushFinal forces any trailing partial buffered audio through one last
// ASR pass on drain, so nothing is silently lost at disconnect.
func (s *session) flushFinal(ctx context.Context) {
	pcm, durationSec := s.buffer.NextChunk()
	if durationSec <= 0 {
		return
	}
	_, timestampOffsetSec := s.buffer.Offsets()
	hyps, info, err := s.deps.Backend.Transcribe(ctx, pcm, s.cfg.Language, asr.TaskTranscribe, s.cfg.InitialPrompt)
	if err != nil {
		return
	}
	finals, partial, hasPartial := s.stabiliser.Stabilise(timestampOffsetSec, hyps)
	if hasPartial {
		partial.Completed = segment.Final
		finals = append(finals, partial)
		hasPartial = false
	}
	s.emit(ctx, finals, segment.Segment{}, false, info.DetectedLanguage)
}

func (s *session) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *session) closeConn(code websocket.StatusCode, reason string) {
	_ = s.conn.Close(code, reason)
}

// bytesToFloat32LE decodes little-endian Float32 PCM frames (§6).
func bytesToFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[4*i : 4*i+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
