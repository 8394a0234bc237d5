package decision

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// sseRingBufferSize and sseKeepaliveInterval are grounded verbatim on
// alfredjeanlab-beads' internal/server/sse.go hub (same ring size and the
// same 15s keepalive the specification names explicitly in §6).
const (
	sseRingBufferSize   = 1000
	sseKeepaliveInterval = 15 * time.Second
)

// Item is the wire shape of one decision event (§6 SSE endpoints).
type Item struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Summary    string   `json:"summary"`
	Speaker    string   `json:"speaker,omitempty"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities"`
	MeetingID  string   `json:"meeting_id"`
}

type sseEvent struct {
	ID        uint64
	MeetingID string
	Data      []byte
}

// sseClient is a single connected subscriber for one meeting.
type sseClient struct {
	meetingID string
	ch        chan *sseEvent
}

// Hub fans out decision items to SSE subscribers, keyed by meeting, with a
// bounded per-subscriber channel. Broadcast also records every event in a
// global ring buffer, but nothing reads it back: there is no replay, and
// Last-Event-ID is ignored. Per §4.8's concurrency note, on overflow the *oldest* buffered
// item for that subscriber is dropped (not the newest) and a warning is
// logged by the caller.
type Hub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64

	ringMu  sync.RWMutex
	ring    [sseRingBufferSize]sseEvent
	ringPos int
	ringLen int

	onDrop func(meetingID string)
}

func NewHub(onDrop func(meetingID string)) *Hub {
	return &Hub{clients: make(map[*sseClient]struct{}), onDrop: onDrop}
}

// Broadcast publishes item for meetingID to every subscriber of that
// meeting and records it in the replay ring buffer.
func (h *Hub) Broadcast(meetingID string, item Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	id := h.nextID.Add(1)
	evt := &sseEvent{ID: id, MeetingID: meetingID, Data: payload}

	h.ringMu.Lock()
	h.ring[h.ringPos] = *evt
	h.ringPos = (h.ringPos + 1) % sseRingBufferSize
	if h.ringLen < sseRingBufferSize {
		h.ringLen++
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.meetingID != meetingID {
			continue
		}
		h.sendDropOldest(c, evt)
	}
	return nil
}

// sendDropOldest delivers evt to c's channel; if the channel is full, it
// drops the oldest queued item (per spec §4.8) to make room, rather than
// dropping the new one.
func (h *Hub) sendDropOldest(c *sseClient, evt *sseEvent) {
	select {
	case c.ch <- evt:
		return
	default:
	}
	select {
	case <-c.ch:
		if h.onDrop != nil {
			h.onDrop(c.meetingID)
		}
	default:
	}
	select {
	case c.ch <- evt:
	default:
	}
}

func (h *Hub) Subscribe(meetingID string) *sseClient {
	c := &sseClient{meetingID: meetingID, ch: make(chan *sseEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) Unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeSSE handles GET /decisions/{meeting_id}: a subscriber receives
// only future items (§8 scenario 6 — no retroactive replay, also not on a
// reconnect that carries a Last-Event-ID header).
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, meetingID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	client := h.Subscribe(meetingID)
	defer h.Unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			fmt.Fprintf(w, "id:%d\n", evt.ID)
			fmt.Fprintf(w, "data:%s\n\n", evt.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
