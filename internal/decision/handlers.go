package decision

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lokutor-ai/meeting-intel/internal/trackerconfig"
)

// Server exposes the decisions HTTP surface named in §6: health, SSE
// decision feed, decision-log snapshot, on-demand summary, and the
// tracker config CRUD.
type Server struct {
	hub      *Hub
	log      Log
	tracker  *trackerconfig.Registry
}

func NewServer(hub *Hub, log Log, tracker *trackerconfig.Registry) *Server {
	return &Server{hub: hub, log: log, tracker: tracker}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/decisions/", s.handleDecisions)
	mux.HandleFunc("/summary/", s.handleSummary)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/config/reset", s.handleConfigReset)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDecisions serves both GET /decisions/{meeting_id} (SSE) and
// GET /decisions/{meeting_id}/all (snapshot), per §6.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/decisions/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(rest, "/all") {
		meetingID := strings.TrimSuffix(rest, "/all")
		s.handleDecisionsAll(w, r, meetingID)
		return
	}
	s.hub.ServeSSE(w, r, rest)
}

func (s *Server) handleDecisionsAll(w http.ResponseWriter, r *http.Request, meetingID string) {
	items, err := s.log.All(r.Context(), meetingID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meeting_id": meetingID,
		"count":      len(items),
		"items":      items,
	})
}

// handleSummary computes a MeetingSummary on demand: lede is the first
// decision-type item's summary, theme is the most frequent entity label
// (§3 Supplemented data).
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	meetingID := strings.TrimPrefix(r.URL.Path, "/summary/")
	if meetingID == "" {
		http.NotFound(w, r)
		return
	}
	items, err := s.log.All(r.Context(), meetingID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var lede string
	labelCounts := make(map[string]int)
	for _, item := range items {
		if lede == "" && item.Type == "decision" {
			lede = item.Summary
		}
		for _, e := range item.Entities {
			labelCounts[e.Label]++
		}
	}
	theme := mostFrequentLabel(labelCounts)

	writeJSON(w, http.StatusOK, map[string]any{
		"meeting_id": meetingID,
		"summary":    map[string]string{"lede": lede, "theme": theme},
		"item_count": len(items),
	})
}

func mostFrequentLabel(counts map[string]int) string {
	var best string
	bestCount := 0
	for label, count := range counts {
		if count > bestCount {
			best = label
			bestCount = count
		}
	}
	return best
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tracker.Get())
	case http.MethodPut:
		var cfg trackerconfig.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid config body"})
			return
		}
		s.tracker.Set(cfg)
		writeJSON(w, http.StatusOK, s.tracker.Get())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleConfigReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Reset())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
