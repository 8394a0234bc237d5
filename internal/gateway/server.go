package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/meeting-intel/internal/asr"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
)

// ServerConfig holds the admission knobs of §4.5.
type ServerConfig struct {
	MaxConnections  int64
	MaxLifetime     time.Duration
	EchoGuardOn     bool
	CloudStreaming  bool
}

// Server accepts gateway WebSocket connections, enforcing the
// per-server connection cap before handing off to a session (§4.5).
type Server struct {
	cfg       ServerConfig
	backend   asr.Backend
	publisher *StreamPublisher
	logger    logging.Logger

	active atomic.Int64
}

func NewServer(cfg ServerConfig, backend asr.Backend, publisher *StreamPublisher, logger logging.Logger) *Server {
	return &Server{cfg: cfg, backend: backend, publisher: publisher, logger: logger}
}

// ServeHTTP upgrades the connection and, if under the admission cap,
// starts a session; otherwise it returns a JSON WAIT status and closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	if s.cfg.MaxConnections > 0 && s.active.Add(1) > s.cfg.MaxConnections {
		s.active.Add(-1)
		metrics.GatewayConnectionsRejected.Inc()
		s.rejectWithWait(r.Context(), conn)
		return
	}
	metrics.GatewayActiveConnections.Inc()
	defer func() {
		s.active.Add(-1)
		metrics.GatewayActiveConnections.Dec()
	}()

	deps := Deps{
		Backend:        s.backend,
		Publisher:      s.publisher,
		Logger:         s.logger,
		EchoGuardOn:    s.cfg.EchoGuardOn,
		MaxLifetime:    s.cfg.MaxLifetime,
		CloudStreaming: s.cfg.CloudStreaming,
	}
	sess := newSession(conn, deps)
	sess.run(r.Context())
}

// estimatedWaitMinutes is a coarse estimate proportional to how far over
// capacity the server currently is; exact queueing theory is out of
// scope for this gateway.
func (s *Server) estimatedWaitMinutes() int {
	over := s.active.Load() - s.cfg.MaxConnections
	if over < 1 {
		over = 1
	}
	return int(over)
}

func (s *Server) rejectWithWait(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(waitStatus{Status: "WAIT", WaitMinutes: s.estimatedWaitMinutes()})
	_ = conn.Write(ctx, websocket.MessageText, data)
	_ = conn.Close(websocket.StatusTryAgainLater, "server at capacity")
}
