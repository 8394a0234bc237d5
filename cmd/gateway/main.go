// Command gateway runs the WebSocket ingestion server (C5): it accepts
// bot connections, stabilises transcripts, and publishes them onto the
// outbound stream the collector consumes.
package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/asr"
	"github.com/lokutor-ai/meeting-intel/internal/config"
	"github.com/lokutor-ai/meeting-intel/internal/gateway"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New("gateway")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(mustParseRedisURL(cfg.Redis.URL))
	publisher := gateway.NewStreamPublisher(redisClient, cfg.Redis.StreamName)

	backend, cloudStreaming := buildBackend(cfg.Gateway, logger)

	srv := gateway.NewServer(gateway.ServerConfig{
		MaxConnections: int64(cfg.Gateway.MaxConnections),
		MaxLifetime:    cfg.Gateway.MaxConnectionLife,
		EchoGuardOn:    cfg.Gateway.EchoGuardEnabled,
		CloudStreaming: cloudStreaming,
	}, backend, publisher, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.Handle("/metrics", metrics.Handler())

	logger.Info("gateway listening", "addr", cfg.Gateway.Addr)
	if err := http.ListenAndServe(cfg.Gateway.Addr, mux); err != nil {
		logger.Error("gateway server exited", "error", err)
		os.Exit(1)
	}
}

// buildBackend selects the ASR backend variant from TRANSCRIBER_KIND
// (§4.3: Local, RemoteHTTP, CloudStreaming are all deployable, the choice
// between them made once at startup). It also reports whether the
// chosen variant is duplex/cloud-streaming, which the gateway needs to
// pick the right minimum-chunk threshold (audiobuf.MinChunkSec).
func buildBackend(cfg config.GatewayConfig, logger logging.Logger) (asr.Backend, bool) {
	switch asr.Kind(cfg.TranscriberKind) {
	case asr.KindCloudStreaming:
		return asr.NewCloudStreaming(cfg.TranscriberURL), true
	case asr.KindLocal:
		model, err := asr.NewSherpaOfflineModel(asr.SherpaModelConfig{ModelDir: cfg.LocalModelDir})
		if err != nil {
			logger.Error("local ASR model load failed", "error", err)
			os.Exit(1)
		}
		return asr.NewLocal("sherpa_onnx", model), false
	default:
		remote := asr.NewRemoteHTTP(cfg.TranscriberURL, cfg.TranscriberAPIKey)
		if !cfg.FailFastWhenBusy {
			return remote, false
		}
		return asr.NewAdmissionGated(remote, cfg.MaxConcurrentTrans, cfg.MaxQueueSize, cfg.BusyRetryAfterSec), false
	}
}

func mustParseRedisURL(rawURL string) *redis.Options {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		opts = &redis.Options{Addr: "localhost:6379"}
	}
	return opts
}
