// Command decisions runs the decision-window engine (C8) and the
// tracker-config/decisions HTTP surface (C9): it subscribes to
// segments_updated pub/sub notifications, dispatches sliding transcript
// windows to the LLM, and serves the SSE/REST API named in §6.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meeting-intel/internal/adapters"
	"github.com/lokutor-ai/meeting-intel/internal/config"
	"github.com/lokutor-ai/meeting-intel/internal/decision"
	"github.com/lokutor-ai/meeting-intel/internal/logging"
	"github.com/lokutor-ai/meeting-intel/internal/metrics"
	"github.com/lokutor-ai/meeting-intel/internal/pubsub"
	"github.com/lokutor-ai/meeting-intel/internal/trackerconfig"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New("decisions")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	tracker := trackerconfig.New(loadTrackerDefaults(cfg.Decision.TrackerCategoriesJSON, logger))
	llm := adapters.NewLLMClient(cfg.Decision.OpenAIAPIKey, cfg.Decision.LLMBaseURL, cfg.Decision.LLMModel)
	log := decision.NewRedisLog(redisClient)
	hub := decision.NewHub(func(meetingID string) {
		logger.Warn("decisions: sse subscriber dropped oldest buffered item", "meeting_id", meetingID)
	})

	engineCfg := decision.DefaultConfig()
	engineCfg.WindowSegments = cfg.Decision.WindowSegments
	engineCfg.OffsetSegments = cfg.Decision.OffsetSegments
	engineCfg.Debounce = time.Duration(cfg.Decision.DebounceMS) * time.Millisecond
	engineCfg.ConfidenceFloor = cfg.Decision.ConfidenceFloor
	engineCfg.DecisionsTTL = cfg.Decision.DecisionsTTL

	engine := decision.NewEngine(engineCfg, tracker, llm, log, hub, logger)

	go subscribeSegmentsUpdated(ctx, redisClient, engine, logger)

	srv := decision.NewServer(hub, log, tracker)
	mux := http.NewServeMux()
	srv.Routes(mux)
	mux.Handle("/metrics", metrics.Handler())

	logger.Info("decisions listening", "addr", cfg.Decision.Addr)
	if err := http.ListenAndServe(cfg.Decision.Addr, mux); err != nil {
		logger.Error("decisions server exited", "error", err)
		os.Exit(1)
	}
}

// subscribeSegmentsUpdated listens on every meeting's "tc:meeting:*:mutable"
// channel and routes each segments_updated envelope into the engine
// (§4.8 step 1, §6 wire format).
func subscribeSegmentsUpdated(ctx context.Context, client *redis.Client, engine *decision.Engine, logger logging.Logger) {
	sub := client.PSubscribe(ctx, "tc:meeting:*:mutable")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handleSegmentsUpdated(ctx, msg.Payload, engine, logger)
		}
	}
}

func handleSegmentsUpdated(ctx context.Context, payload string, engine *decision.Engine, logger logging.Logger) {
	var envelope pubsub.SegmentsUpdatedMessage
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		logger.Warn("decisions: malformed segments_updated payload", "error", err)
		return
	}
	if envelope.Event != "segments_updated" || envelope.MeetingID == "" {
		return
	}
	engine.OnSegmentsUpdated(ctx, envelope.MeetingID, envelope.Payload.Segments)
}

func loadTrackerDefaults(rawJSON string, logger logging.Logger) trackerconfig.Config {
	if rawJSON == "" {
		return trackerconfig.Config{}
	}
	cfg, err := trackerconfig.ParseJSON([]byte(rawJSON))
	if err != nil {
		logger.Warn("decisions: invalid TRACKER_CATEGORIES_JSON, using built-in defaults", "error", err)
		return trackerconfig.Config{}
	}
	return cfg
}
