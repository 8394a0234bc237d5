// Package config loads every environment-configurable value named in
// SPEC_FULL.md §6, modeled on
// mbaxamb33-yuzu.agent.webrtc.toy/internal/config/config.go's viper
// Load() shape (AutomaticEnv + SetDefault + BindEnv per key).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the single process-wide configuration snapshot loaded at
// startup. Each binary (gateway/collector/decisions) reads only the
// sub-struct it needs.
type Config struct {
	Redis    RedisConfig
	Gateway  GatewayConfig
	Collector CollectorConfig
	Decision DecisionConfig
	Storage  StorageConfig
	LogLevel string
}

type RedisConfig struct {
	URL           string
	StreamName    string
	ConsumerGroup string
}

type GatewayConfig struct {
	Addr                string
	MaxConnections      int
	MaxConnectionLife   time.Duration
	EchoGuardEnabled    bool
	TranscriberKind     string
	TranscriberURL      string
	TranscriberAPIKey   string
	LocalModelDir       string
	MaxConcurrentTrans  int
	MaxQueueSize        int
	FailFastWhenBusy    bool
	BusyRetryAfterSec   float64
}

type CollectorConfig struct {
	PendingMsgTimeout      time.Duration
	ImmutabilityThreshold  time.Duration
	BackgroundTaskInterval time.Duration
	DatabaseURL            string
}

type DecisionConfig struct {
	Addr           string
	WindowSegments int
	OffsetSegments int
	DebounceMS     int64
	LLMModel       string
	LLMBaseURL     string
	OpenAIAPIKey   string
	DecisionsTTL   time.Duration
	ConfidenceFloor float64
	TrackerCategoriesJSON string
}

type StorageConfig struct {
	ObjectStoreKind string // "s3" | "local"
	S3Bucket        string
	S3Endpoint      string
	S3Region        string
	LocalStoreDir   string
}

// Load reads every variable from the environment (with the spec's
// defaults), validating required combinations. A returned error is
// always a Fatal-kind startup error (§7): the caller should log it and
// exit non-zero.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.stream_name", "transcription_segments")
	v.SetDefault("redis.consumer_group", "transcription_collector_group")

	v.SetDefault("gateway.addr", ":8765")
	v.SetDefault("gateway.max_connections", 100)
	v.SetDefault("gateway.max_connection_time_s", 600)
	v.SetDefault("gateway.echo_guard_enabled", false)
	v.SetDefault("gateway.transcriber_kind", "remote_http")
	v.SetDefault("gateway.max_concurrent_transcriptions", 8)
	v.SetDefault("gateway.max_queue_size", 16)
	v.SetDefault("gateway.fail_fast_when_busy", true)
	v.SetDefault("gateway.busy_retry_after_s", 2.0)

	v.SetDefault("collector.pending_msg_timeout_ms", 30000)
	v.SetDefault("collector.immutability_threshold_s", 3.0)
	v.SetDefault("collector.background_task_interval_s", 2.0)

	v.SetDefault("decision.addr", ":8080")
	v.SetDefault("decision.window_segments", 20)
	v.SetDefault("decision.offset_segments", 3)
	v.SetDefault("decision.debounce_ms", 5000)
	v.SetDefault("decision.llm_model", "gpt-4o-mini")
	v.SetDefault("decision.llm_base_url", "https://api.openai.com/v1")
	v.SetDefault("decision.decisions_ttl_s", 7*24*3600)
	v.SetDefault("decision.confidence_floor", 0.5)

	v.SetDefault("storage.object_store_kind", "local")
	v.SetDefault("storage.local_store_dir", "./data/objects")

	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("redis.stream_name", "REDIS_STREAM_NAME")
	v.BindEnv("redis.consumer_group", "REDIS_CONSUMER_GROUP")

	v.BindEnv("gateway.addr", "GATEWAY_ADDR")
	v.BindEnv("gateway.max_connections", "MAX_CONNECTIONS")
	v.BindEnv("gateway.max_connection_time_s", "MAX_CONNECTION_LIFETIME")
	v.BindEnv("gateway.echo_guard_enabled", "ECHO_GUARD_ENABLED")
	v.BindEnv("gateway.transcriber_kind", "TRANSCRIBER_KIND")
	v.BindEnv("gateway.transcriber_url", "TRANSCRIBER_URL")
	v.BindEnv("gateway.transcriber_api_key", "TRANSCRIBER_API_KEY")
	v.BindEnv("gateway.local_model_dir", "LOCAL_MODEL_DIR")
	v.BindEnv("gateway.max_concurrent_transcriptions", "MAX_CONCURRENT_TRANSCRIPTIONS")
	v.BindEnv("gateway.max_queue_size", "MAX_QUEUE_SIZE")
	v.BindEnv("gateway.fail_fast_when_busy", "FAIL_FAST_WHEN_BUSY")
	v.BindEnv("gateway.busy_retry_after_s", "BUSY_RETRY_AFTER_S")

	v.BindEnv("collector.pending_msg_timeout_ms", "PENDING_MSG_TIMEOUT_MS")
	v.BindEnv("collector.immutability_threshold_s", "IMMUTABILITY_THRESHOLD")
	v.BindEnv("collector.background_task_interval_s", "BACKGROUND_TASK_INTERVAL")
	v.BindEnv("collector.database_url", "DATABASE_URL")

	v.BindEnv("decision.addr", "DECISIONS_ADDR")
	v.BindEnv("decision.window_segments", "WINDOW_SEGMENTS")
	v.BindEnv("decision.offset_segments", "OFFSET_SEGMENTS")
	v.BindEnv("decision.debounce_ms", "DEBOUNCE_MS")
	v.BindEnv("decision.llm_model", "LLM_MODEL")
	v.BindEnv("decision.llm_base_url", "LLM_BASE_URL")
	v.BindEnv("decision.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("decision.decisions_ttl_s", "DECISIONS_TTL")
	v.BindEnv("decision.tracker_categories_json", "TRACKER_CATEGORIES_JSON")

	v.BindEnv("storage.object_store_kind", "OBJECT_STORE_KIND")
	v.BindEnv("storage.s3_bucket", "S3_BUCKET")
	v.BindEnv("storage.s3_endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3_region", "S3_REGION")
	v.BindEnv("storage.local_store_dir", "LOCAL_STORE_DIR")

	v.BindEnv("log_level", "LOG_LEVEL")

	cfg := Config{
		Redis: RedisConfig{
			URL:           v.GetString("redis.url"),
			StreamName:    v.GetString("redis.stream_name"),
			ConsumerGroup: v.GetString("redis.consumer_group"),
		},
		Gateway: GatewayConfig{
			Addr:               v.GetString("gateway.addr"),
			MaxConnections:      v.GetInt("gateway.max_connections"),
			MaxConnectionLife:   time.Duration(v.GetInt("gateway.max_connection_time_s")) * time.Second,
			EchoGuardEnabled:    v.GetBool("gateway.echo_guard_enabled"),
			TranscriberKind:     v.GetString("gateway.transcriber_kind"),
			TranscriberURL:      v.GetString("gateway.transcriber_url"),
			TranscriberAPIKey:   v.GetString("gateway.transcriber_api_key"),
			LocalModelDir:       v.GetString("gateway.local_model_dir"),
			MaxConcurrentTrans:  v.GetInt("gateway.max_concurrent_transcriptions"),
			MaxQueueSize:        v.GetInt("gateway.max_queue_size"),
			FailFastWhenBusy:    v.GetBool("gateway.fail_fast_when_busy"),
			BusyRetryAfterSec:   v.GetFloat64("gateway.busy_retry_after_s"),
		},
		Collector: CollectorConfig{
			PendingMsgTimeout:      time.Duration(v.GetInt("collector.pending_msg_timeout_ms")) * time.Millisecond,
			ImmutabilityThreshold:  time.Duration(v.GetFloat64("collector.immutability_threshold_s") * float64(time.Second)),
			BackgroundTaskInterval: time.Duration(v.GetFloat64("collector.background_task_interval_s") * float64(time.Second)),
			DatabaseURL:            v.GetString("collector.database_url"),
		},
		Decision: DecisionConfig{
			Addr:                  v.GetString("decision.addr"),
			WindowSegments:        v.GetInt("decision.window_segments"),
			OffsetSegments:        v.GetInt("decision.offset_segments"),
			DebounceMS:            v.GetInt64("decision.debounce_ms"),
			LLMModel:              v.GetString("decision.llm_model"),
			LLMBaseURL:            v.GetString("decision.llm_base_url"),
			OpenAIAPIKey:          v.GetString("decision.openai_api_key"),
			DecisionsTTL:          time.Duration(v.GetInt("decision.decisions_ttl_s")) * time.Second,
			ConfidenceFloor:       v.GetFloat64("decision.confidence_floor"),
			TrackerCategoriesJSON: v.GetString("decision.tracker_categories_json"),
		},
		Storage: StorageConfig{
			ObjectStoreKind: v.GetString("storage.object_store_kind"),
			S3Bucket:        v.GetString("storage.s3_bucket"),
			S3Endpoint:      v.GetString("storage.s3_endpoint"),
			S3Region:        v.GetString("storage.s3_region"),
			LocalStoreDir:   v.GetString("storage.local_store_dir"),
		},
		LogLevel: v.GetString("log_level"),
	}

	if cfg.Storage.ObjectStoreKind == "s3" && cfg.Storage.S3Bucket == "" {
		return Config{}, fmt.Errorf("config: OBJECT_STORE_KIND=s3 requires S3_BUCKET")
	}

	return cfg, nil
}
