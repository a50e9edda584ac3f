// Package config holds service configuration loaded from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config contains all tunables for the service. Values control the event
// log bound, stream backpressure, replay window and worker pool sizing.
type Config struct {
	// HTTPPort is the port the API server listens on.
	HTTPPort string

	// WorkerCount is the number of goroutines executing engine runs.
	WorkerCount int

	// MaxEventsPerSession bounds each session's event log; the oldest
	// entry is evicted first once exceeded.
	MaxEventsPerSession int

	// SubscriberBuffer is the per-connection pending event capacity. A
	// subscriber whose buffer fills is dropped by the next broadcast.
	SubscriberBuffer int

	// ReplayLimit is how many stored events a new stream connection
	// replays before going live.
	ReplayLimit int

	// HeartbeatInterval is how long a stream waits for the next event
	// before emitting a liveness pulse.
	HeartbeatInterval time.Duration

	// GracefulShutdownTimeout bounds how long shutdown waits for
	// in-flight executions to drain.
	GracefulShutdownTimeout time.Duration

	// OpenAIModel is the model used by the OpenAI execution engine.
	OpenAIModel string
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		HTTPPort:                "8080",
		WorkerCount:             4,
		MaxEventsPerSession:     200,
		SubscriberBuffer:        100,
		ReplayLimit:             20,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
		OpenAIModel:             "",
	}
}

// Load returns the defaults overridden by environment variables. Invalid
// values are logged and ignored.
func Load() *Config {
	cfg := Default()

	if v := os.Getenv("HTTP_PORT"); v != "" {
		cfg.HTTPPort = v
	}
	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxEventsPerSession = envInt("MAX_EVENTS_PER_SESSION", cfg.MaxEventsPerSession)
	cfg.SubscriberBuffer = envInt("SUBSCRIBER_BUFFER", cfg.SubscriberBuffer)
	cfg.ReplayLimit = envInt("REPLAY_LIMIT", cfg.ReplayLimit)
	cfg.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.GracefulShutdownTimeout = envDuration("GRACEFUL_SHUTDOWN_TIMEOUT", cfg.GracefulShutdownTimeout)
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}

	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		slog.Warn("Ignoring invalid config value", "key", key, "value", v)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("Ignoring invalid config value", "key", key, "value", v)
		return fallback
	}
	return d
}
