package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Backend identifies which transport implementation the process runs on.
// It is resolved exactly once at startup and never re-evaluated per room.
type Backend string

const (
	// BackendSurreal is the realtime backend transport, selected when
	// SurrealDB credentials are configured.
	BackendSurreal Backend = "surreal"
	// BackendLocal is the same-device fallback transport, selected when no
	// backend credentials are present. Not an error condition.
	BackendLocal Backend = "local"
)

// Config holds all configuration for the application.
type Config struct {
	Addr          string
	SessionSecret string

	// SurrealDB credentials. When URL, NS and DB are all present the
	// process runs on the realtime backend transport.
	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string

	// ChannelDir is where the local fallback transport keeps its shared
	// record list, visible to every context on the device.
	ChannelDir string

	// PollInterval is the local transport's re-read backstop.
	PollInterval time.Duration

	// ReconcileInterval enables periodic re-fetch-and-diff on the backend
	// transport when > 0. Off by default.
	ReconcileInterval time.Duration

	// OpenAIKey selects the real speech engine when present.
	OpenAIKey string

	TracingEnabled bool
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:              getenv("ADDR", ":8080"),
		SessionSecret:     getenv("SESSION_SECRET", "roomtalk-dev-secret"),
		DBUrl:             os.Getenv("SURREAL_URL"),
		DBUser:            os.Getenv("SURREAL_USER"),
		DBPass:            os.Getenv("SURREAL_PASS"),
		DBNs:              os.Getenv("SURREAL_NS"),
		DBDb:              os.Getenv("SURREAL_DB"),
		ChannelDir:        getenv("RTC_CHANNEL_DIR", os.TempDir()),
		PollInterval:      getduration("RTC_POLL_INTERVAL", 600*time.Millisecond),
		ReconcileInterval: getduration("RTC_RECONCILE_INTERVAL", 0),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		TracingEnabled:    os.Getenv("RTC_TRACING_ENABLED") == "true",
	}

	return cfg
}

// Backend reports which transport the process uses. Missing credentials
// select the fallback; they are never treated as an error.
func (c *Config) Backend() Backend {
	if c.DBUrl != "" && c.DBNs != "" && c.DBDb != "" {
		return BackendSurreal
	}
	return BackendLocal
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using default", key, v)
		return fallback
	}
	return d
}
