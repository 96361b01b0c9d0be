// Package config loads the ingestion service's runtime configuration from
// the environment, in the teacher's flat Load()-function idiom (see
// internal/config/loader.go in intelligencedev-manifold): every field is
// read directly off os.Getenv with a sensible default, no reflection, no
// struct tags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileOverlay is the optional YAML file operators can use to version values
// they'd rather not carry as loose env vars (AI provider base URLs/models,
// store DSNs). Fields mirror a subset of Config; anything left unset in the
// file leaves the env-derived value untouched. The path comes from
// INGEST_CONFIG_FILE; if unset or unreadable, Load proceeds on env alone.
type fileOverlay struct {
	AI struct {
		Provider       string `yaml:"provider"`
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
		BaseURL        string `yaml:"base_url"`
	} `yaml:"ai"`
	Databases struct {
		PostgresDSN      string `yaml:"postgres_dsn"`
		VectorBackend    string `yaml:"vector_backend"`
		QdrantDSN        string `yaml:"qdrant_dsn"`
		QdrantCollection string `yaml:"qdrant_collection"`
	} `yaml:"databases"`
}

// applyFileOverlay loads path (if non-empty) as YAML and fills any cfg
// field the file sets, provided the environment left that field unset —
// env vars always win.
func applyFileOverlay(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config overlay %s: %w", path, err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config overlay %s: %w", path, err)
	}
	if overlay.AI.Provider != "" && cfg.AI.Provider == "" {
		cfg.AI.Provider = overlay.AI.Provider
	}
	if overlay.AI.Model != "" && cfg.AI.Model == "" {
		cfg.AI.Model = overlay.AI.Model
	}
	if overlay.AI.EmbeddingModel != "" && cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = overlay.AI.EmbeddingModel
	}
	if overlay.AI.BaseURL != "" && cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = overlay.AI.BaseURL
	}
	if overlay.Databases.PostgresDSN != "" && cfg.Databases.PostgresDSN == "" {
		cfg.Databases.PostgresDSN = overlay.Databases.PostgresDSN
	}
	if overlay.Databases.VectorBackend != "" && cfg.Databases.VectorBackend == "" {
		cfg.Databases.VectorBackend = overlay.Databases.VectorBackend
	}
	if overlay.Databases.QdrantDSN != "" && cfg.Databases.QdrantDSN == "" {
		cfg.Databases.QdrantDSN = overlay.Databases.QdrantDSN
	}
	if overlay.Databases.QdrantCollection != "" && cfg.Databases.QdrantCollection == "" {
		cfg.Databases.QdrantCollection = overlay.Databases.QdrantCollection
	}
	return nil
}

// QueueConfig controls C7 JobQueue timing and retry policy.
type QueueConfig struct {
	MaxConcurrentJobs   int
	JobTimeout          time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatTimeout    time.Duration
	ProgressTimeout     time.Duration
	CleanupInterval     time.Duration
	DispatchInterval    time.Duration
	// DistributedLockAddr, when set, points at a Redis instance used to
	// coordinate job dispatch across multiple ingestd instances sharing a
	// DurableStore. Empty means single-instance (no distributed lock).
	DistributedLockAddr string
}

// ContextConfig controls C2 ContextEngine behavior.
type ContextConfig struct {
	EmbeddingsEnabled bool
	Model             string
	BatchSize         int
	MaxTokens         int
	Temperature       float64
	CacheSize         int
}

// StreamingConfig controls C6 StreamingSplitter thresholds (§4.6) and the
// overall accepted ingestion file size (§6, independent of splitting).
type StreamingConfig struct {
	MaxIngestFileSize int64 // overall accepted file size for file_processing jobs
	MinSplitSizeBytes int64 // total byte size threshold to consider splitting
	MinSplitTextLen   int   // parsed text length threshold to consider splitting
	MinSections       int   // minimum extractable section count to split
}

// DatabaseConfig configures the relational and vector stores.
type DatabaseConfig struct {
	PostgresDSN  string
	VectorBackend string // "postgres" | "qdrant" | "memory"
	QdrantDSN    string
	QdrantCollection string
	VectorDimensions int
	VectorMetric     string
}

// ObjectStoreConfig configures large-file blob offload.
type ObjectStoreConfig struct {
	Backend string // "s3" | "memory"
	Bucket  string
	Region  string
	Prefix  string
}

// AIConfig configures the AIClient backend.
type AIConfig struct {
	Provider     string // "openai" | "anthropic" | "google"
	APIKey       string
	Model        string
	EmbeddingModel string
	BaseURL      string
	Timeout      time.Duration
}

// ProgressConfig controls the ProgressBus.
type ProgressConfig struct {
	BufferSize   int
	KafkaBrokers string
	KafkaTopic   string
}

// Config is the ingestion service's complete runtime configuration.
type Config struct {
	Queue       QueueConfig
	Context     ContextConfig
	Streaming   StreamingConfig
	Databases   DatabaseConfig
	ObjectStore ObjectStoreConfig
	AI          AIConfig
	Progress    ProgressConfig

	LogLevel string
}

// Load reads Config from the environment, applying a `.env` file first if
// present (via godotenv, matching the teacher's bootstrap idiom).
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config

	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")

	cfg.Queue.MaxConcurrentJobs = envInt("MAX_CONCURRENT_JOBS", 3)
	cfg.Queue.JobTimeout = envDuration("JOB_TIMEOUT_MS", 2*time.Hour)
	cfg.Queue.MaxRetries = envInt("MAX_RETRIES", 3)
	cfg.Queue.RetryDelay = envDuration("RETRY_DELAY_MS", 30*time.Second)
	cfg.Queue.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL_MS", 30*time.Second)
	cfg.Queue.HeartbeatTimeout = envDuration("HEARTBEAT_TIMEOUT_MS", 5*time.Minute)
	cfg.Queue.ProgressTimeout = envDuration("PROGRESS_TIMEOUT_MS", 10*time.Minute)
	cfg.Queue.CleanupInterval = envDuration("CLEANUP_INTERVAL_MS", 3*time.Minute)
	cfg.Queue.DispatchInterval = envDuration("DISPATCH_INTERVAL_MS", time.Second)
	cfg.Queue.DistributedLockAddr = strings.TrimSpace(os.Getenv("QUEUE_DISTRIBUTED_LOCK_REDIS_ADDR"))

	cfg.Context.EmbeddingsEnabled = envBool("CONTEXT_EMBEDDINGS_ENABLED", true)
	cfg.Context.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("CONTEXT_MODEL")), "gpt-4o-mini")
	cfg.Context.BatchSize = envInt("CONTEXT_BATCH_SIZE", 5)
	cfg.Context.MaxTokens = envInt("CONTEXT_MAX_TOKENS", 150)
	cfg.Context.Temperature = envFloat("CONTEXT_TEMPERATURE", 0.2)
	cfg.Context.CacheSize = envInt("CONTEXT_CACHE_SIZE", 100)

	cfg.Streaming.MaxIngestFileSize = envInt64("MAX_FILE_SIZE", 100*1024*1024)
	cfg.Streaming.MinSplitSizeBytes = envInt64("STREAMING_MIN_SPLIT_SIZE_BYTES", 500*1024)
	cfg.Streaming.MinSplitTextLen = envInt("STREAMING_MIN_SPLIT_TEXT_LEN", 50000)
	cfg.Streaming.MinSections = envInt("STREAMING_MIN_SECTIONS", 2)

	cfg.Databases.PostgresDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_URL")), strings.TrimSpace(os.Getenv("POSTGRES_DSN")))
	cfg.Databases.VectorBackend = strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	cfg.Databases.QdrantDSN = strings.TrimSpace(os.Getenv("QDRANT_DSN"))
	cfg.Databases.QdrantCollection = strings.TrimSpace(os.Getenv("QDRANT_COLLECTION"))
	cfg.Databases.VectorDimensions = envInt("VECTOR_DIMENSIONS", 1536)
	cfg.Databases.VectorMetric = firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_METRIC")), "cosine")

	cfg.ObjectStore.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("OBJECTSTORE_BACKEND")), "memory")
	cfg.ObjectStore.Bucket = strings.TrimSpace(os.Getenv("OBJECTSTORE_BUCKET"))
	cfg.ObjectStore.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("OBJECTSTORE_REGION")), "us-east-1")
	cfg.ObjectStore.Prefix = strings.TrimSpace(os.Getenv("OBJECTSTORE_PREFIX"))

	cfg.AI.Provider = strings.TrimSpace(os.Getenv("AI_PROVIDER"))
	cfg.AI.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_API_KEY")), strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY")))
	cfg.AI.Model = strings.TrimSpace(os.Getenv("AI_MODEL"))
	cfg.AI.EmbeddingModel = strings.TrimSpace(os.Getenv("AI_EMBEDDING_MODEL"))
	cfg.AI.BaseURL = strings.TrimSpace(os.Getenv("AI_BASE_URL"))
	cfg.AI.Timeout = envDuration("AI_TIMEOUT_MS", 30*time.Second)

	cfg.Progress.BufferSize = envInt("PROGRESS_BUFFER_SIZE", 256)
	cfg.Progress.KafkaBrokers = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_BROKERS")), strings.TrimSpace(os.Getenv("KAFKA_BOOTSTRAP_SERVERS")))
	cfg.Progress.KafkaTopic = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_PROGRESS_TOPIC")), "ingest.progress")

	// The YAML overlay fills whichever of the above AI/Databases fields the
	// environment left unset; it never overrides an explicit env var.
	if err := applyFileOverlay(&cfg, strings.TrimSpace(os.Getenv("INGEST_CONFIG_FILE"))); err != nil {
		return cfg, err
	}

	cfg.AI.Provider = firstNonEmpty(cfg.AI.Provider, "openai")
	cfg.AI.EmbeddingModel = firstNonEmpty(cfg.AI.EmbeddingModel, "text-embedding-3-small")
	cfg.Databases.VectorBackend = firstNonEmpty(cfg.Databases.VectorBackend, "postgres")
	cfg.Databases.QdrantCollection = firstNonEmpty(cfg.Databases.QdrantCollection, "ingest_chunks")

	if cfg.Queue.MaxConcurrentJobs <= 0 {
		return cfg, fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
