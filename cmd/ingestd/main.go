// Command ingestd is the ingestion engine's worker daemon: it owns no
// HTTP surface of its own (§1 puts that out of scope) and instead wires
// the durable JobQueue (C7) to a DocumentPipeline (C5)/StreamingSplitter
// (C6) runner and blocks until signalled, the same "load config, build
// backends, run until SIGINT/SIGTERM" shape as
// cmd/orchestrator/main.go's run().
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/autollama/autollama-sub002/internal/config"
	"github.com/autollama/autollama-sub002/internal/ingest/aiclient"
	"github.com/autollama/autollama-sub002/internal/ingest/contextengine"
	"github.com/autollama/autollama-sub002/internal/ingest/embedbinder"
	"github.com/autollama/autollama-sub002/internal/ingest/fetch"
	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/parse"
	"github.com/autollama/autollama-sub002/internal/ingest/persistence"
	"github.com/autollama/autollama-sub002/internal/ingest/pipeline"
	"github.com/autollama/autollama-sub002/internal/ingest/progress"
	"github.com/autollama/autollama-sub002/internal/ingest/queue"
	"github.com/autollama/autollama-sub002/internal/ingest/session"
	"github.com/autollama/autollama-sub002/internal/ingest/streaming"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
	"github.com/autollama/autollama-sub002/internal/objectstore"
	"github.com/autollama/autollama-sub002/internal/observability"
	"github.com/autollama/autollama-sub002/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ingestd")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger("", cfg.LogLevel)

	baseCtx := context.Background()
	if otlp := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); otlp != "" {
		shutdown, err := observability.InitOTel(baseCtx, observability.ObsConfig{
			ServiceName: "ingestd", ServiceVersion: version.Version, Environment: firstNonEmpty(os.Getenv("ENVIRONMENT"), "development"), OTLP: otlp,
		})
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without tracing/metrics export")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	logger := obs.NewZerologLogger()
	metrics := obs.NewOtelMetrics()

	relational, vector, closeStores, err := buildStores(baseCtx, cfg.Databases)
	if err != nil {
		return fmt.Errorf("init stores: %w", err)
	}
	defer closeStores()

	ai, err := aiclient.New(cfg.AI)
	if err != nil {
		return fmt.Errorf("init ai client: %w", err)
	}

	coord := persistence.New(relational, vector, logger, metrics)
	ctxEngine := contextengine.New(ai, cfg.Context.CacheSize, cfg.Context.MaxTokens, cfg.Context.Temperature)
	binder := embedbinder.New(ai)

	sessions := session.New(logger, metrics)

	bus := progress.New(sessions, logger, metrics)
	if cfg.Progress.KafkaBrokers != "" {
		bus = progress.WithKafkaMirror(bus, []string{cfg.Progress.KafkaBrokers}, cfg.Progress.KafkaTopic)
	}
	defer bus.Close()

	pipe := pipeline.New(ai, ctxEngine, binder, coord, bus, sessions, logger, metrics, pipeline.Config{})

	jobQueue := queue.New(
		buildDurableStore(cfg.Databases.PostgresDSN, cfg.ObjectStore, logger),
		nil, // Runner is set below, once the dispatcher that needs jobQueue itself exists
		sessions, bus, logger, metrics,
		queue.Config{
			MaxConcurrentJobs: cfg.Queue.MaxConcurrentJobs,
			JobTimeout:        cfg.Queue.JobTimeout,
			MaxRetries:        cfg.Queue.MaxRetries,
			RetryDelay:        cfg.Queue.RetryDelay,
			HeartbeatInterval: cfg.Queue.HeartbeatInterval,
			HeartbeatTimeout:  cfg.Queue.HeartbeatTimeout,
			ProgressTimeout:   cfg.Queue.ProgressTimeout,
			CleanupInterval:   cfg.Queue.CleanupInterval,
			DispatchInterval:  cfg.Queue.DispatchInterval,
		},
	)

	dispatcher := streaming.NewDispatcher(jobQueue, logger)
	runner := newJobRunner(parse.New(), fetch.New(), pipe, dispatcher, cfg.Streaming, logger)
	jobQueue.SetRunner(runner)

	if cfg.Queue.DistributedLockAddr != "" {
		lock, err := queue.NewRedisJobLock(cfg.Queue.DistributedLockAddr)
		if err != nil {
			logger.Error("distributed job lock unavailable, running as single instance", map[string]any{"error": err.Error()})
		} else {
			jobQueue.SetLock(lock)
		}
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := jobQueue.Start(ctx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	log.Info().
		Str("version", version.Version).
		Int("max_concurrent_jobs", cfg.Queue.MaxConcurrentJobs).
		Str("vector_backend", cfg.Databases.VectorBackend).
		Msg("ingestd started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	jobQueue.Stop()
	return nil
}

// buildStores constructs the relational and vector stores per
// DatabaseConfig. Falls back to in-memory stores when no DSN is
// configured, matching internal/persistence/databases.Manager's
// "memory unless configured otherwise" bootstrap posture.
func buildStores(ctx context.Context, cfg config.DatabaseConfig) (types.RelationalStore, types.VectorStore, func(), error) {
	var pool *pgxpool.Pool
	var err error
	if cfg.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
	}
	closeFn := func() {
		if pool != nil {
			pool.Close()
		}
	}

	var relational types.RelationalStore
	if pool != nil {
		relational, err = persistence.NewPostgresRelationalStore(ctx, pool)
		if err != nil {
			closeFn()
			return nil, nil, func() {}, fmt.Errorf("init relational store: %w", err)
		}
	} else {
		relational = persistence.NewMemoryRelationalStore()
	}

	var vector types.VectorStore
	switch cfg.VectorBackend {
	case "qdrant":
		vector, err = persistence.NewQdrantVectorStore(ctx, cfg.QdrantDSN, cfg.QdrantCollection, cfg.VectorDimensions, cfg.VectorMetric)
		if err != nil {
			closeFn()
			return nil, nil, func() {}, fmt.Errorf("init qdrant vector store: %w", err)
		}
	case "postgres":
		if pool == nil {
			vector = persistence.NewMemoryVectorStore()
		} else {
			vector, err = persistence.NewPostgresVectorStore(ctx, pool, cfg.VectorDimensions)
			if err != nil {
				closeFn()
				return nil, nil, func() {}, fmt.Errorf("init postgres vector store: %w", err)
			}
		}
	default:
		vector = persistence.NewMemoryVectorStore()
	}

	return relational, vector, closeFn, nil
}

// buildDurableStore constructs C7's job store, optionally wrapped with
// blob offload to an ObjectStore for large file_processing payloads
// (DOMAIN STACK: "object-store backing for file-ingestion job payloads
// above a size threshold").
func buildDurableStore(postgresDSN string, objCfg config.ObjectStoreConfig, logger obs.Logger) queue.DurableStore {
	var base queue.DurableStore
	if postgresDSN != "" {
		pool, err := pgxpool.New(context.Background(), postgresDSN)
		if err != nil {
			logger.Error("queue store: falling back to memory", map[string]any{"error": err.Error()})
			base = queue.NewMemoryStore()
		} else if store, err := queue.NewPostgresStore(context.Background(), pool); err != nil {
			logger.Error("queue store: falling back to memory", map[string]any{"error": err.Error()})
			base = queue.NewMemoryStore()
		} else {
			base = store
		}
	} else {
		base = queue.NewMemoryStore()
	}

	if objCfg.Backend != "s3" || objCfg.Bucket == "" {
		return base
	}
	blobs, err := objectstore.NewS3Store(context.Background(), objectstore.S3Config{
		Bucket: objCfg.Bucket, Region: objCfg.Region, Prefix: objCfg.Prefix,
	})
	if err != nil {
		logger.Error("object store init failed, large payloads stay inline", map[string]any{"error": err.Error()})
		return base
	}
	const offloadThresholdBytes = 5 * 1024 * 1024
	return queue.WithBlobOffload(base, blobs, offloadThresholdBytes)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
