package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearIngestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"MAX_CONCURRENT_JOBS", "JOB_TIMEOUT_MS", "MAX_RETRIES", "RETRY_DELAY_MS",
		"HEARTBEAT_INTERVAL_MS", "HEARTBEAT_TIMEOUT_MS", "PROGRESS_TIMEOUT_MS",
		"CLEANUP_INTERVAL_MS", "DISPATCH_INTERVAL_MS", "MAX_FILE_SIZE",
		"STREAMING_MIN_SPLIT_SIZE_BYTES", "STREAMING_MIN_SPLIT_TEXT_LEN", "STREAMING_MIN_SECTIONS",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearIngestEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Queue.MaxConcurrentJobs)
	require.Equal(t, 2*time.Hour, cfg.Queue.JobTimeout)
	require.Equal(t, 3, cfg.Queue.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)
	require.Equal(t, 30*time.Second, cfg.Queue.HeartbeatInterval)
	require.Equal(t, 5*time.Minute, cfg.Queue.HeartbeatTimeout)
	require.Equal(t, 10*time.Minute, cfg.Queue.ProgressTimeout)
	require.Equal(t, 3*time.Minute, cfg.Queue.CleanupInterval)

	require.Equal(t, int64(100*1024*1024), cfg.Streaming.MaxIngestFileSize)
	require.Equal(t, int64(500*1024), cfg.Streaming.MinSplitSizeBytes)
	require.Equal(t, 50000, cfg.Streaming.MinSplitTextLen)
	require.Equal(t, 2, cfg.Streaming.MinSections)
}

func TestLoad_RejectsNonPositiveConcurrency(t *testing.T) {
	clearIngestEnv(t)
	require.NoError(t, os.Setenv("MAX_CONCURRENT_JOBS", "0"))
	defer os.Unsetenv("MAX_CONCURRENT_JOBS")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearIngestEnv(t)
	require.NoError(t, os.Setenv("MAX_CONCURRENT_JOBS", "7"))
	require.NoError(t, os.Setenv("RETRY_DELAY_MS", "1500"))
	defer clearIngestEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Queue.MaxConcurrentJobs)
	require.Equal(t, 1500*time.Millisecond, cfg.Queue.RetryDelay)
}

func TestLoad_YAMLOverlayWinsOverDefaultsButNotExplicitEnv(t *testing.T) {
	clearIngestEnv(t)
	dir := t.TempDir()
	path := dir + "/ingest.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  provider: anthropic
  model: claude-sonnet
databases:
  postgres_dsn: postgres://overlay/db
`), 0o600))

	require.NoError(t, os.Setenv("INGEST_CONFIG_FILE", path))
	require.NoError(t, os.Setenv("AI_MODEL", "gpt-4o"))
	defer os.Unsetenv("INGEST_CONFIG_FILE")
	defer os.Unsetenv("AI_MODEL")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.AI.Provider)
	require.Equal(t, "gpt-4o", cfg.AI.Model, "overlay only fills fields the env left at their default")
	require.Equal(t, "postgres://overlay/db", cfg.Databases.PostgresDSN)
}

func TestLoad_MissingConfigFileIsNotAnError(t *testing.T) {
	clearIngestEnv(t)
	require.NoError(t, os.Setenv("INGEST_CONFIG_FILE", "/nonexistent/ingest.yaml"))
	defer os.Unsetenv("INGEST_CONFIG_FILE")

	_, err := Load()
	require.NoError(t, err)
}
