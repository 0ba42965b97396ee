package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 5.0, cfg.DBConnTimeoutSeconds)

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 50, cfg.Embedding.BatchSize)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ChatModel)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)

	assert.Equal(t, 10, cfg.Retrieval.DefaultTopN)
	assert.Equal(t, 10, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, 0.5, cfg.Retrieval.DefaultMinSimilarity)
	assert.Equal(t, 0.25, cfg.Retrieval.MinSimilarityFloor)
	assert.Equal(t, 28000, cfg.Retrieval.MaxContextTokens)
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_DIR", "/custom/data")
	t.Setenv("DB_URL", "postgres://localhost/ragengine")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SKIP_PROVIDER_VALIDATION", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/custom/data", cfg.DataDir)
	assert.Equal(t, "postgres://localhost/ragengine", cfg.DBURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.SkipProviderValidation)
}

func TestLoadFromEnv_Embedding(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("EMBEDDING_DIMENSIONS", "3072")
	t.Setenv("EMBEDDING_BATCH_SIZE", "25")
	t.Setenv("EMBEDDING_CRON_SCHEDULE", "*/15 * * * *")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 3072, cfg.Embedding.Dimensions)
	assert.Equal(t, 25, cfg.Embedding.BatchSize)
	assert.Equal(t, "*/15 * * * *", cfg.Embedding.CronSchedule)
}

func TestLoadFromEnv_LLM(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("LLM_CHAT_MODEL", "gpt-4o")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_TOP_K", "20")
	t.Setenv("LLM_MAX_OUTPUT_TOKENS", "2048")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.ChatModel)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 20, cfg.LLM.TopK)
	assert.Equal(t, 2048, cfg.LLM.MaxOutputTokens)
}

func TestLoadFromEnv_Retrieval(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("RETRIEVAL_DEFAULT_TOP_N", "5")
	t.Setenv("RETRIEVAL_MAX_CONTEXT_TOKENS", "16000")
	t.Setenv("RETRIEVAL_DIVERSITY_THRESHOLD", "0.9")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retrieval.DefaultTopN)
	assert.Equal(t, 16000, cfg.Retrieval.MaxContextTokens)
	assert.Equal(t, 0.9, cfg.Retrieval.DiversityThreshold)
}

func TestEnvConfig_ToAppConfig(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DATA_DIR", "/test/data")
	t.Setenv("DB_URL", "postgres://test/db")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SKIP_PROVIDER_VALIDATION", "true")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("LLM_CHAT_MODEL", "gpt-4o")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	cfg := envCfg.ToAppConfig()

	assert.Equal(t, "/test/data", cfg.DataDir())
	assert.Equal(t, "postgres://test/db", cfg.DBURL())
	assert.Equal(t, "DEBUG", cfg.LogLevel())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.True(t, cfg.SkipProviderValidation())
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding().Model)
	assert.Equal(t, "gpt-4o", cfg.LLM().ChatModel)
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected LogFormat
	}{
		{"json", LogFormatJSON},
		{"JSON", LogFormatJSON},
		{"pretty", LogFormatPretty},
		{"PRETTY", LogFormatPretty},
		{"", LogFormatPretty},
		{"invalid", LogFormatPretty},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseLogFormat(tc.input))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	content := "DATA_DIR=/from/dotenv\nLOG_LEVEL=DEBUG\n"
	err := os.WriteFile(envFile, []byte(content), 0o644)
	require.NoError(t, err)

	clearEnvVars(t)

	err = LoadDotEnv(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/from/dotenv", os.Getenv("DATA_DIR"))
	assert.Equal(t, "DEBUG", os.Getenv("LOG_LEVEL"))
}

func TestLoadDotEnv_NonExistent(t *testing.T) {
	clearEnvVars(t)

	err := LoadDotEnv("/nonexistent/.env")
	assert.NoError(t, err)
}

func TestMustLoadDotEnv_NonExistent(t *testing.T) {
	clearEnvVars(t)

	err := MustLoadDotEnv("/nonexistent/.env")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	content := "DATA_DIR=/config/data\nLOG_LEVEL=WARN\nEMBEDDING_MODEL=test-embedding\n"
	err := os.WriteFile(envFile, []byte(content), 0o644)
	require.NoError(t, err)

	clearEnvVars(t)

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/config/data", cfg.DataDir())
	assert.Equal(t, "WARN", cfg.LogLevel())
	assert.Equal(t, "test-embedding", cfg.Embedding().Model)
}

func TestLoadDotEnvFromFiles(t *testing.T) {
	tmpDir := t.TempDir()

	env1 := filepath.Join(tmpDir, ".env")
	err := os.WriteFile(env1, []byte("KEY1=value1\nKEY2=value2\n"), 0o644)
	require.NoError(t, err)

	env2 := filepath.Join(tmpDir, ".env.local")
	err = os.WriteFile(env2, []byte("KEY2=override\nKEY3=value3\n"), 0o644)
	require.NoError(t, err)

	clearEnvVars(t)

	err = LoadDotEnvFromFiles(env1, env2)
	require.NoError(t, err)

	assert.Equal(t, "value1", os.Getenv("KEY1"))
	assert.Equal(t, "value2", os.Getenv("KEY2"))
	assert.Equal(t, "value3", os.Getenv("KEY3"))
}

func TestOverloadDotEnvFromFiles(t *testing.T) {
	tmpDir := t.TempDir()

	env1 := filepath.Join(tmpDir, ".env")
	err := os.WriteFile(env1, []byte("KEY1=value1\nKEY2=value2\n"), 0o644)
	require.NoError(t, err)

	env2 := filepath.Join(tmpDir, ".env.local")
	err = os.WriteFile(env2, []byte("KEY2=override\nKEY3=value3\n"), 0o644)
	require.NoError(t, err)

	clearEnvVars(t)

	err = OverloadDotEnvFromFiles(env1, env2)
	require.NoError(t, err)

	assert.Equal(t, "value1", os.Getenv("KEY1"))
	assert.Equal(t, "override", os.Getenv("KEY2"))
	assert.Equal(t, "value3", os.Getenv("KEY3"))
}

// clearEnvVars unsets all config-related environment variables.
func clearEnvVars(t *testing.T) {
	t.Helper()

	vars := []string{
		"HOST", "PORT", "DATA_DIR", "DB_URL", "DB_MAX_OPEN_CONNS", "DB_CONN_TIMEOUT_SECONDS",
		"LOG_LEVEL", "LOG_FORMAT", "SKIP_PROVIDER_VALIDATION",
		"FRONTEND_URL", "CORS_ORIGIN",
		"EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "EMBEDDING_BATCH_SIZE", "EMBEDDING_CRON_SCHEDULE", "EMBEDDING_COST_PER_MILLION_TOKENS",
		"LLM_CHAT_MODEL", "LLM_TEMPERATURE", "LLM_TOP_K", "LLM_TOP_P", "LLM_MAX_OUTPUT_TOKENS",
		"RETRIEVAL_DEFAULT_TOP_N", "RETRIEVAL_DEFAULT_TOP_K", "RETRIEVAL_DEFAULT_MIN_SIMILARITY",
		"RETRIEVAL_MIN_SIMILARITY_FLOOR", "RETRIEVAL_MAX_CONTEXT_TOKENS", "RETRIEVAL_HYBRID_KEYWORD_THRESHOLD",
		"RETRIEVAL_DIVERSITY_THRESHOLD", "RETRIEVAL_RECENCY_DECAY_DAYS",
		"RETRIEVAL_WEIGHT_VECTOR", "RETRIEVAL_WEIGHT_RECENCY", "RETRIEVAL_WEIGHT_KEYWORD",
		"RETRIEVAL_WEIGHT_SOURCE", "RETRIEVAL_WEIGHT_LENGTH", "RETRIEVAL_INTENT_BOOST",
		"KEY1", "KEY2", "KEY3",
	}

	for _, v := range vars {
		_ = os.Unsetenv(v)
	}
}
