// Package config provides application configuration.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Field names map to
// environment variables with no prefix; nested structs use underscore
// delimiter (e.g. EMBEDDING_DIMENSIONS).
type EnvConfig struct {
	Host     string `envconfig:"HOST" default:"0.0.0.0"`
	Port     int    `envconfig:"PORT" default:"8080"`
	DataDir  string `envconfig:"DATA_DIR"`
	DBURL    string `envconfig:"DB_URL"`
	DBMaxOpenConns int `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBConnTimeoutSeconds float64 `envconfig:"DB_CONN_TIMEOUT_SECONDS" default:"5"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	SkipProviderValidation bool `envconfig:"SKIP_PROVIDER_VALIDATION" default:"false"`

	FrontendURL string `envconfig:"FRONTEND_URL"`
	CORSOrigin  string `envconfig:"CORS_ORIGIN"`

	Embedding EmbeddingEnv `envconfig:"EMBEDDING"`
	LLM       LLMEnv       `envconfig:"LLM"`
	Retrieval RetrievalEnv `envconfig:"RETRIEVAL"`
}

// EmbeddingEnv holds environment configuration for the Embedding Provider
// and the Embedding Pipeline's batching/scheduling behavior.
type EmbeddingEnv struct {
	Model             string  `envconfig:"MODEL" default:"text-embedding-3-small"`
	Dimensions        int     `envconfig:"DIMENSIONS" default:"1536"`
	BatchSize         int     `envconfig:"BATCH_SIZE" default:"50"`
	CronSchedule      string  `envconfig:"CRON_SCHEDULE"`
	CostPerMillion    float64 `envconfig:"COST_PER_MILLION_TOKENS" default:"0.02"`
}

// LLMEnv holds environment configuration for the LLM Provider.
type LLMEnv struct {
	ChatModel       string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	Temperature     float64 `envconfig:"TEMPERATURE" default:"0.7"`
	TopK            int     `envconfig:"TOP_K" default:"40"`
	TopP            float64 `envconfig:"TOP_P" default:"0.95"`
	MaxOutputTokens int     `envconfig:"MAX_OUTPUT_TOKENS" default:"1024"`
}

// RetrievalEnv holds environment configuration for Vector Search, the
// Ranker, and the Context Formatter.
type RetrievalEnv struct {
	DefaultTopN            int     `envconfig:"DEFAULT_TOP_N" default:"10"`
	DefaultTopK            int     `envconfig:"DEFAULT_TOP_K" default:"10"`
	DefaultMinSimilarity   float64 `envconfig:"DEFAULT_MIN_SIMILARITY" default:"0.5"`
	MinSimilarityFloor     float64 `envconfig:"MIN_SIMILARITY_FLOOR" default:"0.25"`
	MaxContextTokens       int     `envconfig:"MAX_CONTEXT_TOKENS" default:"28000"`
	HybridKeywordThreshold int     `envconfig:"HYBRID_KEYWORD_THRESHOLD" default:"2"`
	DiversityThreshold     float64 `envconfig:"DIVERSITY_THRESHOLD" default:"0.85"`
	RecencyDecayDays       int     `envconfig:"RECENCY_DECAY_DAYS" default:"60"`

	WeightVector  float64 `envconfig:"WEIGHT_VECTOR" default:"0.45"`
	WeightRecency float64 `envconfig:"WEIGHT_RECENCY" default:"0.15"`
	WeightKeyword float64 `envconfig:"WEIGHT_KEYWORD" default:"0.25"`
	WeightSource  float64 `envconfig:"WEIGHT_SOURCE" default:"0.10"`
	WeightLength  float64 `envconfig:"WEIGHT_LENGTH" default:"0.05"`
	IntentBoost   float64 `envconfig:"INTENT_BOOST" default:"1.3"`
}

// LoadFromEnv loads configuration from environment variables with no prefix.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix. For
// example, prefix "RAGENGINE" would require RAGENGINE_DATA_DIR instead of
// DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig. Host, port, data dir, DB URL,
// log level and format, frontend URL and CORS origins are applied only when
// set, so NewAppConfig's defaults remain in force for them; the pool
// settings, the skip-validation flag and the embedding, LLM and retrieval
// blocks are always taken from e.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	cfg = applyOption(cfg, WithDBPool(e.DBMaxOpenConns, time.Duration(e.DBConnTimeoutSeconds*float64(time.Second))))
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	cfg = applyOption(cfg, WithSkipProviderValidation(e.SkipProviderValidation))
	if e.FrontendURL != "" {
		cfg = applyOption(cfg, WithFrontendURL(e.FrontendURL))
	}
	if e.CORSOrigin != "" {
		cfg = applyOption(cfg, WithCORSOrigins(ParseCommaList(e.CORSOrigin)))
	}

	cfg = applyOption(cfg, WithEmbeddingConfig(e.Embedding.ToEmbeddingConfig()))
	cfg = applyOption(cfg, WithLLMConfig(e.LLM.ToLLMConfig()))
	cfg = applyOption(cfg, WithRetrievalConfig(e.Retrieval.ToRetrievalConfig(cfg.Retrieval().Weights.SourcePriority)))

	return cfg
}

// ToEmbeddingConfig converts EmbeddingEnv to EmbeddingConfig.
func (e EmbeddingEnv) ToEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:          e.Model,
		Dimensions:     e.Dimensions,
		BatchSize:      e.BatchSize,
		CronSchedule:   e.CronSchedule,
		CostPerMillion: e.CostPerMillion,
	}
}

// ToLLMConfig converts LLMEnv to LLMConfig.
func (e LLMEnv) ToLLMConfig() LLMConfig {
	return LLMConfig{
		ChatModel:       e.ChatModel,
		Temperature:     e.Temperature,
		TopK:            e.TopK,
		TopP:            e.TopP,
		MaxOutputTokens: e.MaxOutputTokens,
	}
}

// ToRetrievalConfig converts RetrievalEnv to RetrievalConfig. sourcePriority
// is carried over from defaults since it has no flat env representation
// (per-source priority is set programmatically, not via env vars).
func (e RetrievalEnv) ToRetrievalConfig(sourcePriority map[string]float64) RetrievalConfig {
	return RetrievalConfig{
		TopN:                   e.DefaultTopN,
		TopK:                   e.DefaultTopK,
		MinSimilarity:          e.DefaultMinSimilarity,
		MinSimilarityFloor:     e.MinSimilarityFloor,
		MaxContextTokens:       e.MaxContextTokens,
		HybridKeywordThreshold: e.HybridKeywordThreshold,
		Weights: RankerWeights{
			Vector:             e.WeightVector,
			Recency:            e.WeightRecency,
			Keyword:            e.WeightKeyword,
			Source:             e.WeightSource,
			Length:             e.WeightLength,
			SourcePriority:     sourcePriority,
			IntentBoost:        e.IntentBoost,
			DiversityThreshold: e.DiversityThreshold,
			RecencyDecayDays:   e.RecencyDecayDays,
		},
	}
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
