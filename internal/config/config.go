// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values, one per spec §6 configuration key.
const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 8080
	DefaultLogLevel = "INFO"

	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDimensions = 1536
	DefaultEmbeddingBatchSize  = 50
	DefaultCostPerMillionTokens = 0.02

	DefaultLLMChatModel       = "gpt-4o-mini"
	DefaultLLMTemperature     = 0.7
	DefaultLLMTopK            = 40
	DefaultLLMTopP            = 0.95
	DefaultLLMMaxOutputTokens = 1024

	DefaultTopN               = 10
	DefaultTopK               = 10
	DefaultMinSimilarity      = 0.5
	DefaultMinSimilarityFloor = 0.25
	DefaultMaxContextTokens   = 28000
	DefaultHybridKeywordThreshold = 2
	DefaultDiversityThreshold = 0.85
	DefaultRecencyDecayDays   = 60

	DefaultDBMaxOpenConns = 10
	DefaultDBConnTimeout  = 5 * time.Second

	// DefaultEmbeddingChunkSize is the number of documents embedded per
	// transactional batch inside the Embedding Pipeline (spec §4.F).
	DefaultEmbeddingChunkSize = 10
	// DefaultEmbeddingInterChunkDelay paces chunk-to-chunk calls.
	DefaultEmbeddingInterChunkDelay = 400 * time.Millisecond
	// DefaultEmbeddingInterDrainDelay paces drain-loop iterations.
	DefaultEmbeddingInterDrainDelay = 500 * time.Millisecond
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// RankerWeights configures the Result Ranker's (§4.I) weighted linear
// combination and its two non-weight parameters (source priority table and
// intent boost), per DESIGN.md Open Question 3: these are config, not
// baked-in constants.
type RankerWeights struct {
	Vector         float64
	Recency        float64
	Keyword        float64
	Source         float64
	Length         float64
	SourcePriority map[string]float64
	IntentBoost    float64
	DiversityThreshold float64
	RecencyDecayDays   int
}

// DefaultRankerWeights returns the spec's stated default weights (§4.I).
func DefaultRankerWeights() RankerWeights {
	return RankerWeights{
		Vector:  0.45,
		Recency: 0.15,
		Keyword: 0.25,
		Source:  0.10,
		Length:  0.05,
		SourcePriority: map[string]float64{
			"email":    1.0,
			"calendar": 0.95,
			"music":    0.80,
		},
		IntentBoost:        1.3,
		DiversityThreshold: DefaultDiversityThreshold,
		RecencyDecayDays:   DefaultRecencyDecayDays,
	}
}

// EmbeddingConfig configures the Embedding Provider (§4.B) and the
// Embedding Pipeline's batching behavior (§4.F).
type EmbeddingConfig struct {
	Model              string
	Dimensions         int
	BatchSize          int
	CronSchedule       string
	CostPerMillion     float64
}

// NewEmbeddingConfig creates an EmbeddingConfig with spec defaults.
func NewEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:          DefaultEmbeddingModel,
		Dimensions:     DefaultEmbeddingDimensions,
		BatchSize:      DefaultEmbeddingBatchSize,
		CostPerMillion: DefaultCostPerMillionTokens,
	}
}

// LLMConfig configures the LLM Provider (§4.C).
type LLMConfig struct {
	ChatModel       string
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// NewLLMConfig creates an LLMConfig with spec defaults.
func NewLLMConfig() LLMConfig {
	return LLMConfig{
		ChatModel:       DefaultLLMChatModel,
		Temperature:     DefaultLLMTemperature,
		TopK:            DefaultLLMTopK,
		TopP:            DefaultLLMTopP,
		MaxOutputTokens: DefaultLLMMaxOutputTokens,
	}
}

// RetrievalConfig configures Vector Search, Ranker, and Context Formatter
// defaults (§4.H, §4.I, §4.J).
type RetrievalConfig struct {
	TopN                   int
	TopK                   int
	MinSimilarity          float64
	MinSimilarityFloor     float64
	MaxContextTokens       int
	HybridKeywordThreshold int
	Weights                RankerWeights
}

// NewRetrievalConfig creates a RetrievalConfig with spec defaults.
func NewRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopN:                   DefaultTopN,
		TopK:                   DefaultTopK,
		MinSimilarity:          DefaultMinSimilarity,
		MinSimilarityFloor:     DefaultMinSimilarityFloor,
		MaxContextTokens:       DefaultMaxContextTokens,
		HybridKeywordThreshold: DefaultHybridKeywordThreshold,
		Weights:                DefaultRankerWeights(),
	}
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host      string
	port      int
	dataDir   string
	dbURL     string
	dbMaxOpenConns int
	dbConnTimeout  time.Duration
	logLevel  string
	logFormat LogFormat

	embedding EmbeddingConfig
	llm       LLMConfig
	retrieval RetrievalConfig

	frontendURL string
	corsOrigins []string

	skipProviderValidation bool
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragengine"
	}
	return filepath.Join(home, ".ragengine")
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:           DefaultHost,
		port:           DefaultPort,
		dataDir:        dataDir,
		dbURL:          "sqlite:///" + filepath.Join(dataDir, "ragengine.db"),
		dbMaxOpenConns: DefaultDBMaxOpenConns,
		dbConnTimeout:  DefaultDBConnTimeout,
		logLevel:       DefaultLogLevel,
		logFormat:      LogFormatPretty,
		embedding:      NewEmbeddingConfig(),
		llm:            NewLLMConfig(),
		retrieval:      NewRetrievalConfig(),
		corsOrigins:    []string{},
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string { return fmt.Sprintf("%s:%d", c.host, c.port) }

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// DBMaxOpenConns returns the configured connection pool ceiling (~10 per spec §6).
func (c AppConfig) DBMaxOpenConns() int { return c.dbMaxOpenConns }

// DBConnTimeout returns the configured connect timeout (~5s per spec §6).
func (c AppConfig) DBConnTimeout() time.Duration { return c.dbConnTimeout }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// Embedding returns the embedding configuration.
func (c AppConfig) Embedding() EmbeddingConfig { return c.embedding }

// LLM returns the LLM configuration.
func (c AppConfig) LLM() LLMConfig { return c.llm }

// Retrieval returns the retrieval configuration.
func (c AppConfig) Retrieval() RetrievalConfig { return c.retrieval }

// FrontendURL returns the configured frontend origin (identity/CORS, §6).
func (c AppConfig) FrontendURL() string { return c.frontendURL }

// CORSOrigins returns the configured CORS allow-list.
func (c AppConfig) CORSOrigins() []string {
	out := make([]string, len(c.corsOrigins))
	copy(out, c.corsOrigins)
	return out
}

// SkipProviderValidation returns whether to skip provider validation at startup.
// This is intended for testing only.
func (c AppConfig) SkipProviderValidation() bool { return c.skipProviderValidation }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error { return os.MkdirAll(c.dataDir, 0o755) }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption { return func(c *AppConfig) { c.host = host } }

// WithPort sets the server port.
func WithPort(port int) AppConfigOption { return func(c *AppConfig) { c.port = port } }

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		if c.dbURL == "" || strings.Contains(c.dbURL, "ragengine.db") {
			c.dbURL = "sqlite:///" + filepath.Join(dir, "ragengine.db")
		}
	}
}

// WithDBURL sets the database connection URL.
func WithDBURL(url string) AppConfigOption { return func(c *AppConfig) { c.dbURL = url } }

// WithDBPool sets the connection pool ceiling and connect timeout.
func WithDBPool(maxOpen int, timeout time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if maxOpen > 0 {
			c.dbMaxOpenConns = maxOpen
		}
		if timeout > 0 {
			c.dbConnTimeout = timeout
		}
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption { return func(c *AppConfig) { c.logLevel = level } }

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithEmbeddingConfig sets the embedding configuration.
func WithEmbeddingConfig(e EmbeddingConfig) AppConfigOption {
	return func(c *AppConfig) { c.embedding = e }
}

// WithLLMConfig sets the LLM configuration.
func WithLLMConfig(l LLMConfig) AppConfigOption { return func(c *AppConfig) { c.llm = l } }

// WithRetrievalConfig sets the retrieval configuration.
func WithRetrievalConfig(r RetrievalConfig) AppConfigOption {
	return func(c *AppConfig) { c.retrieval = r }
}

// WithFrontendURL sets the frontend origin.
func WithFrontendURL(url string) AppConfigOption { return func(c *AppConfig) { c.frontendURL = url } }

// WithCORSOrigins sets the CORS allow-list.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = make([]string, len(origins))
		copy(c.corsOrigins, origins)
	}
}

// WithSkipProviderValidation sets whether to skip provider validation.
// WARNING: for testing only.
func WithSkipProviderValidation(skip bool) AppConfigOption {
	return func(c *AppConfig) { c.skipProviderValidation = skip }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration at startup.
// Sensitive values are masked or shown as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_model", c.embedding.Model),
		slog.Int("embedding_dimensions", c.embedding.Dimensions),
		slog.String("llm_chat_model", c.llm.ChatModel),
		slog.Int("max_context_tokens", c.retrieval.MaxContextTokens),
		slog.Bool("skip_provider_validation", c.skipProviderValidation),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseCommaList splits a comma-separated list, trimming entries and
// dropping empty ones. Shared by CORS and any future comma-list config key.
func ParseCommaList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
