package ragengine

import (
	"net/http"
	"time"

	"github.com/personalrag/ragengine/domain/connector"
	"github.com/personalrag/ragengine/domain/credential"
	"github.com/personalrag/ragengine/infrastructure/provider"
	"github.com/personalrag/ragengine/internal/config"
	"github.com/personalrag/ragengine/internal/log"
)

// Default query-embedding cache sizing (spec §9: "explicit bounded LRU
// with TTL").
const (
	DefaultEmbeddingCacheCapacity = 1000
	DefaultEmbeddingCacheTTL      = 10 * time.Minute
)

// clientConfig accumulates Option values before New builds the Client.
type clientConfig struct {
	app config.AppConfig

	textProvider      provider.TextGenerator
	embeddingProvider provider.Embedder

	credentials credential.Provider
	connectors  connector.Registry

	cacheCapacity int
	cacheTTL      time.Duration

	logger *log.Logger

	pushChannelCheckOrigin func(*http.Request) bool
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		app:           config.NewAppConfig(),
		connectors:    make(connector.Registry),
		cacheCapacity: DefaultEmbeddingCacheCapacity,
		cacheTTL:      DefaultEmbeddingCacheTTL,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithAppConfig replaces the whole AppConfig, e.g. one built from
// config.LoadFromEnv().ToAppConfig().
func WithAppConfig(app config.AppConfig) Option {
	return func(c *clientConfig) { c.app = app }
}

// WithAppConfigOptions applies functional AppConfig options on top of
// whatever AppConfig is already set.
func WithAppConfigOptions(opts ...config.AppConfigOption) Option {
	return func(c *clientConfig) { c.app = c.app.Apply(opts...) }
}

// WithOpenAI configures OpenAI as both the Embedding Provider and LLM
// Provider.
func WithOpenAI(apiKey string) Option {
	return func(c *clientConfig) {
		p := provider.NewOpenAIProvider(apiKey,
			provider.WithChatModel(c.app.LLM().ChatModel),
			provider.WithEmbeddingModel(c.app.Embedding().Model),
		)
		c.textProvider = p
		c.embeddingProvider = p
	}
}

// WithOpenAIConfig configures OpenAI with custom transport/retry settings.
func WithOpenAIConfig(cfg provider.OpenAIConfig) Option {
	return func(c *clientConfig) {
		p := provider.NewOpenAIProviderFromConfig(cfg)
		c.textProvider = p
		c.embeddingProvider = p
	}
}

// WithAnthropic configures Anthropic Claude as the LLM Provider. Anthropic
// does not offer embeddings, so an embedding provider must be configured
// separately (WithOpenAI, or WithEmbeddingProvider for a custom one).
func WithAnthropic(apiKey string) Option {
	return func(c *clientConfig) {
		c.textProvider = provider.NewAnthropicProvider(apiKey,
			provider.WithAnthropicModel(c.app.LLM().ChatModel),
		)
	}
}

// WithAnthropicConfig configures Anthropic with custom transport/retry
// settings.
func WithAnthropicConfig(cfg provider.AnthropicConfig) Option {
	return func(c *clientConfig) { c.textProvider = provider.NewAnthropicProviderFromConfig(cfg) }
}

// WithTextProvider sets a custom LLM Provider implementation.
func WithTextProvider(p provider.TextGenerator) Option {
	return func(c *clientConfig) { c.textProvider = p }
}

// WithEmbeddingProvider sets a custom Embedding Provider implementation.
func WithEmbeddingProvider(p provider.Embedder) Option {
	return func(c *clientConfig) { c.embeddingProvider = p }
}

// WithCredentialProvider sets the collaborator Source Connectors consult
// for a currently valid access token. Required before any connector can
// authenticate.
func WithCredentialProvider(p credential.Provider) Option {
	return func(c *clientConfig) { c.credentials = p }
}

// WithConnector registers a Source Connector, keyed by its own Source().
func WithConnector(conn connector.Connector) Option {
	return func(c *clientConfig) { c.connectors[conn.Source()] = conn }
}

// WithEmbeddingCache overrides the query-embedding cache's bounded
// capacity and per-entry TTL. A non-positive capacity or ttl disables
// caching.
func WithEmbeddingCache(capacity int, ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheCapacity = capacity
		c.cacheTTL = ttl
	}
}

// WithLogger sets a custom logger, overriding the one built from
// AppConfig.
func WithLogger(l *log.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithPushChannelOriginCheck sets the websocket upgrader's origin check
// for the Progress Bus push channel. Defaults to accepting every origin.
func WithPushChannelOriginCheck(check func(*http.Request) bool) Option {
	return func(c *clientConfig) { c.pushChannelCheckOrigin = check }
}
