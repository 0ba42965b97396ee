// Package ragengine is a library for ingesting personal data sources,
// embedding and indexing them, and answering natural-language questions
// over them with retrieval-augmented generation.
//
// Basic usage:
//
//	client, err := ragengine.New(
//	    ragengine.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	    ragengine.WithCredentialProvider(myCredentialStore),
//	    ragengine.WithConnector(email.New(myCredentialStore, logger)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	syncID, err := client.Ingestion.StartSync(ctx, userID, document.SourceEmail, synclog.ModeFull, time.Time{})
//	result, err := client.RAG.Answer(ctx, userID, "emails from Ravi about budget last week")
package ragengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/personalrag/ragengine/application/service"
	"github.com/personalrag/ragengine/domain/search"
	"github.com/personalrag/ragengine/infrastructure/cache"
	"github.com/personalrag/ragengine/infrastructure/persistence"
	"github.com/personalrag/ragengine/infrastructure/provider"
	"github.com/personalrag/ragengine/infrastructure/pushchannel"
	"github.com/personalrag/ragengine/internal/database"
	"github.com/personalrag/ragengine/internal/log"
)

// ErrNoEmbeddingProvider is returned by New when no embedding provider
// was configured (WithOpenAI or WithEmbeddingProvider), since every
// pipeline downstream of ingestion depends on one.
var ErrNoEmbeddingProvider = errors.New("ragengine: no embedding provider configured")

// dbConnMaxLifetime bounds how long a pooled connection is reused before
// being recycled, independent of the initial connect timeout.
const dbConnMaxLifetime = 30 * time.Minute

// Client is the library's main entry point. Every pipeline is exposed
// as a public field so callers reach it directly, e.g. client.RAG.Answer.
type Client struct {
	Ingestion *service.Ingestion
	Embedding *service.Embedding
	Search    *service.VectorSearch
	Ranker    *service.Ranker
	Formatter *service.ContextFormatter
	RAG       *service.RAG
	Bus       *service.ProgressBus

	// LLM is the wrapped LLM Provider (spec §4.C). RAG.Answer assembles
	// the prompt but deliberately does not call the model itself, so
	// that cancellation and streaming stay the caller's concern; callers
	// pass RAG.Answer's Prompt to LLM.Generate/Chat/GenerateStream
	// themselves. Nil if no LLM Provider was configured.
	LLM search.LLM

	// PushChannel is an http.Handler upgrading connections to websockets
	// and relaying one user's Progress Bus events (spec §4.L, §6).
	PushChannel *pushchannel.Handler

	db     database.Database
	logger *log.Logger
	closed atomic.Bool
}

// New constructs a Client, opening/migrating its database and wiring
// every pipeline from the supplied Options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.embeddingProvider == nil {
		return nil, ErrNoEmbeddingProvider
	}

	if err := cfg.app.EnsureDataDir(); err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.Configure(cfg.app)
	}
	slogger := logger.Slog()

	ctx := context.Background()

	db, err := database.NewDatabase(ctx, cfg.app.DBURL())
	if err != nil {
		return nil, fmt.Errorf("ragengine: open database: %w", err)
	}
	if err := db.ConfigurePool(cfg.app.DBMaxOpenConns(), cfg.app.DBMaxOpenConns(), dbConnMaxLifetime); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: configure connection pool: %w", err)
	}

	if err := persistence.AutoMigrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: auto migrate: %w", err)
	}

	dimension, err := probeDimension(ctx, db, cfg.embeddingProvider, cfg.app.Embedding().Dimensions)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: probe embedding dimension: %w", err)
	}

	docs, err := persistence.NewDocumentStore(ctx, db, dimension, slogger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: document store: %w", err)
	}

	// ValidateSchema covers documentModel too, so it only runs once
	// NewDocumentStore has created the document_embeddings table above.
	if err := persistence.ValidateSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: validate schema: %w", err)
	}
	syncLogs, err := persistence.NewSyncLogStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: sync log store: %w", err)
	}
	costs, err := persistence.NewEmbeddingCostStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: embedding cost store: %w", err)
	}
	if _, err := persistence.NewConversationStore(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ragengine: conversation store: %w", err)
	}

	embedder := provider.NewEmbeddingAdapter(cfg.embeddingProvider, dimension)

	bus := service.NewProgressBus(slogger)

	budget, err := search.NewTokenBudget(cfg.app.Embedding().BatchSize * 400)
	if err != nil {
		budget = search.DefaultTokenBudget()
	}
	embeddingPipeline := service.NewEmbedding(docs, embedder, costs, budget, bus, slogger,
		cfg.app.Embedding().Model, cfg.app.Embedding().CostPerMillion)

	ingestion := service.NewIngestion(docs, syncLogs, cfg.connectors, embeddingPipeline, bus, slogger)

	embeddingCache := cache.New(cfg.cacheCapacity, cfg.cacheTTL)
	vectorSearch := service.NewVectorSearch(docs, embedder, embeddingCache)
	ranker := service.NewRanker(cfg.app.Retrieval().Weights)
	formatter := service.NewContextFormatter(cfg.app.Retrieval().MaxContextTokens)
	ragPipeline := service.NewRAG(vectorSearch, ranker, formatter, bus, slogger, cfg.app.Retrieval())

	pushChannel := pushchannel.New(bus, slogger, cfg.pushChannelCheckOrigin)

	var llm search.LLM
	if cfg.textProvider != nil {
		llm = provider.NewChatAdapter(cfg.textProvider)
	}

	return &Client{
		Ingestion:   ingestion,
		Embedding:   embeddingPipeline,
		Search:      vectorSearch,
		Ranker:      ranker,
		Formatter:   formatter,
		RAG:         ragPipeline,
		Bus:         bus,
		LLM:         llm,
		PushChannel: pushChannel,
		db:          db,
		logger:      logger,
	}, nil
}

// probeDimension returns the configured embedding width for SQLite
// (which stores vectors as JSON and needs no fixed column width), or
// probes the provider once for PostgreSQL, whose VECTOR(N) column must
// be declared up front (SPEC_FULL §3: "dimension probing at startup").
func probeDimension(ctx context.Context, db database.Database, embedder provider.Embedder, configured int) (int, error) {
	if db.IsSQLite() {
		return configured, nil
	}

	resp, err := embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{"dimension probe"}))
	if err != nil {
		return 0, err
	}
	embeddings := resp.Embeddings()
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("embedding provider returned no vector for the dimension probe")
	}
	return len(embeddings[0]), nil
}

// Close cancels every in-flight sync and closes the database connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.Ingestion.Close()
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("ragengine: close database: %w", err)
	}
	c.logger.Info("ragengine client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger.Slog()
}
