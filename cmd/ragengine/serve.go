package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/personalrag/ragengine"
	"github.com/personalrag/ragengine/internal/config"
	"github.com/personalrag/ragengine/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragengine client and expose health/push-channel endpoints",
		Long: `Run the ragengine process: the HTTP surface it exposes is limited to
health checks and the progress push-channel upgrade point (request routing
for ingestion/search/answer is left to the embedding application, which
imports this module as a library, not to this binary).

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                   Server host to bind to (default: 0.0.0.0)
  PORT                   Server port to listen on (default: 8080)
  DATA_DIR               Data directory (default: .ragengine)
  DB_URL                 Database URL (default: sqlite:///{data_dir}/ragengine.db)
  LOG_LEVEL              Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT             Log format: pretty, json (default: pretty)
  CORS_ORIGIN            Comma-separated list of allowed CORS origins
  SKIP_PROVIDER_VALIDATION  Skip startup provider health checks (default: false)

  OPENAI_API_KEY         OpenAI API key (embedding + chat, unless ANTHROPIC_API_KEY is also set)
  ANTHROPIC_API_KEY      Anthropic API key (chat only; OPENAI_API_KEY still supplies embeddings)

  EMBEDDING_MODEL, EMBEDDING_DIMENSIONS, EMBEDDING_BATCH_SIZE, EMBEDDING_COST_PER_MILLION_TOKENS
  LLM_CHAT_MODEL, LLM_TEMPERATURE, LLM_TOP_K, LLM_TOP_P, LLM_MAX_OUTPUT_TOKENS
  RETRIEVAL_DEFAULT_TOP_N, RETRIEVAL_DEFAULT_TOP_K, RETRIEVAL_DEFAULT_MIN_SIMILARITY, RETRIEVAL_MAX_CONTEXT_TOKENS`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	opts, err := clientOptions(cfg)
	if err != nil {
		return fmt.Errorf("build client options: %w", err)
	}
	opts = append(opts, ragengine.WithLogger(logger))

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting ragengine", attrs...)

	client, err := ragengine.New(opts...)
	if err != nil {
		return fmt.Errorf("create ragengine client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close ragengine client", slog.Any("error", err))
		}
	}()

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST"},
			AllowCredentials: true,
		}))
	}

	router.Get("/health", healthHandler)
	router.Get("/healthz", healthHandler)
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"ragengine","version":"%s"}`, version)
	})
	router.Handle("/progress", client.PushChannel)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("starting server", slog.String("addr", cfg.Addr()))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
