package main

import (
	"fmt"
	"os"

	"github.com/personalrag/ragengine"
	"github.com/personalrag/ragengine/internal/config"
)

// clientOptions returns the ragengine.Option slice derived from AppConfig
// plus whichever provider API keys are present in the environment. API keys
// are deliberately not part of AppConfig (they never round-trip through
// LogAttrs or .env dumps); callers source them directly and pass them as
// Options, matching ragengine.WithOpenAI/WithAnthropic's own signatures.
func clientOptions(cfg config.AppConfig) ([]ragengine.Option, error) {
	opts := []ragengine.Option{
		ragengine.WithAppConfig(cfg),
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")

	switch {
	case openaiKey != "" && anthropicKey != "":
		opts = append(opts, ragengine.WithOpenAI(openaiKey))
		opts = append(opts, ragengine.WithAnthropic(anthropicKey))
	case openaiKey != "":
		opts = append(opts, ragengine.WithOpenAI(openaiKey))
	case anthropicKey != "":
		return nil, fmt.Errorf("ANTHROPIC_API_KEY set without OPENAI_API_KEY: Anthropic has no embedding endpoint, an embedding provider is still required")
	default:
		return nil, fmt.Errorf("no provider configured: set OPENAI_API_KEY (embeddings + optional chat) and/or ANTHROPIC_API_KEY (chat only)")
	}

	return opts, nil
}
