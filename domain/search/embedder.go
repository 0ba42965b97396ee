package search

import "context"

// EmbeddingResult is one embedding call's output: the vector plus an
// estimated token count used for cost accounting (spec §4.B).
type EmbeddingResult struct {
	Vector []float64
	Tokens int
}

// Embedder converts text into embedding vectors. Implementations own
// rate-limit retry and inter-call pacing; callers see a synchronous,
// context-cancellable call.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) ([]EmbeddingResult, error)
	HealthCheck(ctx context.Context) error

	// Dimensions returns the configured embedding width.
	Dimensions() int
}

// ChatMessage is one role/content pair in an LLM conversation, mirrored
// by the LLM Provider's chat operation (spec §4.C).
type ChatMessage struct {
	Role    string
	Content string
}

// GenerationResult carries an LLM Provider's blocking response.
type GenerationResult struct {
	Text           string
	PromptTokens   int
	ResponseTokens int
	Duration       int64 // nanoseconds
}

// StreamChunk is one piece of a streamed LLM response.
type StreamChunk struct {
	Text string
	Done bool
}

// LLM wraps an external generative model. All operations are one-shot;
// a caller that cancels ctx aborts any in-flight request.
type LLM interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error)
	Chat(ctx context.Context, messages []ChatMessage) (GenerationResult, error)
}

// EmbeddingCache is a bounded, TTL-expiring cache from a normalized query
// string to its embedding vector (spec §4.H, §9). Implementations must be
// safe for concurrent use.
type EmbeddingCache interface {
	Get(key string) ([]float64, bool)
	Set(key string, vector []float64)
}
