package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/personalrag/ragengine/domain/search"
)

// ChatAdapter adapts a TextGenerator (OpenAI or Anthropic's message-based
// ChatCompletion) to the domain's search.LLM contract consumed by the RAG
// Pipeline's caller (spec §4.C).
type ChatAdapter struct {
	provider TextGenerator
}

// NewChatAdapter wraps provider for use as a search.LLM.
func NewChatAdapter(provider TextGenerator) *ChatAdapter {
	return &ChatAdapter{provider: provider}
}

// Generate runs a single-turn completion for prompt.
func (a *ChatAdapter) Generate(ctx context.Context, prompt string) (search.GenerationResult, error) {
	return a.Chat(ctx, []search.ChatMessage{{Role: "user", Content: prompt}})
}

// Chat runs a multi-turn completion for messages.
func (a *ChatAdapter) Chat(ctx context.Context, messages []search.ChatMessage) (search.GenerationResult, error) {
	start := time.Now()

	msgs := make([]Message, len(messages))
	for i, m := range messages {
		msgs[i] = NewMessage(m.Role, m.Content)
	}

	resp, err := a.provider.ChatCompletion(ctx, NewChatCompletionRequest(msgs))
	if err != nil {
		return search.GenerationResult{}, fmt.Errorf("chat: %w", err)
	}

	return search.GenerationResult{
		Text:           resp.Content(),
		PromptTokens:   resp.Usage().PromptTokens(),
		ResponseTokens: resp.Usage().CompletionTokens(),
		Duration:       time.Since(start).Nanoseconds(),
	}, nil
}

// GenerateStream runs Generate and delivers the full response as a single
// chunk. The wrapped TextGenerator contract is blocking-only, so this
// satisfies callers that consume a stream without a true token-by-token feed.
func (a *ChatAdapter) GenerateStream(ctx context.Context, prompt string) (<-chan search.StreamChunk, error) {
	ch := make(chan search.StreamChunk, 1)
	go func() {
		defer close(ch)
		result, err := a.Generate(ctx, prompt)
		if err != nil {
			ch <- search.StreamChunk{Text: fmt.Sprintf("error: %v", err), Done: true}
			return
		}
		ch <- search.StreamChunk{Text: result.Text, Done: true}
	}()
	return ch, nil
}

var _ search.LLM = (*ChatAdapter)(nil)
