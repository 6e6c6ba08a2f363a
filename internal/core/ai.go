package core

import (
	"context"

	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// LLMProvider is the model-call boundary. Each call may fail transiently;
// callers own any retry policy.
type LLMProvider interface {
	// Classify returns whether the latest query is relevant to the
	// assistant's domain, given the system prompt and conversation history.
	Classify(ctx context.Context, systemPrompt string, history []models.ChatMessage) (bool, error)

	// Generate produces a text answer from a system prompt and history.
	Generate(ctx context.Context, systemPrompt string, history []models.ChatMessage) (string, error)

	// GenerateMultimodal produces an answer from an ordered sequence of
	// text and image content blocks plus the conversation history.
	GenerateMultimodal(ctx context.Context, blocks []models.ContentBlock, history []models.ChatMessage) (string, error)
}
