// Package ai abstracts the language-model calls the Enrichment Worker
// and the message-detail handlers use: summarization and embedding
// (§C3). gemini and ollama are the two concrete adapters; factory.go
// picks between them the way the teacher's pkg/ai/factory.go does.
package ai

import "context"

// EmbeddingDimensions is the vector size every Provider must return.
// A provider returning a different length is an IntegrityFailure, not
// a silently-accepted embedding.
const EmbeddingDimensions = 768

// ActionItems is the structured result of extracting tasks and an
// urgency estimate from a message, persisted as Message.AiActionItem
// (JSON-encoded) and Message.UrgencyScore.
type ActionItems struct {
	Tasks   []string `json:"tasks"`
	Urgency int      `json:"urgency"` // 0-10
}

// Provider is the language-model contract consumed by the Enrichment
// Worker and message-detail summarization.
type Provider interface {
	// Summarize returns a short natural-language summary of text.
	Summarize(ctx context.Context, text string) (string, error)
	// Embed returns a fixed-length dense vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// ExtractActionItems pulls out actionable tasks and an urgency
	// score (0-10) from text. An empty Tasks slice is a valid result,
	// not a failure.
	ExtractActionItems(ctx context.Context, text string) (ActionItems, error)
}
