// Package provider defines the decision provider and embedder interfaces
// plus an OpenAI-compatible HTTP implementation.
package provider

import "context"

// Message is a single role/content turn sent to the decision provider.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest is a text completion request.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// DecisionProvider produces free text expected to contain one JSON decision
// object. The provider is a black box: callers must treat its output as
// untrusted input.
type DecisionProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// EmbeddingRequest asks for a vector for a single input text.
type EmbeddingRequest struct {
	Input string
	Model string
}

// EmbeddingResponse carries the embedding vector.
type EmbeddingResponse struct {
	Vector []float32
}

// Embedder computes embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}
