// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// MessageRole identifies the author of a ChatMessage sent to a Generator.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleHuman     MessageRole = "human"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one entry of the prompt handed to a Generator.
type ChatMessage struct {
	Role    MessageRole
	Content string
}

// Generator produces an answer token by token.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Stream starts generation and returns immediately.
	// Tokens are delivered in order on the first channel, which is closed when
	// generation ends. The error channel is buffered, receives at most one
	// error and is closed after the token channel.
	// Cancelling ctx stops generation and reports ctx.Err().
	Stream(ctx context.Context, messages []ChatMessage) (<-chan string, <-chan error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and Generator instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
