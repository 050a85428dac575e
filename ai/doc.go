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

// Package ai provides abstractions for AI services used in docent.
//
// This package defines interfaces for the two model operations the system
// needs: turning text into vectors and generating an answer token by token.
// Ingestion, retrieval and chat depend on these abstractions rather than
// on a concrete vendor SDK.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Streams answer tokens for a prompt
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo (OpenAI, Ollama, vLLM, ...)
//   - ai/gemini: Google Gemini through the genai SDK
//   - ai/cache: LRU cache decorator for any Embedder
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types to enforce abstraction and prevent accidental coupling to
// concrete implementations.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Test utility constructors (mock.NewMockEmbedder, mock.NewMockGenerator)
// return CONCRETE types to enable test assertions and behavior injection.
//
// # Streaming
//
// Generator.Stream follows the two-channel convention: a token channel that is
// closed at the end of generation and a buffered error channel that carries at
// most one error.
//
//	tokens, errc := provider.Generator().Stream(ctx, messages)
//	for tok := range tokens {
//	    fmt.Print(tok)
//	}
//	if err := <-errc; err != nil {
//	    return err
//	}
package ai
