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

// Package gemini implements ai.AIProvider on top of the Google Gen AI SDK.
//
// Embeddings use retrieval task types: EmbedTexts embeds documents and
// EmbedText embeds queries, so a single provider serves both ingestion and
// retrieval.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/poiesic/docent/ai"
	"google.golang.org/genai"
)

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// ErrNoEmbedding is returned when the service answers without vectors.
var ErrNoEmbedding = errors.New("gemini: no embedding values returned")

type embedFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)

type streamFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// Provider implements ai.AIProvider with Gemini models.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates a Gemini provider. The config must name the gemini provider and carry an API key.
//
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Provider{
		embedder:  newEmbedder(client.Models.EmbedContent, config.EmbeddingModel),
		generator: newGenerator(client.Models.GenerateContentStream, config.GenerationModel, config.Temperature),
		logger:    slog.Default().With("component", "gemini-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the answer generation service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	return nil
}

// Embedder implements ai.Embedder with Gemini embedding models.
type Embedder struct {
	embed  embedFunc
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(embed embedFunc, model string) *Embedder {
	return &Embedder{
		embed:  embed,
		model:  model,
		logger: slog.Default().With("component", "gemini-embedder"),
	}
}

// EmbedText embeds a single query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedAll(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds documents in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embedAll(ctx, texts, taskRetrievalDocument)
}

func (e *Embedder) embedAll(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts), "task", taskType)

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := e.embed(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: taskType})
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, ErrNoEmbedding
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, ErrNoEmbedding
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Generator implements ai.Generator with Gemini chat models.
type Generator struct {
	stream      streamFunc
	model       string
	temperature float32
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

func newGenerator(stream streamFunc, model string, temperature float64) *Generator {
	return &Generator{
		stream:      stream,
		model:       model,
		temperature: float32(temperature),
		logger:      slog.Default().With("component", "gemini-generator"),
	}
}

// Stream relays the text of each streamed response as a token.
func (g *Generator) Stream(ctx context.Context, messages []ai.ChatMessage) (<-chan string, <-chan error) {
	tokens := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(tokens)

		system, contents := toContents(messages)
		config := &genai.GenerateContentConfig{
			SystemInstruction: system,
			Temperature:       genai.Ptr(g.temperature),
		}

		for resp, err := range g.stream(ctx, g.model, contents, config) {
			if err != nil {
				g.logger.Error("generation failed", "err", err)
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				errs <- err
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case tokens <- text:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return tokens, errs
}

// toContents splits system messages into the system instruction and maps the
// rest onto user and model turns.
func toContents(messages []ai.ChatMessage) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ai.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(m.Content))
		case ai.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, contents
}
