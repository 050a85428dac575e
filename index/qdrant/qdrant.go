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

// Package qdrant implements index.Index on a Qdrant collection.
//
// Points are written and searched through langchaingo's Qdrant vector store.
// Collection management and deletion, which the store does not cover, go
// straight to the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	lcqdrant "github.com/tmc/langchaingo/vectorstores/qdrant"
)

// DefaultCollection is used when Config.Collection is empty.
const DefaultCollection = "documents"

// contentKey is the payload field holding the chunk text.
const contentKey = "content"

var (
	// ErrURLRequired is returned when no Qdrant URL is configured.
	ErrURLRequired = errors.New("qdrant url is required")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")
)

// Config locates the collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	// Dimensions of the embedding vectors. Zero means probe the embedder once
	// when the collection has to be created.
	Dimensions int
	Timeout    time.Duration
}

// Index is a Qdrant-backed index.Index.
type Index struct {
	store      lcqdrant.Store
	embedder   ai.Embedder
	baseURL    *url.URL
	apiKey     string
	collection string
	dimensions int
	client     *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	ready bool
}

var (
	_ index.Index   = (*Index)(nil)
	_ index.Deleter = (*Index)(nil)
)

// New creates an index over the configured collection.
// The collection is created on first use if it does not exist.
func New(cfg Config, embedder ai.Embedder) (*Index, error) {
	if cfg.URL == "" {
		return nil, ErrURLRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	baseURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	store, err := lcqdrant.New(
		lcqdrant.WithURL(*baseURL),
		lcqdrant.WithAPIKey(cfg.APIKey),
		lcqdrant.WithCollectionName(collection),
		lcqdrant.WithEmbedder(embedderAdapter{embedder}),
		lcqdrant.WithContentKey(contentKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant store: %w", err)
	}

	return &Index{
		store:      store,
		embedder:   embedder,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		collection: collection,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "qdrant-index", "collection", collection),
	}, nil
}

// Add embeds and upserts texts. Qdrant assigns a fresh point id per text.
func (i *Index) Add(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error) {
	if len(texts) != len(metadatas) {
		return nil, index.ErrMetadataMismatch
	}
	if len(texts) == 0 {
		return []string{}, nil
	}
	if err := i.ensureCollection(ctx); err != nil {
		return nil, err
	}

	docs := make([]schema.Document, len(texts))
	for n, text := range texts {
		metadata := make(map[string]any, len(metadatas[n]))
		for k, v := range metadatas[n] {
			metadata[k] = v
		}
		docs[n] = schema.Document{PageContent: text, Metadata: metadata}
	}

	ids, err := i.store.AddDocuments(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("qdrant upsert: %w", err)
	}
	if len(ids) != len(texts) {
		return nil, fmt.Errorf("qdrant returned %d ids for %d texts", len(ids), len(texts))
	}
	i.logger.Debug("indexed chunks", "count", len(ids))
	return ids, nil
}

// Query searches the collection with filter translated to a Qdrant must clause.
func (i *Index) Query(ctx context.Context, text string, filter index.Filter, k int) ([]core.Passage, error) {
	if k <= 0 {
		return []core.Passage{}, nil
	}
	if err := i.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var opts []vectorstores.Option
	if len(filter) > 0 {
		opts = append(opts, vectorstores.WithFilters(mustClause(filter)))
	}
	docs, err := i.store.SimilaritySearch(ctx, text, k, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	passages := make([]core.Passage, 0, len(docs))
	for _, doc := range docs {
		metadata := make(map[string]string, len(doc.Metadata))
		for key, v := range doc.Metadata {
			metadata[key] = fmt.Sprint(v)
		}
		passages = append(passages, core.Passage{Text: doc.PageContent, Metadata: metadata, Score: doc.Score})
	}
	return passages, nil
}

// Delete removes the points matching filter.
func (i *Index) Delete(ctx context.Context, filter index.Filter) error {
	if len(filter) == 0 {
		return index.ErrEmptyFilter
	}
	if err := i.ensureCollection(ctx); err != nil {
		return err
	}
	endpoint := i.baseURL.JoinPath("collections", i.collection, "points", "delete")
	endpoint.RawQuery = "wait=true"
	status, err := i.do(ctx, http.MethodPost, endpoint, map[string]any{"filter": mustClause(filter)})
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant delete failed: status %d", status)
	}
	return nil
}

// ensureCollection creates the collection with cosine distance unless it exists.
func (i *Index) ensureCollection(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ready {
		return nil
	}

	endpoint := i.baseURL.JoinPath("collections", i.collection)
	status, err := i.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK:
		i.ready = true
		return nil
	case status != http.StatusNotFound:
		return fmt.Errorf("qdrant collection lookup failed: status %d", status)
	}

	dims := i.dimensions
	if dims == 0 {
		probe, err := i.embedder.EmbedText(ctx, "dimension probe")
		if err != nil {
			return fmt.Errorf("probe embedding dimensions: %w", err)
		}
		dims = len(probe)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dims,
			"distance": "Cosine",
		},
	}
	status, err = i.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant create collection failed: status %d", status)
	}
	i.logger.Info("created collection", "dimensions", dims)
	i.ready = true
	return nil
}

func (i *Index) do(ctx context.Context, method string, endpoint *url.URL, body any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if i.apiKey != "" {
		req.Header.Set("api-key", i.apiKey)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, endpoint.Path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// mustClause renders an equality filter as {"must": [{"key": k, "match": {"value": v}}]}.
func mustClause(filter index.Filter) map[string]any {
	conditions := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, map[string]any{
			"key":   k,
			"match": map[string]any{"value": v},
		})
	}
	return map[string]any{"must": conditions}
}

// embedderAdapter exposes an ai.Embedder as a langchaingo embeddings.Embedder.
type embedderAdapter struct {
	ai.Embedder
}

func (a embedderAdapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return a.EmbedTexts(ctx, texts)
}

func (a embedderAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return a.EmbedText(ctx, text)
}
