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

// Package docent wires the configured stores, index, AI provider and audit
// sinks into a System, which builds the ingestion pipeline, the retriever and
// the answer streamer over them.
package docent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/ai/cache"
	"github.com/poiesic/docent/ai/gemini"
	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/ai/openai"
	"github.com/poiesic/docent/audit"
	"github.com/poiesic/docent/blob"
	"github.com/poiesic/docent/chat"
	"github.com/poiesic/docent/chunk"
	"github.com/poiesic/docent/config"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/index/qdrant"
	"github.com/poiesic/docent/ingestion"
	"github.com/poiesic/docent/reembed"
	"github.com/poiesic/docent/search"
	"github.com/poiesic/docent/storage"
	"github.com/poiesic/docent/storage/badger"
	"github.com/poiesic/docent/storage/sqlite"
)

// ErrReembedUnsupported is returned by NewReembedder when the index is not the embedded one.
var ErrReembedUnsupported = errors.New("reembedding requires the badger index")

// System holds the long-lived resources of a docent installation.
type System struct {
	config   *config.Config
	backend  *badger.Backend
	ledger   storage.Ledger
	vectors  *badger.VectorIndex
	index    index.Index
	provider ai.AIProvider
	embedder ai.Embedder
	audit    audit.Sink
	archive  blob.Store
	closers  []func() error
	base     *slog.Logger // handed to components
	logger   *slog.Logger
}

// Option customizes Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the configuration.
// The System takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open builds a System from cfg. Resources opened before a failure are closed.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	s := &System{config: cfg, base: o.logger, logger: o.logger.With("component", "docent")}
	if err := s.open(ctx, o); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Error("error releasing partially opened system", "err", closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *System) open(ctx context.Context, o *options) error {
	cfg := s.config

	// AI provider
	provider := o.provider
	if provider == nil {
		var err error
		if provider, err = newProvider(ctx, cfg); err != nil {
			return fmt.Errorf("create ai provider: %w", err)
		}
	}
	s.provider = provider
	s.closers = append(s.closers, provider.Close)
	s.embedder = cache.Wrap(provider.Embedder(), cfg.AI.Cache.Size, cfg.AI.Cache.TTL)

	// Ledger
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		ledger, err := sqlite.Open(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		s.ledger = ledger
		s.closers = append(s.closers, ledger.Close)
	default:
		backend, err := badger.OpenBackend(cfg.Storage.Path, false)
		if err != nil {
			return fmt.Errorf("open badger: %w", err)
		}
		s.backend = backend
		s.closers = append(s.closers, backend.Close)
		ledger, err := badger.NewLedger(backend)
		if err != nil {
			return err
		}
		s.ledger = ledger
	}

	// Embedding index
	switch cfg.Index.Driver {
	case config.DriverQdrant:
		q := cfg.Index.Qdrant
		idx, err := qdrant.New(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Dimensions: q.Dimensions,
			Timeout:    q.Timeout,
		}, s.embedder)
		if err != nil {
			return fmt.Errorf("create qdrant index: %w", err)
		}
		s.index = idx
	default:
		vectors, err := badger.NewVectorIndex(s.backend, s.embedder)
		if err != nil {
			return err
		}
		s.vectors = vectors
		s.index = vectors
	}

	// Raw upload archive
	archive, err := blob.New(ctx, cfg.BlobConfig())
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	s.archive = archive

	return s.openAudit()
}

// openAudit assembles the sink chain: ledger, optional AMQP fan-out, optional async pool.
func (s *System) openAudit() error {
	cfg := s.config.Audit
	var sink audit.Sink = audit.NewStoreSink(s.ledger)
	if cfg.AMQPURL != "" {
		publisher, err := audit.DialAMQP(cfg.AMQPURL, cfg.Queue)
		if err != nil {
			return fmt.Errorf("connect audit broker: %w", err)
		}
		s.closers = append(s.closers, publisher.Close)
		sink = audit.MultiSink{sink, publisher}
	}
	if cfg.Async {
		async, err := audit.NewAsyncSink(sink, cfg.Workers)
		if err != nil {
			return err
		}
		// Drained before the broker and the ledger close
		s.closers = append(s.closers, async.Close)
		sink = async
	}
	s.audit = sink
	return nil
}

func newProvider(ctx context.Context, cfg *config.Config) (ai.AIProvider, error) {
	switch cfg.AI.Provider {
	case config.ProviderMock:
		return mock.NewMockProvider(), nil
	case ai.ProviderGemini:
		return gemini.NewProvider(ctx, cfg.AIConfig())
	default:
		return openai.NewProvider(cfg.AIConfig())
	}
}

// Close releases every resource in reverse order of opening.
func (s *System) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("error closing resource", "err", err)
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Config returns the configuration the System was opened with.
func (s *System) Config() *config.Config {
	return s.config
}

// Ledger returns the relational stores.
func (s *System) Ledger() storage.Ledger {
	return s.ledger
}

// Index returns the embedding index.
func (s *System) Index() index.Index {
	return s.index
}

// Provider returns the AI provider.
func (s *System) Provider() ai.AIProvider {
	return s.provider
}

// AuditSink returns the configured sink chain.
func (s *System) AuditSink() audit.Sink {
	return s.audit
}

// Archive returns the raw upload store, or nil when none is configured.
func (s *System) Archive() blob.Store {
	return s.archive
}

// NewPipeline creates an ingestion pipeline. opts are applied after the configured ones.
func (s *System) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	chunker, err := chunk.New(s.config.Ingest.ChunkSize, s.config.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	base := []ingestion.Option{
		ingestion.WithLogger(s.base),
		ingestion.WithChunker(chunker),
		ingestion.WithAuditSink(s.audit),
		ingestion.WithArchive(s.archive),
	}
	if s.config.Ingest.Workers > 0 {
		base = append(base, ingestion.WithPoolSize(s.config.Ingest.Workers))
	}
	return ingestion.NewPipeline(s.ledger, s.index, append(base, opts...)...)
}

// NewRetriever creates an owner-scoped retriever over the index.
func (s *System) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	base := []search.Option{
		search.WithLogger(s.base),
		search.WithDefaultK(s.config.Chat.K),
		search.WithMinScore(s.config.Chat.MinScore),
	}
	return search.NewRetriever(s.index, append(base, opts...)...)
}

// NewStreamer creates an answer streamer using the provider's generator.
func (s *System) NewStreamer(opts ...chat.Option) (*chat.Streamer, error) {
	retriever, err := s.NewRetriever()
	if err != nil {
		return nil, err
	}
	base := []chat.Option{
		chat.WithLogger(s.base),
		chat.WithAuditSink(s.audit),
		chat.WithRetrievalK(s.config.Chat.K),
	}
	if s.config.Chat.Instructions != "" {
		base = append(base, chat.WithInstructions(s.config.Chat.Instructions))
	}
	return chat.NewStreamer(s.ledger, retriever, s.provider.Generator(), append(base, opts...)...)
}

// NewSweeper creates the stale ingestion sweeper job.
func (s *System) NewSweeper() (*ingestion.Sweeper, error) {
	return ingestion.NewSweeper(s.ledger, s.audit, s.config.Worker.StaleAfter)
}

// NewReembedder re-embeds the embedded index with the provider's embedder,
// bypassing the cache so every vector is recomputed.
func (s *System) NewReembedder(rc *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if s.vectors == nil {
		return nil, ErrReembedUnsupported
	}
	return reembed.NewReembedder(s.vectors, s.provider.Embedder(), rc, progress)
}
