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

package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docent/audit"
	"github.com/poiesic/docent/blob"
	"github.com/poiesic/docent/chunk"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/extract"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/metrics"
	"github.com/poiesic/docent/storage"
)

// Status is the successful outcome of an ingestion.
type Status string

const (
	// StatusIngested means the file was indexed by this call.
	StatusIngested Status = "ingested"
	// StatusDuplicate means the owner already uploaded identical content.
	StatusDuplicate Status = "duplicate"
)

// Result describes a successful ingestion.
type Result struct {
	Status Status
	FileId string
	Chunks int // chunks indexed by this call, zero for duplicates
}

// Ledger is the part of storage.Ledger the pipeline writes to.
type Ledger interface {
	storage.FileLedger
	storage.ChunkLedger
}

// gateStripes is the number of locks admissions are spread over.
const gateStripes = 64

// Pipeline orchestrates the ingestion of uploaded files.
// It is safe for concurrent use.
type Pipeline struct {
	ledger  Ledger
	index   index.Index
	chunker *chunk.Chunker
	extract extract.Func
	audit   audit.Sink
	archive blob.Store
	pool    *ants.Pool
	gates   [gateStripes]sync.Mutex
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size used by IngestAll.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunker sets the chunker.
// Default is chunk.DefaultSize with chunk.DefaultOverlap.
func WithChunker(c *chunk.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return fmt.Errorf("%w: nil chunker", chunk.ErrInvalidConfig)
		}
		p.chunker = c
		return nil
	}
}

// WithAuditSink sets where ingestion outcomes are recorded.
// Default is audit.Discard.
func WithAuditSink(sink audit.Sink) Option {
	return func(p *Pipeline) error {
		if sink == nil {
			sink = audit.Discard
		}
		p.audit = sink
		return nil
	}
}

// WithArchive keeps the raw bytes of every admitted upload, keyed by file id,
// which enables Retry.
func WithArchive(store blob.Store) Option {
	return func(p *Pipeline) error {
		p.archive = store
		return nil
	}
}

// WithExtractFunc replaces the content extractor.
// Default is extract.Extract.
func WithExtractFunc(fn extract.Func) Option {
	return func(p *Pipeline) error {
		if fn == nil {
			fn = extract.Extract
		}
		p.extract = fn
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(ledger Ledger, idx index.Index, opts ...Option) (*Pipeline, error) {
	if ledger == nil {
		return nil, ErrLedgerRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		ledger:  ledger,
		index:   idx,
		chunker: chunk.MustNew(chunk.DefaultSize, chunk.DefaultOverlap),
		extract: extract.Extract,
		audit:   audit.Discard,
		pool:    pool,
		logger:  slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// admission is the outcome of the ledger gate.
type admission struct {
	record    *core.FileRecord
	duplicate bool
	reused    bool // a failed record was taken over
}

// Ingest indexes one upload for ownerId.
//
// Validation errors (no owner, empty content, unsupported extension) are
// returned before the ledger is touched. Identical content already uploaded by
// the owner yields StatusDuplicate. Any other failure is returned as *Error
// after the file has been marked failed.
func (p *Pipeline) Ingest(ctx context.Context, content []byte, filename, ownerId string) (*Result, error) {
	if ownerId == "" {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, ErrOwnerRequired
	}
	if len(content) == 0 {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%w: %s", ErrEmptyContent, filename)
	}
	format, err := extract.FormatFromFilename(filename)
	if err == nil {
		err = extract.Validate(format, content)
	}
	if err != nil {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	logger := p.logger.With("owner", ownerId, "filename", filename)
	adm, err := p.admit(ctx, ownerId, filename, contentHash(content))
	if err != nil {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		logger.Error("failed to admit upload", "err", err)
		return nil, &Error{Err: err}
	}
	if adm.duplicate {
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		logger.Info("duplicate upload", "file", adm.record.Id, "status", adm.record.Status)
		return &Result{Status: StatusDuplicate, FileId: adm.record.Id}, nil
	}

	record := adm.record
	logger = logger.With("file", record.Id)
	logger.Info("ingesting file", "format", format, "bytes", len(content), "retry", adm.reused)

	start := time.Now()
	p.archiveUpload(ctx, record, content)
	chunks, err := p.process(ctx, record, format, content, adm.reused)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail(ctx, record, err)
		return nil, &Error{FileId: record.Id, Err: err}
	}

	metrics.IngestTotal.WithLabelValues(metrics.OutcomeIngested).Inc()
	metrics.ChunksIndexed.Add(float64(chunks))
	logger.Info("file ingested", "chunks", chunks, "duration", time.Since(start))
	p.audit.Record(ctx, audit.ActionIngestSuccess, map[string]string{
		audit.MetaFileID:   record.Id,
		audit.MetaFilename: filename,
		audit.MetaChunks:   strconv.Itoa(chunks),
	}, ownerId)

	return &Result{Status: StatusIngested, FileId: record.Id, Chunks: chunks}, nil
}

// admit resolves the ledger row for an upload. It either reports a duplicate
// or returns a record in processing state that this call now owns.
func (p *Pipeline) admit(ctx context.Context, ownerId, filename, hash string) (*admission, error) {
	// Serializes admissions of the same content within this process
	gate := p.gate(ownerId, hash)
	gate.Lock()
	defer gate.Unlock()

	existing, err := p.ledger.FindFileByHash(ctx, ownerId, hash)
	switch {
	case err == nil && existing.Status != core.FileStatusFailed:
		return &admission{record: existing, duplicate: true}, nil
	case err == nil:
		existing.Status = core.FileStatusProcessing
		existing.Error = ""
		existing.Filename = filename
		updated, err := p.ledger.UpdateFile(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("reopen failed record: %w", err)
		}
		return &admission{record: updated, reused: true}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("look up content hash: %w", err)
	}

	created, err := p.ledger.CreateFile(ctx, &core.FileRecord{
		OwnerId:     ownerId,
		Filename:    filename,
		ContentHash: hash,
		Status:      core.FileStatusProcessing,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Another writer admitted the same content first
		winner, err := p.ledger.FindFileByHash(ctx, ownerId, hash)
		if err != nil {
			return nil, fmt.Errorf("look up content hash: %w", err)
		}
		return &admission{record: winner, duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	return &admission{record: created}, nil
}

// process runs extraction through the final status update.
func (p *Pipeline) process(ctx context.Context, record *core.FileRecord, format extract.Format, content []byte, reused bool) (int, error) {
	if reused {
		if err := p.discardPrevious(ctx, record); err != nil {
			return 0, err
		}
	}

	segments, err := p.extract(ctx, format, content)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", format, err)
	}

	chunks, err := p.indexSegments(ctx, record, segments)
	if err != nil {
		return 0, err
	}

	record.Status = core.FileStatusProcessed
	record.Error = ""
	if _, err := p.ledger.UpdateFile(ctx, record); err != nil {
		return 0, fmt.Errorf("mark processed: %w", err)
	}
	return chunks, nil
}

// fail marks the record failed and records the cause.
// Runs detached from ctx so a cancelled caller still leaves a retryable row.
func (p *Pipeline) fail(ctx context.Context, record *core.FileRecord, cause error) {
	ctx = context.WithoutCancel(ctx)
	metrics.IngestTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	p.logger.Error("ingestion failed", "file", record.Id, "owner", record.OwnerId, "err", cause)

	record.Status = core.FileStatusFailed
	record.Error = cause.Error()
	if _, err := p.ledger.UpdateFile(ctx, record); err != nil {
		p.logger.Error("failed to mark file failed", "file", record.Id, "err", err)
	}

	p.audit.Record(ctx, audit.ActionIngestFailed, map[string]string{
		audit.MetaFileID:   record.Id,
		audit.MetaFilename: record.Filename,
		audit.MetaError:    cause.Error(),
	}, record.OwnerId)
}

// archiveUpload keeps the raw bytes for Retry. Archive failures only cost
// the ability to retry, so they are logged and ingestion continues.
func (p *Pipeline) archiveUpload(ctx context.Context, record *core.FileRecord, content []byte) {
	if p.archive == nil {
		return
	}
	if err := p.archive.Put(ctx, record.Id, content); err != nil {
		p.logger.Warn("failed to archive upload", "file", record.Id, "err", err)
	}
}

// Retry re-ingests a failed file from the upload archive.
// Returns storage.ErrNotFound for unknown or foreign files.
func (p *Pipeline) Retry(ctx context.Context, fileId, ownerId string) (*Result, error) {
	if p.archive == nil {
		return nil, ErrArchiveRequired
	}
	record, err := p.ledger.GetFile(ctx, fileId)
	if err != nil {
		return nil, err
	}
	if record.OwnerId != ownerId {
		return nil, fmt.Errorf("%w: file %s", storage.ErrNotFound, fileId)
	}
	if record.Status != core.FileStatusFailed {
		return nil, fmt.Errorf("%w: file %s is %s", ErrNotRetryable, fileId, record.Status)
	}
	content, err := p.archive.Get(ctx, record.Id)
	if err != nil {
		return nil, fmt.Errorf("read archived upload: %w", err)
	}
	return p.Ingest(ctx, content, record.Filename, ownerId)
}

// Upload is one file submitted to IngestAll.
type Upload struct {
	Filename string
	Content  []byte
	OwnerId  string
}

// Outcome is the result of one Upload.
type Outcome struct {
	Result *Result
	Err    error
}

// IngestAll ingests uploads concurrently on the worker pool.
// outcomes[i] belongs to uploads[i].
func (p *Pipeline) IngestAll(ctx context.Context, uploads []Upload) []Outcome {
	outcomes := make([]Outcome, len(uploads))
	var wg sync.WaitGroup
	for i, u := range uploads {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			res, err := p.Ingest(ctx, u.Content, u.Filename, u.OwnerId)
			outcomes[i] = Outcome{Result: res, Err: err}
		})
		if err != nil {
			wg.Done()
			outcomes[i] = Outcome{Err: err}
		}
	}
	wg.Wait()
	return outcomes
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) gate(ownerId, hash string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ownerId))
	h.Write([]byte{0})
	h.Write([]byte(hash))
	return &p.gates[h.Sum32()%gateStripes]
}

// contentHash is the hex SHA-256 of the raw upload.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
