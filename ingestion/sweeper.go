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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docent/audit"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/metrics"
	"github.com/poiesic/docent/storage"
)

// DefaultStaleAfter is how long a record may stay in processing before the
// sweeper considers its ingestion crashed.
const DefaultStaleAfter = 30 * time.Minute

// staleReason is the audit reason of a swept record.
const staleReason = "stale"

// Sweeper marks abandoned processing records failed so they can be retried.
// It never re-ingests anything itself.
type Sweeper struct {
	ledger     storage.FileLedger
	audit      audit.Sink
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewSweeper creates a sweeper. staleAfter <= 0 selects DefaultStaleAfter and
// a nil sink discards audit entries.
func NewSweeper(ledger storage.FileLedger, sink audit.Sink, staleAfter time.Duration) (*Sweeper, error) {
	if ledger == nil {
		return nil, ErrLedgerRequired
	}
	if sink == nil {
		sink = audit.Discard
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Sweeper{
		ledger:     ledger,
		audit:      sink,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     slog.Default().With("component", "ingest-sweeper"),
	}, nil
}

// Name identifies the sweeper as a scheduled job.
func (s *Sweeper) Name() string {
	return "stale-ingest-sweeper"
}

// Run sweeps once.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep marks every processing record not updated within the stale window as
// failed and returns how many were marked.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	records, err := s.ledger.ListFilesByStatus(ctx, core.FileStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing files: %w", err)
	}

	cutoff := s.now().Add(-s.staleAfter)
	swept := 0
	var errs []error
	for _, record := range records {
		if !record.UpdatedAt.Before(cutoff) {
			continue
		}
		reason := fmt.Sprintf("ingestion did not finish within %s", s.staleAfter)
		// Only a record still in processing is swept; one that finished or
		// failed since the listing keeps its status.
		marked, err := s.ledger.TransitionFile(ctx, record.Id, core.FileStatusProcessing, core.FileStatusFailed, reason)
		if errors.Is(err, storage.ErrStatusConflict) || errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("stale candidate moved on", "file", record.Id, "err", err)
			continue
		}
		if err != nil {
			s.logger.Error("failed to mark stale file failed", "file", record.Id, "err", err)
			errs = append(errs, err)
			continue
		}
		swept++
		s.logger.Warn("marked stale ingestion failed", "file", marked.Id, "owner", marked.OwnerId, "since", record.UpdatedAt)
		s.audit.Record(ctx, audit.ActionIngestFailed, map[string]string{
			audit.MetaFileID:   marked.Id,
			audit.MetaFilename: marked.Filename,
			audit.MetaReason:   staleReason,
			audit.MetaError:    reason,
		}, marked.OwnerId)
	}
	metrics.StaleFilesSwept.Add(float64(swept))
	return swept, errors.Join(errs...)
}
