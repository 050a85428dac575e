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

package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
)

// DefaultK is the number of passages returned when the caller asks for k <= 0.
const DefaultK = 4

// Retriever runs owner-scoped similarity queries against an index.
type Retriever struct {
	index    index.Index
	k        int
	minScore float32
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithDefaultK sets the result count used when a call passes k <= 0.
// Values <= 0 keep DefaultK.
func WithDefaultK(k int) Option {
	return func(r *Retriever) error {
		if k > 0 {
			r.k = k
		}
		return nil
	}
}

// WithMinScore drops passages scoring below threshold.
// Thresholds <= 0 keep every passage the index returns.
func WithMinScore(threshold float32) Option {
	return func(r *Retriever) error {
		r.minScore = threshold
		return nil
	}
}

// NewRetriever creates a retriever over idx.
func NewRetriever(idx index.Index, opts ...Option) (*Retriever, error) {
	if idx == nil {
		return nil, ErrIndexRequired
	}

	r := &Retriever{
		index:  idx,
		k:      DefaultK,
		logger: slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Retrieve returns up to k passages owned by ownerId, most similar first.
// k <= 0 selects the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query, ownerId string, k int) ([]core.Passage, error) {
	return r.RetrieveWithMonitor(ctx, query, ownerId, k, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query, ownerId string, k int, monitor RetrievalMonitor) ([]core.Passage, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if ownerId == "" {
		return nil, ErrOwnerRequired
	}
	if k <= 0 {
		k = r.k
	}

	monitor.Start(query, ownerId, k)
	if strings.TrimSpace(query) == "" {
		monitor.Finish(nil)
		return []core.Passage{}, nil
	}

	passages, err := r.index.Query(ctx, query, index.Filter{core.MetaOwnerID: ownerId}, k)
	if err != nil {
		r.logger.Error("error querying index", "owner", ownerId, "err", err)
		return nil, err
	}
	monitor.AfterIndexQuery(passages)

	results := make([]core.Passage, 0, len(passages))
	for _, p := range passages {
		// The index filters by owner; a foreign passage here means a broken index.
		if p.Metadata[core.MetaOwnerID] != ownerId {
			r.logger.Warn("index returned a passage of another owner", "owner", ownerId)
			monitor.Dropped(p)
			continue
		}
		if r.minScore > 0 && p.Score < r.minScore {
			monitor.Dropped(p)
			continue
		}
		results = append(results, p)
		if len(results) == k {
			break
		}
	}

	r.logger.Debug("retrieved passages", "owner", ownerId, "requested", k, "returned", len(results))
	monitor.Finish(results)
	return results, nil
}
