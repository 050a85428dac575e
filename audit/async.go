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

package audit

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// DefaultWorkers is the pool size of an AsyncSink created with size <= 0.
const DefaultWorkers = 4

// AsyncSink records entries on a worker pool so callers never wait on the
// underlying sink. Close waits for pending entries.
type AsyncSink struct {
	next Sink
	pool *ants.Pool
	wg   sync.WaitGroup
	// mu orders wg.Add in Record before the wg.Wait in Close.
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

var _ Sink = (*AsyncSink)(nil)

// NewAsyncSink wraps next with a pool of workers goroutines.
func NewAsyncSink(next Sink, workers int) (*AsyncSink, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &AsyncSink{
		next:   next,
		pool:   pool,
		logger: slog.Default().With("component", "audit-async"),
	}, nil
}

// Record schedules the entry. The caller's cancellation does not reach it.
// After Close, or if the pool rejects the task, the entry is recorded inline.
func (a *AsyncSink) Record(ctx context.Context, action string, metadata map[string]string, ownerId string) {
	ctx = context.WithoutCancel(ctx)
	metadata = maps.Clone(metadata)
	if !a.schedule(ctx, action, metadata, ownerId) {
		a.next.Record(ctx, action, metadata, ownerId)
	}
}

// schedule submits the entry to the pool and reports whether it was accepted.
func (a *AsyncSink) schedule(ctx context.Context, action string, metadata map[string]string, ownerId string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}

	a.wg.Add(1)
	err := a.pool.Submit(func() {
		defer a.wg.Done()
		a.next.Record(ctx, action, metadata, ownerId)
	})
	if err != nil {
		a.wg.Done()
		a.logger.Warn("audit pool rejected entry, recording inline", "action", action, "err", err)
		return false
	}
	return true
}

// Close waits for scheduled entries and releases the pool.
func (a *AsyncSink) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.wg.Wait()
	a.pool.Release()
	return nil
}
