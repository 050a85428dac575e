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

// Package audit records lifecycle events of ingestion and chat.
//
// A Sink is fire-and-forget: Record never returns an error and never blocks
// the caller on a failing backend. Failures are logged and counted instead.
package audit

import (
	"context"
	"log/slog"
	"maps"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/metrics"
	"github.com/poiesic/docent/storage"
)

// Actions recorded by the system.
const (
	ActionIngestSuccess       = "INGEST_SUCCESS"
	ActionIngestFailed        = "INGEST_FAILED"
	ActionChatStreamCompleted = "CHAT_STREAM_COMPLETED"
)

// Metadata keys used by audit entries.
const (
	MetaFileID         = core.MetaFileID
	MetaFilename       = "filename"
	MetaChunks         = "chunks"
	MetaError          = "error"
	MetaReason         = "reason"
	MetaConversationID = "conversation_id"
	MetaTokens         = "tokens"
)

// Sink appends audit entries.
// Implementations must be thread-safe for concurrent use.
type Sink interface {
	// Record appends one entry. Delivery failures are handled by the sink.
	Record(ctx context.Context, action string, metadata map[string]string, ownerId string)
}

// Discard is a Sink that drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, string, map[string]string, string) {}

// StoreSink appends entries to an audit log.
type StoreSink struct {
	log    storage.AuditLog
	logger *slog.Logger
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink creates a sink writing to log.
func NewStoreSink(log storage.AuditLog) *StoreSink {
	return &StoreSink{
		log:    log,
		logger: slog.Default().With("component", "audit-store"),
	}
}

// Record appends the entry, logging any storage error.
func (s *StoreSink) Record(ctx context.Context, action string, metadata map[string]string, ownerId string) {
	entry := &core.AuditEntry{
		Action:   action,
		Metadata: maps.Clone(metadata),
		OwnerId:  ownerId,
	}
	if _, err := s.log.AppendAudit(ctx, entry); err != nil {
		metrics.AuditFailures.WithLabelValues("store").Inc()
		s.logger.Error("failed to append audit entry", "action", action, "owner", ownerId, "err", err)
	}
}

// MultiSink records every entry on each of its sinks in order.
type MultiSink []Sink

var _ Sink = MultiSink(nil)

// Record forwards the entry to every sink.
func (m MultiSink) Record(ctx context.Context, action string, metadata map[string]string, ownerId string) {
	for _, s := range m {
		s.Record(ctx, action, metadata, ownerId)
	}
}
