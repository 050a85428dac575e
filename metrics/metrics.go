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

// Package metrics declares the Prometheus collectors of the system.
// Collectors register with the default registry on package load; Handler
// exposes them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes.
const (
	OutcomeIngested  = "ingested"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Stream outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeNotFound  = "not_found"
)

var (
	// IngestTotal counts ingestion calls by outcome.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docent_ingest_total",
			Help: "Ingestion calls by outcome.",
		},
		[]string{"outcome"},
	)

	// IngestDuration observes the wall time of ingestions that reached the pipeline.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docent_ingest_duration_seconds",
		Help:    "Duration of ingestions that ran the pipeline.",
		Buckets: prometheus.DefBuckets,
	})

	// ChunksIndexed counts chunks written to the embedding index.
	ChunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docent_chunks_indexed_total",
		Help: "Chunks written to the embedding index.",
	})

	// StaleFilesSwept counts processing records marked failed by the sweeper.
	StaleFilesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docent_stale_files_swept_total",
		Help: "Stale processing records marked failed.",
	})

	// StreamTotal counts answer streams by outcome.
	StreamTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docent_stream_total",
			Help: "Answer streams by outcome.",
		},
		[]string{"outcome"},
	)

	// StreamTokens counts tokens forwarded to stream consumers.
	StreamTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docent_stream_tokens_total",
		Help: "Tokens emitted by answer streams.",
	})

	// AuditFailures counts audit entries a sink could not deliver.
	AuditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docent_audit_failures_total",
			Help: "Audit entries that could not be delivered, by sink.",
		},
		[]string{"sink"},
	)

	// EmbeddingCacheLookups counts embedding cache lookups by result.
	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docent_embedding_cache_lookups_total",
			Help: "Embedding cache lookups by result (hit or miss).",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
