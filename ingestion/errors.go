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
	"errors"
	"fmt"

	"github.com/poiesic/docent/core"
)

var (
	// ErrLedgerRequired is returned when a ledger is not provided.
	ErrLedgerRequired = errors.New("ledger required")

	// ErrIndexRequired is returned when an embedding index is not provided.
	ErrIndexRequired = errors.New("embedding index required")

	// ErrEmptyContent is returned for an upload without bytes.
	ErrEmptyContent = fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyContent)

	// ErrOwnerRequired is returned for an upload without an owner.
	ErrOwnerRequired = fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyOwner)

	// ErrIngestionFailed is matched by every *Error.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrArchiveRequired is returned by Retry when no blob store is configured.
	ErrArchiveRequired = errors.New("retry requires an upload archive")

	// ErrNotRetryable is returned by Retry for a file that has not failed.
	ErrNotRetryable = fmt.Errorf("%w: only failed files can be retried", core.ErrInvalidInput)

	// ErrNoChunks indicates extraction produced no text to index.
	ErrNoChunks = errors.New("document produced no chunks")
)

// Error is the caller-visible failure of an ingestion.
// Its message is generic; the cause is kept for logs and errors.Is.
type Error struct {
	FileId string
	Err    error
}

func (e *Error) Error() string {
	return ErrIngestionFailed.Error()
}

// Is reports ErrIngestionFailed as a match.
func (e *Error) Is(target error) bool {
	return target == ErrIngestionFailed
}

// Unwrap returns the internal cause.
func (e *Error) Unwrap() error {
	return e.Err
}
