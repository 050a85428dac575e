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

package chat

import (
	"errors"
	"fmt"

	"github.com/poiesic/docent/core"
)

var (
	// ErrStoreRequired is returned when a conversation store is not provided.
	ErrStoreRequired = errors.New("conversation store required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrConversationNotFound is returned when a conversation id does not exist
	// or belongs to another owner.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when the user's message is blank.
	ErrEmptyMessage = fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyContent)

	// ErrOwnerRequired is returned when a stream names no owner.
	ErrOwnerRequired = fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyOwner)

	// ErrStreamFailed matches every *Error.
	ErrStreamFailed = errors.New("stream failed")
)

// Error reports a stream that ended without a done event.
// The message is generic; Err holds the cause for logging and errors.Is.
type Error struct {
	ConversationId string
	Err            error
}

func (e *Error) Error() string {
	return ErrStreamFailed.Error()
}

func (e *Error) Is(target error) bool {
	return target == ErrStreamFailed
}

func (e *Error) Unwrap() error {
	return e.Err
}
