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

package core

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidInput is the root of every validation failure.
	// Callers can test for it with errors.Is regardless of the specific cause.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFileRecord indicates a FileRecord failed validation.
	ErrInvalidFileRecord = fmt.Errorf("%w: file record", ErrInvalidInput)

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = fmt.Errorf("%w: message", ErrInvalidInput)

	// ErrEmptyOwner indicates the owner id is empty.
	ErrEmptyOwner = errors.New("owner cannot be empty")

	// ErrEmptyContent indicates the content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidStatus indicates an unknown FileStatus value.
	ErrInvalidStatus = errors.New("invalid file status")

	// ErrInvalidRole indicates an unknown Role value.
	ErrInvalidRole = errors.New("invalid role")
)
