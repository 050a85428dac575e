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

package extract

import (
	"errors"
	"fmt"

	"github.com/poiesic/docent/core"
)

var (
	// ErrUnsupportedFormat indicates a file whose extension maps to no Format.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file type", core.ErrInvalidInput)

	// ErrInvalidEncoding indicates text content that is not valid UTF-8.
	ErrInvalidEncoding = fmt.Errorf("%w: content is not valid UTF-8", core.ErrInvalidInput)

	// ErrNoText indicates a document that parsed but contained no text.
	ErrNoText = errors.New("document contains no text")

	// ErrMalformedDocument indicates a container format that could not be read.
	ErrMalformedDocument = errors.New("malformed document")
)
