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

// Package chunk splits text into overlapping fixed-size windows for embedding.
//
// Sizes are measured in characters (runes), never bytes, so a window never
// splits a multi-byte character. Splitting is deterministic: the same text and
// parameters always produce the same windows, which makes a re-ingested file
// land on the same index entries.
package chunk

import (
	"errors"
	"fmt"

	"github.com/poiesic/docent/core"
)

// Default window parameters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// ErrInvalidConfig indicates window parameters that cannot produce progress.
var ErrInvalidConfig = fmt.Errorf("%w: chunker config", core.ErrInvalidInput)

// Chunker splits text into windows of at most Size characters where
// consecutive windows share exactly Overlap characters.
type Chunker struct {
	size    int
	overlap int
}

// New validates the parameters and returns a Chunker.
// size must be positive and 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// MustNew is New for parameters known to be valid. It panics otherwise.
func MustNew(size, overlap int) *Chunker {
	c, err := New(size, overlap)
	if err != nil {
		panic(err)
	}
	return c
}

// Size returns the maximum window length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows of text in order. Empty text yields no windows.
// Only the last window may be shorter than Size.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.size - c.overlap
	windows := make([]string, 0, (n+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+c.size, n)
		windows = append(windows, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return windows
}

// Join reverses Split: it concatenates the first window with the
// non-overlapping tail of every following window.
func (c *Chunker) Join(windows []string) (string, error) {
	var buf []rune
	for i, w := range windows {
		r := []rune(w)
		if i == 0 {
			buf = append(buf, r...)
			continue
		}
		if len(r) <= c.overlap {
			return "", errShortWindow
		}
		buf = append(buf, r[c.overlap:]...)
	}
	return string(buf), nil
}

var errShortWindow = errors.New("window shorter than overlap")
