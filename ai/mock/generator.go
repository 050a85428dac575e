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

package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/docent/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// StreamFunc is called by Stream if set.
	// If nil, Tokens are emitted followed by Err.
	StreamFunc func(ctx context.Context, messages []ai.ChatMessage) (<-chan string, <-chan error)

	// Tokens are emitted in order by the default behavior.
	// If empty, the last message content is echoed word by word.
	Tokens []string

	// Err is reported after Tokens by the default behavior.
	Err error

	mu        sync.Mutex
	callCount int
	prompts   [][]ai.ChatMessage
}

// NewMockGenerator creates a mock generator that emits the given tokens.
func NewMockGenerator(tokens ...string) *MockGenerator {
	return &MockGenerator{Tokens: tokens}
}

// Stream records the prompt and replays the configured tokens.
func (m *MockGenerator) Stream(ctx context.Context, messages []ai.ChatMessage) (<-chan string, <-chan error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, append([]ai.ChatMessage(nil), messages...))
	fn, tokens, genErr := m.StreamFunc, m.Tokens, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	if len(tokens) == 0 && len(messages) > 0 {
		tokens = echoTokens(messages[len(messages)-1].Content)
	}

	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(out)
		for _, tok := range tokens {
			select {
			case out <- tok:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if genErr != nil {
			errs <- genErr
		}
	}()
	return out, errs
}

// CallCount returns the number of times Stream was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the messages of the most recent Stream call.
func (m *MockGenerator) LastPrompt() []ai.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return nil
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.prompts = nil
	m.StreamFunc = nil
	m.Tokens = nil
	m.Err = nil
}

// echoTokens splits text into words, keeping the separating spaces on the
// following token so concatenation restores the text.
func echoTokens(text string) []string {
	words := strings.Fields(text)
	for i := 1; i < len(words); i++ {
		words[i] = " " + words[i]
	}
	return words
}
