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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/audit"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/metrics"
	"github.com/poiesic/docent/search"
	"github.com/poiesic/docent/storage"
)

// Retriever finds the passages a question is answered from.
type Retriever interface {
	// Retrieve returns up to k passages owned by ownerId; k <= 0 selects a default.
	Retrieve(ctx context.Context, query, ownerId string, k int) ([]core.Passage, error)
}

var _ Retriever = (*search.Retriever)(nil)

// Streamer answers messages as ordered event streams.
type Streamer struct {
	store        storage.ConversationStore
	retriever    Retriever
	generator    ai.Generator
	audit        audit.Sink
	instructions string
	k            int
	logger       *slog.Logger
}

// Option configures a Streamer.
type Option func(*Streamer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Streamer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithAuditSink sets where completed streams are recorded.
// Default discards entries.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Streamer) error {
		if sink == nil {
			sink = audit.Discard
		}
		s.audit = sink
		return nil
	}
}

// WithInstructions replaces DefaultInstructions.
func WithInstructions(instructions string) Option {
	return func(s *Streamer) error {
		if strings.TrimSpace(instructions) == "" {
			return fmt.Errorf("%w: empty instructions", core.ErrInvalidInput)
		}
		s.instructions = instructions
		return nil
	}
}

// WithRetrievalK sets how many passages are retrieved per message.
// Values <= 0 defer to the retriever's default.
func WithRetrievalK(k int) Option {
	return func(s *Streamer) error {
		s.k = k
		return nil
	}
}

// NewStreamer creates a streamer over the given collaborators.
func NewStreamer(store storage.ConversationStore, retriever Retriever, generator ai.Generator, opts ...Option) (*Streamer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	s := &Streamer{
		store:        store,
		retriever:    retriever,
		generator:    generator,
		audit:        audit.Discard,
		instructions: DefaultInstructions,
		logger:       slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "chat")

	return s, nil
}

// Stream answers message within a conversation owned by ownerId. An empty
// conversationId starts a new conversation.
//
// Validation and not-found errors are returned directly and nothing is
// emitted. Otherwise the event channel yields one conversation event, zero or
// more token events and, on success, one done event before closing. The error
// channel is closed after the event channel; it carries one *Error when the
// stream ended without done.
//
// Cancelling ctx stops delivery of further events. An answer the generator
// still completes is recorded; one it abandons is discarded.
func (s *Streamer) Stream(ctx context.Context, conversationId, message, ownerId string) (<-chan Event, <-chan error, error) {
	if ownerId == "" {
		metrics.StreamTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, nil, ErrOwnerRequired
	}
	if strings.TrimSpace(message) == "" {
		metrics.StreamTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, nil, ErrEmptyMessage
	}

	conv, err := s.resolve(ctx, conversationId, ownerId)
	if errors.Is(err, ErrConversationNotFound) {
		metrics.StreamTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, nil, err
	}
	if err != nil {
		metrics.StreamTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.Error("failed to resolve conversation", "owner", ownerId, "err", err)
		return nil, nil, &Error{ConversationId: conversationId, Err: err}
	}

	events := make(chan Event)
	errc := make(chan error, 1)
	go s.run(ctx, conv, message, events, errc)
	return events, errc, nil
}

// History returns the messages of a conversation owned by ownerId in turn order.
func (s *Streamer) History(ctx context.Context, conversationId, ownerId string) ([]*core.Message, error) {
	conv, err := s.lookup(ctx, conversationId, ownerId)
	if err != nil {
		return nil, err
	}
	return s.store.GetMessages(ctx, conv.Id)
}

func (s *Streamer) resolve(ctx context.Context, conversationId, ownerId string) (*core.Conversation, error) {
	if conversationId != "" {
		return s.lookup(ctx, conversationId, ownerId)
	}
	conv, err := s.store.CreateConversation(ctx, ownerId)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *Streamer) lookup(ctx context.Context, conversationId, ownerId string) (*core.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationId, ownerId)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationId)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

// emitter delivers events until the consumer goes away.
type emitter struct {
	ctx      context.Context
	events   chan<- Event
	detached bool
}

func (e *emitter) send(ev Event) {
	if e.detached {
		return
	}
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
		e.detached = true
	}
}

func (s *Streamer) run(ctx context.Context, conv *core.Conversation, message string, events chan<- Event, errc chan<- error) {
	defer close(errc)
	defer close(events)

	logger := s.logger.With("conversation", conv.Id, "owner", conv.OwnerId)
	out := &emitter{ctx: ctx, events: events}
	out.send(conversationEvent(conv.Id))

	if err := s.answer(ctx, conv, message, out, logger); err != nil {
		metrics.StreamTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		logger.Error("answer stream failed", "err", err)
		errc <- &Error{ConversationId: conv.Id, Err: err}
		return
	}
	metrics.StreamTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	out.send(doneEvent())
}

func (s *Streamer) answer(ctx context.Context, conv *core.Conversation, message string, out *emitter, logger *slog.Logger) error {
	history, err := s.store.GetMessages(ctx, conv.Id)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	passages, err := s.retriever.Retrieve(ctx, message, conv.OwnerId, s.k)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}
	logger.Debug("context assembled", "history", len(history), "passages", len(passages))

	_, err = s.store.AddMessage(ctx, &core.Message{
		ConversationId: conv.Id,
		Role:           core.RoleUser,
		Content:        message,
	})
	if err != nil {
		return fmt.Errorf("record user message: %w", err)
	}

	tokens, genErrs := s.generator.Stream(ctx, buildPrompt(s.instructions, passages, history, message))
	var (
		answer strings.Builder
		count  int
	)
	for token := range tokens {
		answer.WriteString(token)
		count++
		out.send(tokenEvent(token))
	}
	metrics.StreamTokens.Add(float64(count))
	if err := <-genErrs; err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("generation cancelled, discarding partial answer", "tokens", count, "bytes", answer.Len())
		}
		return fmt.Errorf("generate answer: %w", err)
	}
	if out.detached {
		logger.Info("consumer went away, recording completed answer", "tokens", count)
	}

	// The answer is complete; record it even if the caller has gone
	commitCtx := context.WithoutCancel(ctx)
	_, err = s.store.AddMessage(commitCtx, &core.Message{
		ConversationId: conv.Id,
		Role:           core.RoleAssistant,
		Content:        answer.String(),
	})
	if err != nil {
		return fmt.Errorf("record assistant message: %w", err)
	}

	s.audit.Record(commitCtx, audit.ActionChatStreamCompleted, map[string]string{
		audit.MetaConversationID: conv.Id,
		audit.MetaTokens:         strconv.Itoa(count),
	}, conv.OwnerId)
	logger.Info("answer stream completed", "tokens", count)
	return nil
}
