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

package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
)

// CreateConversation stores a new conversation for the owner.
func (l *Ledger) CreateConversation(ctx context.Context, ownerId string) (*core.Conversation, error) {
	if ownerId == "" {
		return nil, core.ErrEmptyOwner
	}

	conv := &core.Conversation{
		Id:        core.NewID(),
		OwnerId:   ownerId,
		CreatedAt: time.Now().UTC(),
	}
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeConversationKey(conv.Id), storage.MarshalConversation(conv)); err != nil {
			return err
		}
		if err := tx.Set(makeConvOwnerKey(ownerId, conv.Id), []byte(conv.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation owned by ownerId.
// A conversation owned by someone else is reported as not found.
func (l *Ledger) GetConversation(ctx context.Context, id, ownerId string) (*core.Conversation, error) {
	var conv *core.Conversation
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		conv, err = readConversation(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.OwnerId != ownerId {
		return nil, storage.ErrNotFound
	}
	return conv, nil
}

// ListConversations returns the owner's conversations, oldest first.
func (l *Ledger) ListConversations(ctx context.Context, ownerId string) ([]*core.Conversation, error) {
	var convs []*core.Conversation
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		var ids []string
		if err := scanPrefix(tx, makePartialKey(convOwnerPrefix, ownerId), func(_, val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			conv, err := readConversation(tx, id)
			if err != nil {
				return err
			}
			if conv != nil {
				convs = append(convs, conv)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// AddMessage appends a message to its conversation.
func (l *Ledger) AddMessage(ctx context.Context, msg *core.Message) (*core.Message, error) {
	if err := core.ValidateMessage(msg); err != nil {
		return nil, err
	}

	err := l.backend.WithTx(func(tx *badger.Txn) error {
		conv, err := readConversation(tx, msg.ConversationId)
		if err != nil {
			return err
		}
		if conv == nil {
			return storage.ErrNotFound
		}

		msg.Id = core.NewMessageID()
		msg.CreatedAt = time.Now().UTC()
		if err := tx.Set(makeMessageKey(msg.ConversationId, msg.Id), storage.MarshalMessage(msg)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns a conversation's messages in turn order.
func (l *Ledger) GetMessages(ctx context.Context, conversationId string) ([]*core.Message, error) {
	var msgs []*core.Message
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialKey(messagePrefix, conversationId), func(_, val []byte) error {
			msg, err := storage.UnmarshalMessage(val)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func readConversation(tx *badger.Txn, id string) (*core.Conversation, error) {
	val, err := getValue(tx, makeConversationKey(id))
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalConversation(val)
}
