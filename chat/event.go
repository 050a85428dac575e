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

// EventType names an event of an answer stream.
type EventType string

const (
	// EventConversation carries the conversation id. Always first.
	EventConversation EventType = "conversation"
	// EventToken carries one raw text increment of the answer.
	EventToken EventType = "token"
	// EventDone carries DoneSentinel. Always last on success.
	EventDone EventType = "done"
)

// DoneSentinel is the payload of the done event.
const DoneSentinel = "[DONE]"

// Event is one element of an answer stream.
type Event struct {
	Type EventType
	Data string
}

func conversationEvent(id string) Event { return Event{Type: EventConversation, Data: id} }
func tokenEvent(token string) Event     { return Event{Type: EventToken, Data: token} }
func doneEvent() Event                  { return Event{Type: EventDone, Data: DoneSentinel} }
