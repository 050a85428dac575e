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

// Package chat answers questions about an owner's documents as a stream of
// events.
//
// A Streamer resolves the conversation before anything is emitted, so an
// unknown or foreign conversation id fails without side effects. It then
// emits the conversation id, records the user's message, forwards generated
// tokens one by one and, once generation ends, records the assistant's
// answer and an audit entry before the terminal done event. WriteSSE renders
// the events in the text/event-stream framing.
package chat
