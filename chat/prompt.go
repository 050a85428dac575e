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
	"strings"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
)

// DefaultInstructions is the system prompt used unless WithInstructions overrides it.
const DefaultInstructions = `You are a precise, reliable assistant that answers questions using retrieved documents and prior conversation context.
Rules you must follow:
- Use the provided CONTEXT as your primary source of truth.
- Use the CONVERSATION HISTORY to maintain continuity, avoid repetition and resolve references.
- If the answer is not explicitly supported by the context, say you don't know.
- Do not invent facts, sources or details.
- Do not reference internal tools, embeddings, vector databases or retrieval mechanics.
- Do not mention that you are using documents unless explicitly asked.
- Be concise and clear.
- If a question is ambiguous, ask a brief clarifying question before answering.
Answer the user's question based only on the information available to you.`

// renderTranscript flattens a conversation into "User: ..." and
// "Assistant: ..." lines in turn order.
func renderTranscript(messages []*core.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleUser:
			lines = append(lines, "User: "+msg.Content)
		case core.RoleAssistant:
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// renderContext joins passage texts with blank lines.
func renderContext(passages []core.Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// buildPrompt assembles the generator input: instructions, retrieved
// context, transcript, then the new message.
func buildPrompt(instructions string, passages []core.Passage, history []*core.Message, message string) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: instructions},
		{Role: ai.RoleSystem, Content: "Context:\n" + renderContext(passages)},
		{Role: ai.RoleSystem, Content: "Conversation history:\n" + renderTranscript(history)},
		{Role: ai.RoleHuman, Content: message},
	}
}
