// Package reason provides the reply collaborator contract: given the
// conversation so far, produce the agent's next line.
package reason

import (
	"context"
	"sync"
)

// Role identifies a history message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation history entry.
type Message struct {
	Role    Role
	Content string
}

// Responder produces the agent's reply to the conversation so far.
// An empty reply is valid; the engine treats it as a skipped turn.
type Responder interface {
	Reply(ctx context.Context, history *History) (string, error)
}

// History is the ordered conversation passed to the responder on every
// turn. It grows monotonically for the life of the call unless a cap is
// set: with MaxTurns > 0, the oldest user/assistant pair is dropped
// once the cap is exceeded. The system prompt is always retained.
type History struct {
	mu       sync.RWMutex
	system   string
	messages []Message
	maxTurns int
}

// NewHistory creates a history with the given system prompt.
// maxTurns 0 means unbounded.
func NewHistory(systemPrompt string, maxTurns int) *History {
	return &History{system: systemPrompt, maxTurns: maxTurns}
}

// System returns the system prompt.
func (h *History) System() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.system
}

// AppendUser appends a caller utterance.
func (h *History) AppendUser(content string) {
	h.append(Message{Role: RoleUser, Content: content})
}

// AppendAssistant appends an agent line.
func (h *History) AppendAssistant(content string) {
	h.append(Message{Role: RoleAssistant, Content: content})
}

func (h *History) append(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)

	if h.maxTurns > 0 {
		for len(h.messages) > h.maxTurns*2 {
			// Drop the oldest exchange; keep role alternation intact by
			// removing two messages when possible.
			drop := 2
			if len(h.messages) < 2 {
				drop = 1
			}
			h.messages = append(h.messages[:0:0], h.messages[drop:]...)
		}
	}
}

// Messages returns a snapshot of the history in order.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages (excluding the system prompt).
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
