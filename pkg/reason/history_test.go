package reason

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory_Order(t *testing.T) {
	h := NewHistory("be helpful", 0)
	h.AppendAssistant("Hello, this is Maria")
	h.AppendUser("hi")
	h.AppendAssistant("how can I help?")

	msgs := h.Messages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "be helpful", h.System())
}

func TestHistory_UnboundedByDefault(t *testing.T) {
	h := NewHistory("", 0)
	for i := 0; i < 100; i++ {
		h.AppendUser("u")
		h.AppendAssistant("a")
	}
	assert.Equal(t, 200, h.Len())
}

func TestHistory_CapDropsOldestPairs(t *testing.T) {
	h := NewHistory("sys", 2)
	h.AppendUser("u1")
	h.AppendAssistant("a1")
	h.AppendUser("u2")
	h.AppendAssistant("a2")
	h.AppendUser("u3")

	msgs := h.Messages()
	assert.LessOrEqual(t, len(msgs), 4)
	assert.Equal(t, "u3", msgs[len(msgs)-1].Content)
	// The oldest exchange is gone.
	for _, m := range msgs {
		assert.NotEqual(t, "u1", m.Content)
	}
	// System prompt survives pruning.
	assert.Equal(t, "sys", h.System())
}

func TestHistory_SnapshotIsolation(t *testing.T) {
	h := NewHistory("", 0)
	h.AppendUser("one")

	snap := h.Messages()
	h.AppendAssistant("two")

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, h.Len())
}
