package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/pkg/agent/llm"
)

func roles(msgs []llm.CompletionMessage) []llm.CompletionRole {
	out := make([]llm.CompletionRole, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Role
	}
	return out
}

func TestMemoryRoleRules(t *testing.T) {
	m := NewMemory("sys", true)

	require.ErrorIs(t, m.Update(llm.RoleSystem, "again"), ErrRoleOrder)
	require.ErrorIs(t, m.Update(llm.RoleAssistant, "too early"), ErrRoleOrder)
	require.NoError(t, m.Update(llm.RoleUser, "q1"))
	require.ErrorIs(t, m.Update(llm.RoleUser, "q2"), ErrRoleOrder)
	require.NoError(t, m.Update(llm.RoleAssistant, "a1"))
	require.ErrorIs(t, m.Update(llm.RoleAssistant, "a2"), ErrRoleOrder)
	require.ErrorIs(t, m.Update("narrator", "x"), ErrRoleOrder)

	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant}, roles(m.History()))
}

func TestMemoryKeepsConversation(t *testing.T) {
	m := NewMemory("sys", true)

	msgs, err := m.Prepare("round 1", 1)
	require.NoError(t, err)
	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser}, roles(msgs))
	require.NoError(t, m.Commit("a1"))

	msgs, err = m.Prepare("round 2", 1)
	require.NoError(t, err)
	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}, roles(msgs))
	assert.Equal(t, "round 2", msgs[3].Content)
}

func TestMemoryRetryDropsBadReply(t *testing.T) {
	m := NewMemory("sys", true)

	_, err := m.Prepare("q", 1)
	require.NoError(t, err)
	require.NoError(t, m.Commit("garbage"))

	msgs, err := m.Prepare("q", 2)
	require.NoError(t, err)
	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser}, roles(msgs), "prompt is not re-appended")
	assert.Equal(t, "q", msgs[1].Content)

	require.NoError(t, m.Commit("42"))
	history := m.History()
	assert.Len(t, history, 4, "history keeps the failed reply")
	assert.Equal(t, "garbage", history[2].Content)
	assert.Equal(t, "42", history[3].Content)
}

func TestMemoryRetryAfterProviderError(t *testing.T) {
	m := NewMemory("sys", true)

	_, err := m.Prepare("q", 1)
	require.NoError(t, err)
	// Provider failed: no reply was committed.
	msgs, err := m.Prepare("q", 2)
	require.NoError(t, err)
	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser}, roles(msgs))
	assert.Len(t, m.History(), 2)
}

func TestMemoryAbandonedPromptIsSuperseded(t *testing.T) {
	m := NewMemory("sys", true)

	_, err := m.Prepare("stale", 1)
	require.NoError(t, err)

	msgs, err := m.Prepare("fresh", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "fresh", msgs[1].Content)
	assert.Len(t, m.History(), 3)
}

func TestMemoryWithoutKeepResetsToSystem(t *testing.T) {
	m := NewMemory("sys", false)

	_, err := m.Prepare("q1", 1)
	require.NoError(t, err)
	require.NoError(t, m.Commit("a1"))

	msgs, err := m.Prepare("q2", 1)
	require.NoError(t, err)
	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser}, roles(msgs))
	assert.Equal(t, "q2", msgs[1].Content)

	require.NoError(t, m.Commit("junk"))
	msgs, err = m.Prepare("q2", 2)
	require.NoError(t, err)
	assert.Equal(t, []llm.CompletionRole{llm.RoleSystem, llm.RoleUser}, roles(msgs), "retry still carries the prompt")
	assert.Equal(t, "q2", msgs[1].Content)

	assert.Len(t, m.History(), 5)
}
