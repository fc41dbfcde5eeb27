package participant

import (
	"errors"
	"fmt"

	"consensus/pkg/agent/llm"
)

// ErrRoleOrder is returned when a turn would break the conversation ordering rules.
var ErrRoleOrder = errors.New("conversation role out of order")

// Memory holds the messages sent to the model and the full history of every turn.
//
// The working memory obeys three rules: a system message only opens an empty
// memory, a user message never follows another user message, and an assistant
// message only answers a user message. The history is append-only.
type Memory struct {
	keep     bool
	memories []llm.CompletionMessage
	history  []llm.CompletionMessage
}

// NewMemory creates a memory opened by the given system message.
// With keep=false the working memory is cut back to the system message
// before every request, so the model only sees the current prompt.
func NewMemory(system string, keep bool) *Memory {
	m := &Memory{keep: keep}
	if system != "" {
		// An empty memory always accepts a system message.
		_ = m.Update(llm.RoleSystem, system)
	}
	return m
}

// Update appends a turn to both the working memory and the history.
func (m *Memory) Update(role llm.CompletionRole, content string) error {
	if !role.Valid() {
		return fmt.Errorf("unrecognized role %q: %w", role, ErrRoleOrder)
	}

	last, hasLast := m.last()
	switch {
	case role == llm.RoleSystem && hasLast:
		return fmt.Errorf("system message on non-empty memory: %w", ErrRoleOrder)
	case role == llm.RoleUser && hasLast && last == llm.RoleUser:
		return fmt.Errorf("user message after user message: %w", ErrRoleOrder)
	case role == llm.RoleAssistant && hasLast && last != llm.RoleUser:
		return fmt.Errorf("assistant message after %s message: %w", last, ErrRoleOrder)
	}

	msg := llm.CompletionMessage{Role: role, Content: content}
	m.memories = append(m.memories, msg)
	m.history = append(m.history, msg)
	return nil
}

// Prepare readies the working memory for attempt (1-based) at answering
// prompt and returns the messages to send.
//
// The first attempt appends the prompt. A later attempt reuses the prompt
// already in memory and drops the unusable reply that followed it; neither
// touches the history.
func (m *Memory) Prepare(prompt string, attempt int) ([]llm.CompletionMessage, error) {
	if !m.keep {
		m.resetToSystem()
	}

	if attempt <= 1 {
		// A prompt left unanswered by an abandoned decision is superseded.
		if last, ok := m.last(); ok && last == llm.RoleUser {
			m.memories = m.memories[:len(m.memories)-1]
		}
		if err := m.Update(llm.RoleUser, prompt); err != nil {
			return nil, err
		}
		return m.Messages(), nil
	}

	if last, ok := m.last(); ok && last == llm.RoleAssistant {
		m.memories = m.memories[:len(m.memories)-1]
	}
	if last, ok := m.last(); !ok || last != llm.RoleUser {
		m.memories = append(m.memories, llm.NewUserMessage(prompt))
	}
	return m.Messages(), nil
}

// Commit records the model's reply to the pending prompt.
func (m *Memory) Commit(reply string) error {
	return m.Update(llm.RoleAssistant, reply)
}

// Messages returns a copy of the working memory.
func (m *Memory) Messages() []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, len(m.memories))
	copy(out, m.memories)
	return out
}

// History returns a copy of every turn ever recorded.
func (m *Memory) History() []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Memory) last() (llm.CompletionRole, bool) {
	if len(m.memories) == 0 {
		return "", false
	}
	return m.memories[len(m.memories)-1].Role, true
}

func (m *Memory) resetToSystem() {
	if len(m.memories) > 0 && m.memories[0].Role == llm.RoleSystem {
		m.memories = m.memories[:1]
		return
	}
	m.memories = m.memories[:0]
}
