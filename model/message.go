package model

import "time"

// Roles of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Msg is one side of a conversation turn. A persisted Msg is never mutated;
// the assistant message only changes while its own turn is still running.
type Msg struct {
	Role      string        `json:"role"`
	Parts     []MessagePart `json:"parts"`
	Timestamp time.Time     `json:"timestamp"`
	Uphurry   bool          `json:"uphurry,omitempty"`
}

// Clone deep-copies the message.
func (m *Msg) Clone() *Msg {
	if m == nil {
		return nil
	}
	c := *m
	c.Parts = CloneParts(m.Parts)
	return &c
}

// MsgPair groups a user message with the assistant reply it produced. The
// assistant side is filled in once generation starts and grows across the
// rounds of a tool-calling loop.
type MsgPair struct {
	User      *Msg `json:"user,omitempty"`
	Assistant *Msg `json:"assistant,omitempty"`
}

// Clone deep-copies the pair.
func (p MsgPair) Clone() MsgPair {
	return MsgPair{User: p.User.Clone(), Assistant: p.Assistant.Clone()}
}
