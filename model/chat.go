package model

import (
	"fmt"
	"time"
)

// ChatMeta is the lightweight index record of a chat.
type ChatMeta struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// HasUpdateSince reports whether the chat changed after checkedAt, i.e. it
// holds output the user has not looked at yet.
func (m ChatMeta) HasUpdateSince(checkedAt time.Time) bool {
	return m.UpdatedAt.After(checkedAt)
}

// ChatContext is a fully loaded chat.
type ChatContext struct {
	ChatMeta
	History     ChatHistory `json:"history"`
	Progressing bool        `json:"-"`
}

// NewChatContext returns an empty chat created at now.
func NewChatContext(id string, now time.Time) *ChatContext {
	return &ChatContext{
		ChatMeta: ChatMeta{
			ID:         id,
			CreatedAt:  now,
			UpdatedAt:  now,
			LastUsedAt: now,
		},
	}
}

// ExtractMeta projects the index fields of ctx.
func ExtractMeta(ctx *ChatContext) ChatMeta {
	return ctx.ChatMeta
}

// HasUpdateSince reports whether the chat changed after checkedAt.
func (c *ChatContext) HasUpdateSince(checkedAt time.Time) bool {
	return c.ChatMeta.HasUpdateSince(checkedAt)
}

// Clone deep-copies the context.
func (c *ChatContext) Clone() *ChatContext {
	if c == nil {
		return nil
	}
	out := *c
	out.History = c.History.Clone()
	return &out
}

// RequestType discriminates ChatRequest.
type RequestType string

const (
	RequestUserMsg RequestType = "user-msg"
	RequestUphurry RequestType = "uphurry"
)

// ChatRequest is the work pending on an ongoing chat. A user-msg request
// carries the message parts; an uphurry request carries the free-text goal
// the chat keeps working towards on its own.
type ChatRequest struct {
	Type    RequestType   `json:"type"`
	Message []MessagePart `json:"message,omitempty"`
	Comment string        `json:"comment,omitempty"`
}

// NewUserMsgRequest builds a user-msg request.
func NewUserMsgRequest(parts []MessagePart) *ChatRequest {
	return &ChatRequest{Type: RequestUserMsg, Message: CloneParts(parts)}
}

// NewUphurryRequest builds an uphurry request.
func NewUphurryRequest(comment string) *ChatRequest {
	return &ChatRequest{Type: RequestUphurry, Comment: comment}
}

// Validate checks that the request matches its discriminator.
func (r *ChatRequest) Validate() error {
	switch r.Type {
	case RequestUserMsg:
		if len(r.Message) == 0 {
			return fmt.Errorf("user-msg request has no message parts")
		}
	case RequestUphurry:
	default:
		return fmt.Errorf("unknown request type %q", r.Type)
	}
	return nil
}

// OngoingChatMeta is the persisted envelope of an active session.
type OngoingChatMeta struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"startedAt"`
	Request   *ChatRequest `json:"request,omitempty"`
}
