package model

import "time"

// ChatHistory is the ordered list of turns of a chat.
type ChatHistory struct {
	MsgPairs []MsgPair `json:"msgPairs"`
}

// Len returns the number of pairs.
func (h *ChatHistory) Len() int {
	return len(h.MsgPairs)
}

// Last returns the last pair, or nil for an empty history.
func (h *ChatHistory) Last() *MsgPair {
	if len(h.MsgPairs) == 0 {
		return nil
	}
	return &h.MsgPairs[len(h.MsgPairs)-1]
}

// AppendUserMessage opens a new pair holding a user message.
func (h *ChatHistory) AppendUserMessage(parts []MessagePart, at time.Time, uphurry bool) {
	h.MsgPairs = append(h.MsgPairs, MsgPair{
		User: &Msg{
			Role:      RoleUser,
			Parts:     CloneParts(parts),
			Timestamp: at,
			Uphurry:   uphurry,
		},
	})
}

// AppendOrExtendAssistantMessage attaches parts to the assistant side of the
// last pair. An assistant message already present on that pair belongs to
// the running turn and is extended; otherwise one is created. With no pairs
// at all a new assistant-only pair is opened.
func (h *ChatHistory) AppendOrExtendAssistantMessage(parts []MessagePart, at time.Time) {
	last := h.Last()
	if last == nil {
		h.MsgPairs = append(h.MsgPairs, MsgPair{
			Assistant: &Msg{Role: RoleAssistant, Parts: CloneParts(parts), Timestamp: at},
		})
		return
	}
	if last.Assistant == nil {
		last.Assistant = &Msg{Role: RoleAssistant, Parts: CloneParts(parts), Timestamp: at}
		return
	}
	last.Assistant.Parts = append(last.Assistant.Parts, parts...)
	last.Assistant.Timestamp = at
}

// ReplaceAssistantParts overwrites parts of the last assistant message
// starting at offset. Used to attach tool results to the calls of the
// current round.
func (h *ChatHistory) ReplaceAssistantParts(offset int, parts []MessagePart) bool {
	last := h.Last()
	if last == nil || last.Assistant == nil {
		return false
	}
	if offset < 0 || offset+len(parts) > len(last.Assistant.Parts) {
		return false
	}
	copy(last.Assistant.Parts[offset:], parts)
	return true
}

// AssistantPartCount returns the number of parts of the last assistant
// message, or 0 when there is none.
func (h *ChatHistory) AssistantPartCount() int {
	last := h.Last()
	if last == nil || last.Assistant == nil {
		return 0
	}
	return len(last.Assistant.Parts)
}

// Truncate drops every pair from index n on.
func (h *ChatHistory) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(h.MsgPairs) {
		h.MsgPairs = h.MsgPairs[:n]
	}
}

// Clone deep-copies the history so the copy can be handed to another
// goroutine.
func (h ChatHistory) Clone() ChatHistory {
	pairs := make([]MsgPair, len(h.MsgPairs))
	for i, p := range h.MsgPairs {
		pairs[i] = p.Clone()
	}
	return ChatHistory{MsgPairs: pairs}
}

// FirstUserText returns the prose of the first user message.
func (h *ChatHistory) FirstUserText() string {
	for _, p := range h.MsgPairs {
		if p.User != nil {
			return PlainText(p.User.Parts)
		}
	}
	return ""
}
