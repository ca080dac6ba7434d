package provider

import (
	"strings"

	"otchat/model"
)

// Wire roles produced by ConvertHistory.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// MissingToolResult is sent for a call that never got a result, for
// instance because the turn was cancelled mid-round. Vendors reject calls
// without a matching response.
const MissingToolResult = "Error: tool call was not executed"

// ConvertHistory turns a persisted chat history into wire messages.
//
// Think parts are dropped. Fenced blocks are re-fenced into the text. An
// assistant message that called functions is split at every call so each
// batch of calls is followed by a "tool" message with their responses,
// keeping the order in which the model saw them.
func ConvertHistory(h model.ChatHistory) []model.WireMessage {
	var out []model.WireMessage
	for _, pair := range h.MsgPairs {
		if pair.User != nil {
			if msg, ok := convertUser(pair.User.Parts); ok {
				out = append(out, msg)
			}
		}
		if pair.Assistant != nil {
			out = append(out, convertAssistant(pair.Assistant.Parts)...)
		}
	}
	return out
}

func convertUser(parts []model.MessagePart) (model.WireMessage, bool) {
	msg := model.WireMessage{Role: RoleUser}
	var text []string
	flush := func() {
		if len(text) > 0 {
			msg.Parts = append(msg.Parts, model.WirePart{Kind: model.WireText, Text: strings.Join(text, "\n\n")})
			text = nil
		}
	}
	for _, p := range parts {
		switch {
		case p.Type == model.TypeImage:
			flush()
			msg.Parts = append(msg.Parts, model.WirePart{Kind: model.WireImage, URL: p.Content, MediaType: p.TypeExtra})
		case p.Kind() == model.KindThink || p.Kind() == model.KindFunctionCall:
		default:
			if s := p.Fence(); strings.TrimSpace(s) != "" {
				text = append(text, s)
			}
		}
	}
	flush()
	return msg, len(msg.Parts) > 0
}

func convertAssistant(parts []model.MessagePart) []model.WireMessage {
	var (
		out     []model.WireMessage
		text    []string
		calls   []model.WirePart
		results []model.WirePart
	)
	flush := func() {
		if len(text) == 0 && len(calls) == 0 {
			return
		}
		msg := model.WireMessage{Role: RoleAssistant}
		if len(text) > 0 {
			msg.Parts = append(msg.Parts, model.WirePart{Kind: model.WireText, Text: strings.Join(text, "\n\n")})
		}
		msg.Parts = append(msg.Parts, calls...)
		out = append(out, msg)
		if len(results) > 0 {
			out = append(out, model.WireMessage{Role: RoleTool, Parts: results})
		}
		text, calls, results = nil, nil, nil
	}

	for _, p := range parts {
		switch p.Kind() {
		case model.KindThink:
		case model.KindFunctionCall:
			fc, err := model.DecodeFunctionCall(p)
			if err != nil {
				continue
			}
			result := fc.Result
			if result == "" {
				result = MissingToolResult
			}
			calls = append(calls, model.WirePart{Kind: model.WireFunctionCall, CallID: fc.ID, Name: fc.Name, Args: fc.Args})
			results = append(results, model.WirePart{Kind: model.WireFunctionResponse, CallID: fc.ID, Name: fc.Name, Result: result})
		default:
			if len(calls) > 0 {
				flush()
			}
			if s := p.Fence(); strings.TrimSpace(s) != "" {
				text = append(text, s)
			}
		}
	}
	flush()
	return out
}

// FlattenToolCalls rewrites structured calls and responses as text, for
// models driven through fenced tool-call blocks. Calls become tool_call
// blocks in the assistant text and responses become a user message.
func FlattenToolCalls(msgs []model.WireMessage) []model.WireMessage {
	out := make([]model.WireMessage, 0, len(msgs))
	for _, m := range msgs {
		flat := model.WireMessage{Role: m.Role}
		if m.Role == RoleTool {
			flat.Role = RoleUser
		}
		for _, p := range m.Parts {
			switch p.Kind {
			case model.WireFunctionCall:
				args := strings.TrimSpace(p.Args)
				if args == "" {
					args = "{}"
				}
				flat.Parts = append(flat.Parts, model.WirePart{Kind: model.WireText, Text: "```tool_call\n" + p.Name + " " + args + "\n```"})
			case model.WireFunctionResponse:
				flat.Parts = append(flat.Parts, model.WirePart{Kind: model.WireText, Text: "Result of " + p.Name + ":\n" + p.Result})
			default:
				flat.Parts = append(flat.Parts, p)
			}
		}
		out = append(out, flat)
	}
	return mergeSameRole(out)
}

// mergeSameRole joins consecutive messages of the same role.
func mergeSameRole(msgs []model.WireMessage) []model.WireMessage {
	var out []model.WireMessage
	for _, m := range msgs {
		if len(out) > 0 && out[len(out)-1].Role == m.Role {
			last := &out[len(out)-1]
			last.Parts = append(last.Parts, m.Parts...)
			continue
		}
		out = append(out, model.WireMessage{Role: m.Role, Parts: append([]model.WirePart(nil), m.Parts...)})
	}
	return out
}

// splitDataURL returns the media type and base64 payload of a data: URL.
func splitDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(meta, ";base64"), payload, true
}
