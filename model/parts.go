package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved part types. Any other non-empty type is the language tag of a
// fenced block.
const (
	TypeText         = ""
	TypeThink        = "think"
	TypeFunctionCall = "function_call"
	TypePlaintext    = "plaintext"
	// TypeImage is an attached image. Content holds a data: or http(s) URL
	// and TypeExtra the media type.
	TypeImage = "image"
)

// PartKind is the closed set of shapes a MessagePart can take.
type PartKind int

const (
	KindText PartKind = iota
	KindBlock
	KindThink
	KindFunctionCall
)

func (k PartKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBlock:
		return "block"
	case KindThink:
		return "think"
	case KindFunctionCall:
		return "function_call"
	default:
		return fmt.Sprintf("PartKind(%d)", int(k))
	}
}

// MessagePart is one typed segment of a message. Type "" is prose, any other
// value is a fenced block tagged with that language (TypeExtra holds the
// optional secondary tag, e.g. "run-js json").
type MessagePart struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	TypeExtra string `json:"typeExtra,omitempty"`
	Indent    string `json:"indent,omitempty"`
}

// Kind maps the part's type string onto the closed kind set.
func (p MessagePart) Kind() PartKind {
	switch p.Type {
	case TypeText:
		return KindText
	case TypeThink:
		return KindThink
	case TypeFunctionCall:
		return KindFunctionCall
	default:
		return KindBlock
	}
}

// Fence re-wraps the part the way it appeared in the raw stream. Prose is
// returned verbatim.
func (p MessagePart) Fence() string {
	if p.Kind() == KindText {
		return p.Content
	}
	header := p.Type
	if p.TypeExtra != "" {
		header += " " + p.TypeExtra
	}
	return "```" + header + "\n" + p.Content + "\n```"
}

// ImagePart builds an image attachment part.
func ImagePart(url, mediaType string) MessagePart {
	return MessagePart{Type: TypeImage, Content: url, TypeExtra: mediaType}
}

// TextPart builds a prose part.
func TextPart(content string) MessagePart {
	return MessagePart{Type: TypeText, Content: content}
}

// FunctionCall is the JSON envelope stored in the content of a function-call
// part. Args is kept raw; it is parsed leniently at execution time.
type FunctionCall struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Args   string `json:"args"`
	Result string `json:"result,omitempty"`
}

// HasResult reports whether the call has already been executed.
func (fc FunctionCall) HasResult() bool {
	return fc.Result != ""
}

// NewFunctionCallPart encodes fc into a function-call part.
func NewFunctionCallPart(fc FunctionCall) MessagePart {
	fc.Type = TypeFunctionCall
	data, err := json.Marshal(fc)
	if err != nil {
		// FunctionCall only holds strings, Marshal cannot fail.
		panic(err)
	}
	return MessagePart{Type: TypeFunctionCall, Content: string(data)}
}

// DecodeFunctionCall extracts the envelope from a function-call part.
func DecodeFunctionCall(p MessagePart) (FunctionCall, error) {
	if p.Kind() != KindFunctionCall {
		return FunctionCall{}, fmt.Errorf("part of kind %s is not a function call", p.Kind())
	}
	var fc FunctionCall
	if err := json.Unmarshal([]byte(p.Content), &fc); err != nil {
		return FunctionCall{}, fmt.Errorf("invalid function call envelope: %w", err)
	}
	return fc, nil
}

// FunctionCalls returns every decodable function call in parts, in order.
func FunctionCalls(parts []MessagePart) []FunctionCall {
	var calls []FunctionCall
	for _, p := range parts {
		if p.Kind() != KindFunctionCall {
			continue
		}
		if fc, err := DecodeFunctionCall(p); err == nil {
			calls = append(calls, fc)
		}
	}
	return calls
}

// PlainText joins the prose parts of a message, used for titles and search.
func PlainText(parts []MessagePart) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Kind() != KindText {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Content)
	}
	return sb.String()
}

// CloneParts returns a copy of parts that shares no backing array.
func CloneParts(parts []MessagePart) []MessagePart {
	if parts == nil {
		return nil
	}
	out := make([]MessagePart, len(parts))
	copy(out, parts)
	return out
}
