package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/ollama"
)

// Provider abstracts one LLM backend (OpenAI, Anthropic, Ollama, ...) behind
// backend-agnostic wire messages.
//
// This interface is defined in the model package (not provider package) to
// avoid import cycles: provider implementations import model, and the chat
// and session packages use Provider without importing the provider package.
type Provider interface {
	// ChatStream sends the conversation and streams the reply through cb.
	// Text arrives through OnText, structured tool calls through
	// OnFunctionCall. The stream stops early once cb.IsCancelled reports true.
	ChatStream(ctx context.Context, systemPrompt string, messages []WireMessage, tools []mcptypes.Tool, cb StreamCallbacks) (FinalMessage, error)

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the model name used for API calls.
	GetModel() string

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallbacks receives the events of one streamed completion. Every
// field is optional.
type StreamCallbacks struct {
	OnStart        func()
	OnText         func(fragment string)
	OnFunctionCall func(index int, id, name, argsFragment string)
	IsCancelled    func() bool
}

// Start fires OnStart if set.
func (cb StreamCallbacks) Start() {
	if cb.OnStart != nil {
		cb.OnStart()
	}
}

// Text fires OnText for a non-empty fragment.
func (cb StreamCallbacks) Text(fragment string) {
	if cb.OnText != nil && fragment != "" {
		cb.OnText(fragment)
	}
}

// FunctionCall fires OnFunctionCall if set.
func (cb StreamCallbacks) FunctionCall(index int, id, name, argsFragment string) {
	if cb.OnFunctionCall != nil {
		cb.OnFunctionCall(index, id, name, argsFragment)
	}
}

// Cancelled polls IsCancelled.
func (cb StreamCallbacks) Cancelled() bool {
	return cb.IsCancelled != nil && cb.IsCancelled()
}

// FinalMessage summarizes a finished stream.
type FinalMessage struct {
	Text       string
	StopReason string
	Cancelled  bool
}

// WirePartKind is the kind of a WirePart.
type WirePartKind int

const (
	WireText WirePartKind = iota
	WireImage
	WireFunctionCall
	WireFunctionResponse
)

// WirePart is one content element of a WireMessage.
type WirePart struct {
	Kind WirePartKind

	// WireText
	Text string

	// WireImage: a data: or http(s): URL plus its media type.
	URL       string
	MediaType string

	// WireFunctionCall / WireFunctionResponse
	CallID string
	Name   string
	Args   string
	Result string
}

// WireMessage is a backend-agnostic conversation message.
type WireMessage struct {
	Role  string
	Parts []WirePart
}

// TextContent joins the text parts of the message.
func (m WireMessage) TextContent() string {
	out := ""
	for _, p := range m.Parts {
		if p.Kind != WireText {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}
