package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"

	"otchat/config"
	"otchat/mcp"
	"otchat/model"
	"otchat/ollama"
	"otchat/parser"
)

// OllamaProvider wraps ollama.Client to implement model.Provider.
//
// This provider handles the conversions between wire messages and Ollama's
// API types: images travel as raw bytes, function calls as decoded argument
// maps and function responses as "tool" messages named after the tool.
type OllamaProvider struct {
	client *ollama.Client
	opts   ollama.ChatOptions
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Parameters:
//   - baseURL: The Ollama server URL (e.g., "http://localhost:11434").
//     If empty, defaults to "http://localhost:11434".
//   - model: The model name to use (e.g., "llama3.1:latest").
//     If empty, defaults to "llama3.1:latest".
//   - opts: per-request model options (context length, output limit).
//
// Returns an error if the baseURL is invalid.
//
// Example:
//
//	provider, err := NewOllamaProvider("http://localhost:11434", "llama3.1", ollama.ChatOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewOllamaProvider(baseURL, model string, opts ollama.ChatOptions) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaProvider{client: client, opts: opts}, nil
}

// ChatStream implements model.Provider.
//
// Ollama reports each tool call whole, so every call is forwarded as a
// single OnFunctionCall with a generated id. Cancellation stops the
// underlying stream through ollama.ErrStopStream.
func (p *OllamaProvider) ChatStream(ctx context.Context, systemPrompt string, messages []model.WireMessage, tools []mcptypes.Tool, cb model.StreamCallbacks) (model.FinalMessage, error) {
	var ollamaTools []api.Tool
	if len(tools) > 0 {
		ollamaTools = mcp.OllamaTools(tools)
	}

	msgs := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		content := systemPrompt
		// Unescaped quotes in system prompts break tool calling on the
		// Ollama server (ollama/ollama#12751).
		if len(tools) > 0 {
			content = escapeQuotesForOllama(content)
		}
		msgs = append(msgs, api.Message{Role: "system", Content: content})
	}
	msgs = append(msgs, ToOllamaMessages(messages)...)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] ollama request: model=%s messages=%d tools=%d", p.client.GetModel(), len(msgs), len(tools))
	}

	cb.Start()
	var (
		final model.FinalMessage
		text  strings.Builder
		index int
	)
	err := p.client.ChatWithTools(ctx, msgs, ollamaTools, p.opts, func(resp api.ChatResponse) error {
		if cb.Cancelled() {
			final.Cancelled = true
			return ollama.ErrStopStream
		}
		if resp.Message.Content != "" {
			text.WriteString(resp.Message.Content)
			cb.Text(resp.Message.Content)
		}
		for _, call := range resp.Message.ToolCalls {
			fc, err := mcp.OllamaFunctionCall(call, uuid.NewString())
			if err != nil {
				return fmt.Errorf("failed to encode tool call %s: %w", call.Function.Name, err)
			}
			cb.FunctionCall(index, fc.ID, fc.Name, fc.Args)
			index++
		}
		if resp.Done {
			final.StopReason = resp.DoneReason
		}
		return nil
	})
	final.Text = text.String()

	if final.Cancelled {
		return final, nil
	}
	if err != nil {
		return final, classifyError("ollama", err)
	}
	return final, nil
}

// ToOllamaMessages maps wire messages onto Ollama API messages.
func ToOllamaMessages(messages []model.WireMessage) []api.Message {
	result := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTool {
			for _, part := range m.Parts {
				if part.Kind == model.WireFunctionResponse {
					result = append(result, api.Message{Role: "tool", Content: part.Result, ToolName: part.Name})
				}
			}
			continue
		}

		msg := api.Message{Role: m.Role, Content: m.TextContent()}
		for _, part := range m.Parts {
			switch part.Kind {
			case model.WireImage:
				_, data, ok := splitDataURL(part.URL)
				if !ok {
					if config.DebugLog != nil {
						config.DebugLog.Printf("[Provider] ollama: skipping non-inline image %s", part.URL)
					}
					continue
				}
				raw, err := base64.StdEncoding.DecodeString(data)
				if err != nil {
					continue
				}
				msg.Images = append(msg.Images, api.ImageData(raw))
			case model.WireFunctionCall:
				args, err := parser.ParseLenientArgs(part.Args)
				if err != nil {
					args = map[string]any{}
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      part.Name,
						Arguments: api.ToolCallFunctionArguments(args),
					},
				})
			}
		}
		result = append(result, msg)
	}
	return result
}

// escapeQuotesForOllama escapes double and single quotes in a system prompt.
func escapeQuotesForOllama(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

// ListModels implements model.Provider.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, classifyError("ollama", err)
	}
	return models, nil
}

// GetModel implements model.Provider.
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// Ping implements model.Provider.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
