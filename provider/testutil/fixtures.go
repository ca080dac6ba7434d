package testutil

import (
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/model"
)

var fixtureTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// TestHistory returns a two-turn conversation whose second reply called a
// tool.
func TestHistory() model.ChatHistory {
	var h model.ChatHistory
	h.AppendUserMessage([]model.MessagePart{model.TextPart("Hello, how are you?")}, fixtureTime, false)
	h.AppendOrExtendAssistantMessage([]model.MessagePart{model.TextPart("I'm doing well, thank you!")}, fixtureTime)

	h.AppendUserMessage([]model.MessagePart{model.TextPart("What's the weather in Paris?")}, fixtureTime, false)
	h.AppendOrExtendAssistantMessage([]model.MessagePart{
		{Type: model.TypeThink, Content: "need the weather tool"},
		model.TextPart("Let me check."),
		model.NewFunctionCallPart(model.FunctionCall{
			ID:     "call-1",
			Name:   "get_weather",
			Args:   `{"location":"Paris"}`,
			Result: "Sunny, 21C",
		}),
		model.TextPart("It is sunny in Paris."),
	}, fixtureTime)
	return h
}

// SingleUserHistory returns a history with one user message.
func SingleUserHistory(content string) model.ChatHistory {
	var h model.ChatHistory
	h.AppendUserMessage([]model.MessagePart{model.TextPart(content)}, fixtureTime, false)
	return h
}

// TestMCPTools returns sample MCP tools for testing
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}
