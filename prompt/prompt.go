// Package prompt assembles the system prompt sent with every round.
//
// The prompt is layered:
//
//	Layer 1: tool instructions (only if tools are available)
//	Layer 2: the user's and the model's own system prompt
//	Layer 3: remembered facts (only if memory is enabled and non-empty)
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/config"
	"otchat/parser"
)

// Build returns the full system prompt. style selects how tools are called
// (config.ToolCallNative or config.ToolCallFenced).
func Build(additional, style string, tools []mcptypes.Tool, memory []string) string {
	var layers []string

	if len(tools) > 0 {
		if style == config.ToolCallFenced {
			layers = append(layers, fencedToolPrompt(tools))
		} else {
			layers = append(layers, minimalToolPrompt(tools))
		}
	}

	if s := strings.TrimSpace(additional); s != "" {
		layers = append(layers, s)
	}

	if notes := memoryPrompt(memory); notes != "" {
		layers = append(layers, notes)
	}

	return strings.Join(layers, "\n\n")
}

// minimalToolPrompt keeps native tool-calling instructions short; the tool
// schemas travel in the request itself.
func minimalToolPrompt(tools []mcptypes.Tool) string {
	return fmt.Sprintf(
		"TOOLS: %s\n\n"+
			"If you don't know something → use a tool.\n"+
			"Otherwise → answer directly.\n\n"+
			"Don't tell the user how you will use a tool. Just execute the tool call.\n\n"+
			"If the task is too big, split them into multiple sub-tasks\n\n"+
			"Summarize what you did in a short and concise way after you are done",
		strings.Join(toolNames(tools), ", "),
	)
}

// fencedToolPrompt teaches models without structured tool calling to write
// tool_call blocks, listing each tool's parameters.
func fencedToolPrompt(tools []mcptypes.Tool) string {
	var sb strings.Builder
	sb.WriteString("You can call tools. To call one, reply with a fenced block tagged " + parser.ToolCallBlockType + ":\n\n")
	sb.WriteString("```" + parser.ToolCallBlockType + "\n")
	sb.WriteString("tool_name {\"argument\": \"value\"}\n")
	sb.WriteString("```\n\n")
	sb.WriteString("Write one block per call, then stop and wait: the results are sent back to you in the next message. ")
	sb.WriteString("Never invent tool results.\n\nAvailable tools:\n")

	for _, tool := range tools {
		sb.WriteString("\n- " + tool.Name)
		if tool.Description != "" {
			sb.WriteString(": " + tool.Description)
		}
		if sig := signature(tool.InputSchema); sig != "" {
			sb.WriteString("\n  arguments: " + sig)
		}
	}
	return sb.String()
}

// signature renders the schema compactly, e.g. {path: string (required), limit: number}.
func signature(schema mcptypes.ToolInputSchema) string {
	if len(schema.Properties) == 0 {
		return ""
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]string, 0, len(names))
	for _, name := range names {
		field := name + ": " + propertyType(schema.Properties[name])
		if required[name] {
			field += " (required)"
		}
		fields = append(fields, field)
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

func propertyType(prop any) string {
	m, ok := prop.(map[string]any)
	if !ok {
		return "any"
	}
	switch t := m["type"].(type) {
	case string:
		if enum, ok := m["enum"].([]any); ok && len(enum) > 0 {
			data, _ := json.Marshal(enum)
			return t + " one of " + string(data)
		}
		return t
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			types = append(types, fmt.Sprint(v))
		}
		return strings.Join(types, "|")
	}
	return "any"
}

func memoryPrompt(memory []string) string {
	var notes []string
	for _, m := range memory {
		if s := strings.TrimSpace(m); s != "" {
			notes = append(notes, "- "+s)
		}
	}
	if len(notes) == 0 {
		return ""
	}
	return "Things you remember about the user from earlier chats:\n" + strings.Join(notes, "\n")
}

func toolNames(tools []mcptypes.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}
