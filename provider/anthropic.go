package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/config"
	"otchat/mcp"
	"otchat/model"
	"otchat/ollama"
	"otchat/parser"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider implements model.Provider using Anthropic's official API.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	baseURL   string
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: Anthropic API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - model: model to use (default: "claude-sonnet-4-5-20250929")
//   - maxTokens: response token limit (default: 4096, the API requires one)
//
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey, model string, maxTokens int) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = config.DefaultEndpoint(config.ClientAnthropic)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}
	limit := int64(anthropicDefaultMaxTokens)
	if maxTokens > 0 {
		limit = int64(maxTokens)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:    &client,
		model:     anthropicModel,
		baseURL:   baseURL,
		maxTokens: limit,
	}, nil
}

// ChatStream implements model.Provider. Text is streamed as it arrives;
// tool_use blocks are reported once the message is complete.
func (p *AnthropicProvider) ChatStream(ctx context.Context, systemPrompt string, messages []model.WireMessage, tools []mcptypes.Tool, cb model.StreamCallbacks) (model.FinalMessage, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  ToAnthropicMessages(messages),
		MaxTokens: p.maxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = mcp.AnthropicTools(tools)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] anthropic request: model=%s messages=%d tools=%d", p.model, len(params.Messages), len(tools))
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	cb.Start()
	var (
		final model.FinalMessage
		text  strings.Builder
		msg   anthropic.Message
	)
	for stream.Next() {
		if cb.Cancelled() {
			final.Cancelled = true
			break
		}
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return final, fmt.Errorf("error accumulating message: %w", err)
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
				text.WriteString(td.Text)
				cb.Text(td.Text)
			}
		}
	}
	final.Text = text.String()

	if final.Cancelled {
		return final, nil
	}
	if err := stream.Err(); err != nil {
		return final, classifyError("anthropic", err)
	}

	final.StopReason = string(msg.StopReason)
	index := 0
	for _, block := range msg.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		cb.FunctionCall(index, toolUse.ID, toolUse.Name, string(toolUse.Input))
		index++
	}
	return final, nil
}

// ToAnthropicMessages maps wire messages onto Anthropic message params.
// Tool responses travel as tool_result blocks of a user message, and
// consecutive messages of the same role are merged since the API requires
// alternating roles.
func ToAnthropicMessages(messages []model.WireMessage) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	var lastRole anthropic.MessageParamRole

	for _, m := range messages {
		var (
			blocks []anthropic.ContentBlockParamUnion
			role   = anthropic.MessageParamRoleUser
		)
		if m.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		for _, part := range m.Parts {
			switch part.Kind {
			case model.WireText:
				if strings.TrimSpace(part.Text) != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case model.WireImage:
				if mediaType, data, ok := splitDataURL(part.URL); ok {
					blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
				} else {
					blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: part.URL}))
				}
			case model.WireFunctionCall:
				args, err := parser.ParseLenientArgs(part.Args)
				if err != nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.CallID, args, part.Name))
			case model.WireFunctionResponse:
				isErr := strings.HasPrefix(part.Result, "Error:")
				blocks = append(blocks, anthropic.NewToolResultBlock(part.CallID, part.Result, isErr))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		if len(result) > 0 && lastRole == role {
			result[len(result)-1].Content = append(result[len(result)-1].Content, blocks...)
			continue
		}
		if role == anthropic.MessageParamRoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
		lastRole = role
	}
	return result
}

// ListModels implements model.Provider. Anthropic has no public listing
// endpoint the SDK exposes uniformly, so a curated list of the models the
// SDK knows is returned.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	models := []anthropic.Model{
		anthropic.ModelClaudeSonnet4_5_20250929,
		anthropic.ModelClaudeOpus4_1_20250805,
		anthropic.ModelClaudeSonnet4_20250514,
		anthropic.ModelClaude3_5Haiku20241022,
	}

	result := make([]ollama.ModelInfo, 0, len(models))
	for _, m := range models {
		result = append(result, ollama.ModelInfo{
			Name:         string(m),
			InternalName: string(m),
			Provider:     config.ClientAnthropic,
		})
	}
	return result, nil
}

// GetModel implements model.Provider.
func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

// Ping implements model.Provider with a one-token request.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}
