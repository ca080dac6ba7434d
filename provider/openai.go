package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"otchat/config"
	"otchat/mcp"
	"otchat/model"
	"otchat/ollama"
)

// OpenAIProvider implements model.Provider for the OpenAI chat completions
// API and the vendors that speak it (OpenRouter, Gemini).
type OpenAIProvider struct {
	client    openai.Client
	vendor    string
	model     string
	baseURL   string
	maxTokens int
}

// NewOpenAIProvider creates a provider for the OpenAI API.
//
// Parameters:
//   - baseURL: API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: model to use (default: "gpt-4o-mini")
//   - maxTokens: completion token limit, 0 for the vendor default
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string, maxTokens int) (*OpenAIProvider, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return newOpenAICompatible(config.ClientOpenAI, baseURL, apiKey, model, maxTokens)
}

// NewOpenRouterProvider creates a provider for OpenRouter. OpenRouter model
// names carry a vendor prefix ("anthropic/claude-3.5-sonnet").
func NewOpenRouterProvider(baseURL, apiKey, model string, maxTokens int) (*OpenAIProvider, error) {
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	return newOpenAICompatible(config.ClientOpenRouter, baseURL, apiKey, model, maxTokens,
		option.WithHeader("X-Title", "otchat"),
	)
}

// NewGeminiProvider creates a provider for Gemini through its
// OpenAI-compatible endpoint.
func NewGeminiProvider(baseURL, apiKey, model string, maxTokens int) (*OpenAIProvider, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return newOpenAICompatible(config.ClientGemini, baseURL, apiKey, model, maxTokens)
}

func newOpenAICompatible(vendor, baseURL, apiKey, model string, maxTokens int, extra ...option.RequestOption) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = config.DefaultEndpoint(vendor)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", vendor)
	}

	opts := append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}, extra...)

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		vendor:    vendor,
		model:     model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
	}, nil
}

// ChatStream implements model.Provider.
func (p *OpenAIProvider) ChatStream(ctx context.Context, systemPrompt string, messages []model.WireMessage, tools []mcptypes.Tool, cb model.StreamCallbacks) (model.FinalMessage, error) {
	params := openai.ChatCompletionNewParams{
		Messages: ToOpenAIMessages(systemPrompt, messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.OpenAITools(tools)
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s request: model=%s messages=%d tools=%d", p.vendor, p.model, len(params.Messages), len(tools))
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	cb.Start()
	var (
		final model.FinalMessage
		text  strings.Builder
	)
	for stream.Next() {
		if cb.Cancelled() {
			final.Cancelled = true
			break
		}
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if content := choice.Delta.Content; content != "" {
			text.WriteString(content)
			cb.Text(content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			cb.FunctionCall(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			final.StopReason = choice.FinishReason
		}
	}
	final.Text = text.String()

	if final.Cancelled {
		return final, nil
	}
	if err := stream.Err(); err != nil {
		return final, classifyError(p.vendor, err)
	}
	return final, nil
}

// ToOpenAIMessages maps wire messages onto chat completion messages.
func ToOpenAIMessages(systemPrompt string, messages []model.WireMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, openai.SystemMessage(systemPrompt))
	}

	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			result = append(result, openAIAssistant(m))
		case RoleTool:
			for _, part := range m.Parts {
				if part.Kind == model.WireFunctionResponse {
					result = append(result, openai.ToolMessage(part.Result, part.CallID))
				}
			}
		default:
			result = append(result, openAIUser(m))
		}
	}
	return result
}

func openAIUser(m model.WireMessage) openai.ChatCompletionMessageParamUnion {
	hasImage := false
	for _, part := range m.Parts {
		if part.Kind == model.WireImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return openai.UserMessage(m.TextContent())
	}

	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch part.Kind {
		case model.WireText:
			content = append(content, openai.TextContentPart(part.Text))
		case model.WireImage:
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: part.URL,
			}))
		}
	}
	return openai.UserMessage(content)
}

func openAIAssistant(m model.WireMessage) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}
	if text := m.TextContent(); text != "" {
		msg.Content.OfString = openai.String(text)
	}
	for _, part := range m.Parts {
		if part.Kind != model.WireFunctionCall {
			continue
		}
		args := part.Args
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: part.CallID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      part.Name,
					Arguments: args,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

// ListModels implements model.Provider.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", p.vendor, classifyError(p.vendor, err))
	}

	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		name := m.ID
		switch p.vendor {
		case config.ClientOpenRouter:
			// Display without vendor prefix
			if i := strings.Index(name, "/"); i >= 0 {
				name = name[i+1:]
			}
		case config.ClientGemini:
			name = strings.TrimPrefix(name, "models/")
		}
		result = append(result, ollama.ModelInfo{
			Name:         name,
			InternalName: m.ID,
			Provider:     p.vendor,
		})
	}
	return result, nil
}

// GetModel implements model.Provider.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// Ping implements model.Provider by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.vendor, err)
	}
	return nil
}
