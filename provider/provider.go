// Package provider implements model.Provider for each supported backend.
//
// otchat talks to several LLM vendors (OpenAI, OpenRouter, Gemini through its
// OpenAI-compatible endpoint, Anthropic, Ollama) through the common
// model.Provider interface, so the chat loop stays vendor-agnostic.
//
// # Wire messages
//
// The chat loop hands providers backend-agnostic model.WireMessage values
// produced by ConvertHistory. Each provider maps them onto its SDK types:
//
//   - "user" messages carry text and images
//   - "assistant" messages carry text and structured function calls
//   - "tool" messages carry function responses, one per call
//
// # Errors
//
// Every provider classifies HTTP failures into *model.BackendError so the
// fallback policy can tell rate limits, oversized payloads and malformed
// requests apart (see classifyError).
//
// # Usage
//
//	p, err := provider.NewProvider(modelConfig)
//	if err != nil {
//	    // handle error
//	}
//	final, err := p.ChatStream(ctx, systemPrompt, provider.ConvertHistory(history), tools, callbacks)
package provider

import (
	"context"
	"fmt"
	"sync"

	"otchat/config"
	"otchat/model"
	"otchat/ollama"
)

// Factory builds the provider for one model configuration.
type Factory func(mc config.ModelConfig) (model.Provider, error)

// NewProvider creates a provider for mc.ClientType.
//
// Supported client types:
//   - openai: OpenAI API
//   - openrouter: OpenRouter (OpenAI-compatible)
//   - gemini: Google Gemini through its OpenAI-compatible endpoint
//   - anthropic: Anthropic Messages API
//   - ollama: local or remote Ollama server
func NewProvider(mc config.ModelConfig) (model.Provider, error) {
	endpoint := mc.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultEndpoint(mc.ClientType)
	}

	switch mc.ClientType {
	case config.ClientOpenAI:
		return NewOpenAIProvider(endpoint, mc.APIKey, mc.Model, mc.MaxOutputTokens)
	case config.ClientOpenRouter:
		return NewOpenRouterProvider(endpoint, mc.APIKey, mc.Model, mc.MaxOutputTokens)
	case config.ClientGemini:
		return NewGeminiProvider(endpoint, mc.APIKey, mc.Model, mc.MaxOutputTokens)
	case config.ClientAnthropic:
		return NewAnthropicProvider(endpoint, mc.APIKey, mc.Model, mc.MaxOutputTokens)
	case config.ClientOllama:
		return NewOllamaProvider(endpoint, mc.Model, ollama.ChatOptions{
			ContextLength:   mc.ContextLength,
			MaxOutputTokens: mc.MaxOutputTokens,
		})
	default:
		return nil, fmt.Errorf("unknown client type: %s", mc.ClientType)
	}
}

// EffectiveToolStyle returns the tool-call style to use with mc. Ollama
// models without structured tool calling are switched to fenced blocks.
func EffectiveToolStyle(mc config.ModelConfig) string {
	style := mc.CallStyle()
	if style == config.ToolCallNative && mc.ClientType == config.ClientOllama && !ollama.ModelSupportsToolCalling(mc.Model) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Model '%s' has no native tool calling, using fenced tool calls", mc.Model)
		}
		return config.ToolCallFenced
	}
	return style
}

// ModelListing is the result of listing one configured backend.
type ModelListing struct {
	Config config.ModelConfig
	Models []ollama.ModelInfo
	Err    error
}

// ListAllModels lists the models of every configured backend concurrently.
// Backends sharing client type and endpoint are queried once. Results keep
// configuration order.
func ListAllModels(ctx context.Context, cfgs []config.ModelConfig, factory Factory) []ModelListing {
	if factory == nil {
		factory = NewProvider
	}

	type key struct{ clientType, endpoint string }
	var (
		listings []ModelListing
		seen     = make(map[key]bool)
	)
	for _, mc := range cfgs {
		k := key{mc.ClientType, mc.Endpoint}
		if seen[k] {
			continue
		}
		seen[k] = true
		listings = append(listings, ModelListing{Config: mc})
	}

	var wg sync.WaitGroup
	for i := range listings {
		wg.Add(1)
		go func(l *ModelListing) {
			defer wg.Done()
			p, err := factory(l.Config)
			if err != nil {
				l.Err = err
				return
			}
			l.Models, l.Err = p.ListModels(ctx)
		}(&listings[i])
	}
	wg.Wait()

	return listings
}
