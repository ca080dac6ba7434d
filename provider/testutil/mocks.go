package testutil

import (
	"context"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/model"
	"otchat/ollama"
)

// Call is a structured tool call a scripted Turn emits.
type Call struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Turn scripts one ChatStream invocation.
type Turn struct {
	Chunks []string
	Calls  []Call
	Err    error
	// Gate, when set, blocks the turn until it is closed or the context
	// ends, letting tests observe a chat mid-stream.
	Gate chan struct{}
}

// Request records the arguments of one ChatStream invocation.
type Request struct {
	SystemPrompt string
	Messages     []model.WireMessage
	Tools        []mcptypes.Tool
}

// MockProvider implements model.Provider by replaying scripted turns.
// Once the script is exhausted it answers "Mock response".
type MockProvider struct {
	ListModelsFunc func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc       func(ctx context.Context) error

	mu       sync.Mutex
	model    string
	turns    []Turn
	requests []Request
}

// NewMockProvider creates a mock provider replaying turns in order.
func NewMockProvider(modelName string, turns ...Turn) *MockProvider {
	mock := &MockProvider{
		model: modelName,
		turns: turns,
	}
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = func(ctx context.Context) error { return nil }
	return mock
}

// Enqueue appends turns to the script.
func (m *MockProvider) Enqueue(turns ...Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Requests returns the recorded invocations.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockProvider) next(req Request) Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		return Turn{Chunks: []string{"Mock response"}}
	}
	t := m.turns[0]
	m.turns = m.turns[1:]
	return t
}

// ChatStream implements model.Provider.
func (m *MockProvider) ChatStream(ctx context.Context, systemPrompt string, messages []model.WireMessage, tools []mcptypes.Tool, cb model.StreamCallbacks) (model.FinalMessage, error) {
	turn := m.next(Request{SystemPrompt: systemPrompt, Messages: messages, Tools: tools})

	cb.Start()
	if turn.Gate != nil {
		select {
		case <-turn.Gate:
		case <-ctx.Done():
			return model.FinalMessage{}, ctx.Err()
		}
	}

	var final model.FinalMessage
	for _, chunk := range turn.Chunks {
		if cb.Cancelled() {
			final.Cancelled = true
			return final, nil
		}
		final.Text += chunk
		cb.Text(chunk)
	}
	if turn.Err != nil {
		return final, turn.Err
	}
	for _, c := range turn.Calls {
		if cb.Cancelled() {
			final.Cancelled = true
			return final, nil
		}
		cb.FunctionCall(c.Index, c.ID, c.Name, c.Args)
	}
	final.StopReason = "stop"
	return final, nil
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{
		{Name: "mock-model-1", Size: 1000, Provider: "mock"},
		{Name: "mock-model-2", Size: 2000, Provider: "mock"},
	}, nil
}

// ListModels implements model.Provider.
func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

// GetModel implements model.Provider.
func (m *MockProvider) GetModel() string {
	return m.model
}

// Ping implements model.Provider.
func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
