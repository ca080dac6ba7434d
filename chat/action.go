// Package chat drives one conversation turn against the configured models.
//
// A RequestAction owns a private copy of the chat history. It streams the
// model reply through the parser, executes the tool calls the model makes,
// feeds their results back and repeats until the model answers without
// calling tools. When a model fails, the next one of the chain is tried.
// Every change to the history is published as a snapshot through
// Callbacks.OnUpdate.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/config"
	"otchat/model"
	"otchat/parser"
	"otchat/prompt"
	"otchat/provider"
	"otchat/tools"
)

// DefaultMaxRounds bounds the tool-calling loop of one model attempt.
const DefaultMaxRounds = 25

// State is the lifecycle state of a RequestAction.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateToolExecuting
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateToolExecuting:
		return "tool-executing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Callbacks are invoked from the goroutine running the action. Every field
// is optional.
type Callbacks struct {
	// OnChunk receives each streamed fragment with the live parser state.
	OnChunk func(fragment string, parts []model.MessagePart, tail string)
	// OnUpdate receives a snapshot of the history after each mutation.
	OnUpdate func(history model.ChatHistory)
	// ShouldFallback decides whether the model after index is tried once
	// the model at index failed with err. Nil always falls back.
	ShouldFallback func(err error, index int, mc config.ModelConfig) bool
}

// Options configure a RequestAction.
type Options struct {
	// Models is the ordered fallback chain. The first entry is preferred.
	Models []config.ModelConfig
	// Factory builds providers, provider.NewProvider when nil.
	Factory provider.Factory
	// Tools offered to the model; nil offers none.
	Tools *tools.Registry
	// SystemPrompt is used for models without their own system prompt.
	SystemPrompt string
	// Memory holds remembered facts added to the system prompt.
	Memory []string
	// MaxRounds bounds the tool loop, DefaultMaxRounds when zero.
	MaxRounds int

	Now   func() time.Time
	NewID func() string
}

// RequestAction runs one turn of a chat. It is single use: build a new
// action for every request.
type RequestAction struct {
	opts    Options
	cb      Callbacks
	history model.ChatHistory

	state     atomic.Int32
	cancelled atomic.Bool
}

// NewRequestAction returns an action working on a copy of history.
func NewRequestAction(history model.ChatHistory, opts Options, cb Callbacks) *RequestAction {
	if opts.Factory == nil {
		opts.Factory = provider.NewProvider
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &RequestAction{
		opts:    opts,
		cb:      cb,
		history: history.Clone(),
	}
}

// History returns a copy of the action's current history.
func (a *RequestAction) History() model.ChatHistory {
	return a.history.Clone()
}

// State returns the current lifecycle state. Safe for concurrent use.
func (a *RequestAction) State() State {
	return State(a.state.Load())
}

func (a *RequestAction) setState(s State) {
	a.state.Store(int32(s))
}

// Cancel asks the action to stop at the next stream chunk or before the
// next fallback attempt. A tool already running completes. Safe for
// concurrent use.
func (a *RequestAction) Cancel() {
	a.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (a *RequestAction) Cancelled() bool {
	return a.cancelled.Load()
}

// RunWithUserMessage appends a user message and runs the model loop. When
// every model fails the message is removed again and the error returned.
// Cancellation is not an error and keeps whatever was produced.
func (a *RequestAction) RunWithUserMessage(ctx context.Context, parts []model.MessagePart, uphurry bool) error {
	before := a.history.Len()
	a.history.AppendUserMessage(parts, a.opts.Now(), uphurry)
	a.publish()

	if err := a.Run(ctx); err != nil {
		a.history.Truncate(before)
		a.publish()
		return err
	}
	return nil
}

// Run generates a reply for the current history, walking the model chain
// until one model succeeds. When all fail, the most actionable error (the
// lowest severity level) is returned.
func (a *RequestAction) Run(ctx context.Context) error {
	if len(a.opts.Models) == 0 {
		a.setState(StateFailed)
		return errors.New("no models configured")
	}

	var failures []error
	for i, mc := range a.opts.Models {
		if a.Cancelled() {
			a.setState(StateCancelled)
			return nil
		}

		snapshot := a.history.Clone()
		err := a.generate(ctx, mc)
		if err == nil {
			if a.Cancelled() {
				a.setState(StateCancelled)
			} else {
				a.setState(StateDone)
			}
			return nil
		}
		if a.Cancelled() {
			a.setState(StateCancelled)
			return nil
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Action] Model %s failed: %v", mc.ID, err)
		}
		failures = append(failures, err)

		// Partial output of the failed attempt is not kept.
		a.history = snapshot
		a.publish()

		if i == len(a.opts.Models)-1 {
			break
		}
		if a.cb.ShouldFallback != nil && !a.cb.ShouldFallback(err, i, mc) {
			break
		}
	}

	a.setState(StateFailed)
	return pickError(failures)
}

// pickError returns the captured error with the lowest severity level, or
// a generic failure wrapping the last error when none is classified.
func pickError(failures []error) error {
	var best *model.BackendError
	for _, err := range failures {
		var be *model.BackendError
		if !errors.As(err, &be) || !be.Typed() {
			continue
		}
		if best == nil || be.Level() < best.Level() {
			best = be
		}
	}
	if best != nil {
		return best
	}
	last := failures[len(failures)-1]
	if len(failures) == 1 {
		return last
	}
	return fmt.Errorf("all %d models failed: %w", len(failures), last)
}

// generate runs the tool loop against one model.
func (a *RequestAction) generate(ctx context.Context, mc config.ModelConfig) error {
	p, err := a.opts.Factory(mc)
	if err != nil {
		return fmt.Errorf("model %s: %w", mc.ID, err)
	}

	style := provider.EffectiveToolStyle(mc)
	var specs []mcptypes.Tool
	if a.opts.Tools != nil {
		specs = a.opts.Tools.Specs()
	}
	additional := mc.SystemPrompt
	if additional == "" {
		additional = a.opts.SystemPrompt
	}
	system := prompt.Build(additional, style, specs, a.opts.Memory)

	for round := 0; ; round++ {
		if round >= a.opts.MaxRounds {
			return fmt.Errorf("model %s: tool loop exceeded %d rounds", mc.ID, a.opts.MaxRounds)
		}
		done, err := a.round(ctx, p, mc, style, system, specs)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Action] Round %d of %s executed tools, continuing", round+1, mc.ID)
		}
	}
}

// round streams one reply and executes the tool calls it contains. It
// reports done when no further round is needed.
func (a *RequestAction) round(ctx context.Context, p model.Provider, mc config.ModelConfig, style, system string, specs []mcptypes.Tool) (bool, error) {
	a.setState(StateStreaming)

	wire := provider.ConvertHistory(a.history)
	offered := specs
	opts := []parser.Option{parser.WithThinkTokens(mc.ThinkOpen, mc.ThinkClose)}
	if style == config.ToolCallFenced {
		wire = provider.FlattenToolCalls(wire)
		offered = nil
		opts = append(opts, parser.WithBlockRewriter(parser.ToolCallRewriter(a.opts.NewID)))
	}
	ps := parser.New(opts...)

	calls := map[int]*model.FunctionCall{}
	_, err := p.ChatStream(ctx, system, wire, offered, model.StreamCallbacks{
		OnText: func(fragment string) {
			ps.Push(fragment)
			if a.cb.OnChunk != nil {
				parts, tail := ps.State()
				a.cb.OnChunk(fragment, parts, tail)
			}
		},
		OnFunctionCall: func(index int, id, name, args string) {
			fc, ok := calls[index]
			if !ok {
				fc = &model.FunctionCall{}
				calls[index] = fc
			}
			if id != "" {
				fc.ID = id
			}
			if name != "" {
				fc.Name = name
			}
			fc.Args += args
		},
		IsCancelled: a.Cancelled,
	})
	if err != nil {
		return false, fmt.Errorf("model %s: %w", mc.ID, err)
	}

	parts := ps.Finish()
	parts = append(parts, a.structuredCalls(calls)...)

	offset := a.history.AssistantPartCount()
	if len(parts) > 0 {
		a.history.AppendOrExtendAssistantMessage(parts, a.opts.Now())
		a.publish()
	}
	if a.Cancelled() {
		return true, nil
	}

	executed := false
	for i, part := range parts {
		if part.Kind() != model.KindFunctionCall {
			continue
		}
		fc, err := model.DecodeFunctionCall(part)
		if err != nil || fc.HasResult() {
			continue
		}
		if !executed {
			a.setState(StateToolExecuting)
			executed = true
		}
		fc.Result = a.callTool(ctx, fc)
		parts[i] = model.NewFunctionCallPart(fc)
	}
	if !executed {
		return true, nil
	}

	a.history.ReplaceAssistantParts(offset, parts)
	a.publish()

	return a.Cancelled(), nil
}

// structuredCalls turns the calls reported out of band into parts, ordered
// by stream index.
func (a *RequestAction) structuredCalls(calls map[int]*model.FunctionCall) []model.MessagePart {
	if len(calls) == 0 {
		return nil
	}
	indices := make([]int, 0, len(calls))
	for i := range calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	parts := make([]model.MessagePart, 0, len(indices))
	for _, i := range indices {
		fc := *calls[i]
		if fc.Name == "" {
			continue
		}
		if fc.ID == "" {
			fc.ID = a.opts.NewID()
		}
		parts = append(parts, model.NewFunctionCallPart(fc))
	}
	return parts
}

func (a *RequestAction) callTool(ctx context.Context, fc model.FunctionCall) string {
	if a.opts.Tools == nil {
		return fmt.Sprintf("Error: unknown tool %q. No tools are available", fc.Name)
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Action] Executing tool %s (%s)", fc.Name, fc.ID)
	}
	return a.opts.Tools.Call(ctx, fc.Name, fc.Args)
}

func (a *RequestAction) publish() {
	if a.cb.OnUpdate != nil {
		a.cb.OnUpdate(a.history.Clone())
	}
}
