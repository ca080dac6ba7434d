package session

import (
	"context"
	"fmt"

	"otchat/chat"
	"otchat/config"
	"otchat/model"
)

// CheckChat runs the pending request of a chat, if any, in the calling
// goroutine. A check already running for the chat makes this a no-op. A
// failed request stays pending for the next check until it has failed more
// than MaxRetries times; it is then dropped and OnFinished reports the error.
func (m *Manager) CheckChat(ctx context.Context, id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.checkEntry(ctx, e)
	return nil
}

// triggerCheck checks e in the background.
func (m *Manager) triggerCheck(e *entry) {
	ctx := m.context()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.checkEntry(ctx, e)
	}()
}

func (m *Manager) checkEntry(ctx context.Context, e *entry) {
	e.mu.Lock()
	if e.checking || e.request == nil {
		e.mu.Unlock()
		return
	}
	e.checking = true
	req := e.request
	e.mu.Unlock()

	err := m.execute(ctx, e, req)

	e.mu.Lock()
	e.checking = false
	// a request set while this one was running has not been checked yet
	rerun := e.request != nil && e.request != req
	if err == nil {
		hadWarnings := len(e.warnings) > 0
		e.retries = 0
		e.warnings = nil
		e.mu.Unlock()
		if hadWarnings {
			m.emitWarnings(e.id, nil)
		}
		if rerun {
			m.triggerCheck(e)
		}
		return
	}

	if e.request != req {
		e.mu.Unlock()
		if rerun {
			m.triggerCheck(e)
		}
		return
	}
	e.retries++
	e.warnings = append(e.warnings, err.Error())
	retries := e.retries
	warnings := append([]string(nil), e.warnings...)
	e.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Chat %s attempt %d failed: %v", e.id, retries, err)
	}
	m.emitWarnings(e.id, warnings)

	if retries > m.opts.MaxRetries {
		e.mu.Lock()
		if e.action != nil {
			e.action.Cancel()
		}
		e.mu.Unlock()
		m.finishRequest(ctx, e, req, fmt.Errorf("chat %s: giving up after %d attempts: %w", e.id, retries, err))
	}
}

func (m *Manager) execute(ctx context.Context, e *entry, req *model.ChatRequest) error {
	switch req.Type {
	case model.RequestUserMsg:
		return m.runUserMsg(ctx, e, req)
	case model.RequestUphurry:
		return m.runUphurry(ctx, e, req)
	default:
		return fmt.Errorf("unknown request type %q", req.Type)
	}
}

func (m *Manager) models(e *entry) []config.ModelConfig {
	if len(e.opts.Models) > 0 {
		return e.opts.Models
	}
	return m.opts.Models
}

func (m *Manager) runUserMsg(ctx context.Context, e *entry, req *model.ChatRequest) error {
	e.mu.Lock()
	extract := m.opts.Memory && e.memoryFor != req
	if extract {
		e.memoryFor = req
	}
	pairs := e.chat.History.Len()
	e.mu.Unlock()
	if extract {
		m.extractMemory(ctx, e, model.PlainText(req.Message))
	}

	cancelled, err := m.runAction(ctx, e, req.Message, false)
	if err != nil {
		return err
	}
	if cancelled && m.stopping.Load() {
		m.rewind(ctx, e, pairs)
		return nil
	}
	// a cancelled message is not sent again
	if !cancelled {
		m.maybeTitle(ctx, e)
	}
	m.finishRequest(ctx, e, req, nil)
	return nil
}

// runUphurry performs one autonomous step. The request stays pending so
// the next check performs the next step, until the generator reports the
// goal reached or the step ceiling is hit.
func (m *Manager) runUphurry(ctx context.Context, e *entry, req *model.ChatRequest) error {
	e.mu.Lock()
	steps := e.uphurrySteps
	history := e.chat.History.Clone()
	e.mu.Unlock()

	if steps >= m.opts.MaxUphurrySteps {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Session] Chat %s reached %d uphurry steps", e.id, steps)
		}
		m.finishRequest(ctx, e, req, nil)
		return nil
	}

	pairs := history.Len()
	gen := chat.NewGenerator(m.models(e), m.opts.Factory)
	question, done, err := gen.NextQuestion(ctx, history, req.Comment)
	if err != nil {
		return fmt.Errorf("next question: %w", err)
	}
	if done {
		m.finishRequest(ctx, e, req, nil)
		return nil
	}

	m.emitUphurry(e.id, steps+1, question)

	cancelled, err := m.runAction(ctx, e, []model.MessagePart{model.TextPart(question)}, true)
	if err != nil {
		return err
	}
	if cancelled {
		if m.stopping.Load() {
			m.rewind(ctx, e, pairs)
		}
		return nil
	}

	e.mu.Lock()
	if e.request == req {
		e.uphurrySteps++
	}
	e.mu.Unlock()

	m.maybeTitle(ctx, e)
	return nil
}

// runAction runs one RequestAction over the chat's history, applying every
// history update to the entry as it happens.
func (m *Manager) runAction(ctx context.Context, e *entry, parts []model.MessagePart, uphurry bool) (cancelled bool, err error) {
	var memory []string
	if m.opts.Memory {
		facts, merr := m.store.Memory(ctx)
		if merr != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Session] Failed to load memory: %v", merr)
		}
		memory = facts
	}

	e.mu.Lock()
	history := e.chat.History.Clone()
	e.mu.Unlock()

	action := chat.NewRequestAction(history, chat.Options{
		Models:       m.models(e),
		Factory:      m.opts.Factory,
		Tools:        m.opts.Tools,
		SystemPrompt: m.opts.SystemPrompt,
		Memory:       memory,
		MaxRounds:    m.opts.MaxToolRounds,
		Now:          m.opts.Now,
		NewID:        m.opts.NewID,
	}, chat.Callbacks{
		OnChunk: func(fragment string, parts []model.MessagePart, tail string) {
			m.emitChunk(e.id, fragment, parts, tail)
		},
		OnUpdate: func(h model.ChatHistory) {
			m.applyHistory(ctx, e, h)
		},
		ShouldFallback: func(err error, index int, mc config.ModelConfig) bool {
			m.addWarning(e, fmt.Sprintf("%s failed, trying the next model: %v", mc.DisplayName(), err))
			return true
		},
	})

	e.mu.Lock()
	if e.request == nil {
		// cancelled before the action could start
		e.mu.Unlock()
		return true, nil
	}
	e.action = action
	e.mu.Unlock()

	err = action.RunWithUserMessage(ctx, parts, uphurry)

	e.mu.Lock()
	e.action = nil
	e.mu.Unlock()

	return action.Cancelled(), err
}

// applyHistory stores a history snapshot published by the running action
// and persists it before any listener hears about it.
func (m *Manager) applyHistory(ctx context.Context, e *entry, h model.ChatHistory) {
	now := m.opts.Now()
	e.mu.Lock()
	e.chat.History = h
	e.chat.UpdatedAt = now
	e.chat.LastUsedAt = now
	e.mu.Unlock()

	m.persist(ctx, e)
	m.emitMessages(e.id, h)
	m.emitContext(e)
}

// rewind drops the pairs a turn interrupted by Stop left behind. The request
// stays pending, so after Restore the turn is sent again from scratch.
func (m *Manager) rewind(ctx context.Context, e *entry, pairs int) {
	e.mu.Lock()
	h := e.chat.History.Clone()
	e.mu.Unlock()
	if h.Len() <= pairs {
		return
	}
	h.Truncate(pairs)
	m.applyHistory(ctx, e, h)
}

func (m *Manager) addWarning(e *entry, warning string) {
	e.mu.Lock()
	e.warnings = append(e.warnings, warning)
	warnings := append([]string(nil), e.warnings...)
	e.mu.Unlock()
	m.emitWarnings(e.id, warnings)
}

// maybeTitle names the chat in the background once it has its first pair.
func (m *Manager) maybeTitle(ctx context.Context, e *entry) {
	e.mu.Lock()
	if e.titled || e.chat.History.Len() == 0 {
		e.mu.Unlock()
		return
	}
	e.titled = true
	history := e.chat.History.Clone()
	e.mu.Unlock()

	gen := chat.NewGenerator(m.models(e), m.opts.Factory)
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		title := gen.Title(ctx, history)

		e.mu.Lock()
		e.chat.Title = title
		e.mu.Unlock()

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Session] Chat %s titled %q", e.id, title)
		}
		m.persist(ctx, e)
		m.emitContext(e)
	}()
}

// extractMemory stores durable facts found in text. It runs in the
// background and only logs failures.
func (m *Manager) extractMemory(ctx context.Context, e *entry, text string) {
	if text == "" {
		return
	}
	gen := chat.NewGenerator(m.models(e), m.opts.Factory)
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		known, err := m.store.Memory(ctx)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Session] Failed to load memory: %v", err)
			}
			return
		}
		facts, err := gen.ExtractMemory(ctx, text, known)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Session] Memory extraction failed: %v", err)
			}
			return
		}
		if len(facts) == 0 {
			return
		}
		if err := m.store.AddMemory(ctx, facts...); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Session] Failed to store memory: %v", err)
		}
	}()
}
