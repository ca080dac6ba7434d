package session

import (
	"context"
	"errors"
	"time"

	"otchat/config"
	"otchat/model"
)

func (m *Manager) context() context.Context {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.baseCtx
}

// Start runs the periodic driver until ctx ends or Stop is called. Every
// tick checks each loaded chat in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	if m.stop != nil {
		m.runMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.baseCtx = ctx
	m.stop = cancel
	done := make(chan struct{})
	m.ticker = done
	m.runMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opts.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll()
			}
		}
	}()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Driver started, interval %v", m.opts.CheckInterval)
	}
}

func (m *Manager) checkAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.chats))
	for _, e := range m.chats {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		idle := e.request != nil && !e.checking
		e.mu.Unlock()
		if idle {
			m.triggerCheck(e)
		}
	}
}

// Stop halts the driver, cancels running actions and waits for background
// work to finish. Pending requests stay in the persisted snapshot so
// Restore can resume them; a turn cut short is dropped from the history.
func (m *Manager) Stop() {
	m.stopping.Store(true)
	defer m.stopping.Store(false)

	m.runMu.Lock()
	stop, done := m.stop, m.ticker
	m.stop, m.ticker = nil, nil
	m.runMu.Unlock()

	m.mu.Lock()
	for _, e := range m.chats {
		e.mu.Lock()
		if e.action != nil {
			e.action.Cancel()
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	m.wg.Wait()

	m.runMu.Lock()
	m.baseCtx = context.Background()
	m.runMu.Unlock()
}

// Restore registers the chats of the persisted snapshot with their pending
// requests. The driver picks the requests up on its next tick.
func (m *Manager) Restore(ctx context.Context) error {
	ongoing, err := m.store.LoadSessionState(ctx)
	if err != nil {
		return err
	}

	for _, o := range ongoing {
		m.mu.Lock()
		_, loaded := m.chats[o.ID]
		m.mu.Unlock()
		if loaded {
			continue
		}

		c, err := m.store.LoadChat(ctx, o.ID)
		if errors.Is(err, model.ErrChatNotFound) {
			c = model.NewChatContext(o.ID, o.StartedAt)
		} else if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Session] Skipping chat %s on restore: %v", o.ID, err)
			}
			continue
		}

		e := m.register(c, ChatOptions{}, o.StartedAt)
		if o.Request != nil && o.Request.Validate() == nil {
			e.mu.Lock()
			e.request = o.Request
			e.processing = true
			e.mu.Unlock()
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Restored %d ongoing chats", len(ongoing))
	}
	return nil
}
