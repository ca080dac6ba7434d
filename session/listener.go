package session

import (
	"otchat/config"
	"otchat/model"
)

// Listener receives the events of one chat. Methods are called
// synchronously from the goroutine that caused the event and must not
// block for long.
type Listener interface {
	// OnProcessingChanged fires when a request is accepted or released.
	OnProcessingChanged(chatID string, processing bool)
	// OnUphurryProgress fires before each autonomous step with the
	// generated instruction.
	OnUphurryProgress(chatID string, step int, question string)
	// OnContextUpdate receives a snapshot after the chat changed. Returning
	// true claims the update: the user has seen it and CheckedAt is stamped.
	OnContextUpdate(chatID string, chat *model.ChatContext) (claimed bool)
	OnWarningsChanged(chatID string, warnings []string)
	OnChunk(chatID string, fragment string, parts []model.MessagePart, tail string)
	OnMessagesUpdated(chatID string, history model.ChatHistory)
	// OnFinished fires once a request is done. err is non-nil when the
	// request was abandoned after too many failed attempts.
	OnFinished(chatID string, err error)
}

// NopListener implements Listener with no-ops. Embed it to handle only some
// events.
type NopListener struct{}

func (NopListener) OnProcessingChanged(string, bool)                    {}
func (NopListener) OnUphurryProgress(string, int, string)               {}
func (NopListener) OnContextUpdate(string, *model.ChatContext) bool     { return false }
func (NopListener) OnWarningsChanged(string, []string)                  {}
func (NopListener) OnChunk(string, string, []model.MessagePart, string) {}
func (NopListener) OnMessagesUpdated(string, model.ChatHistory)         {}
func (NopListener) OnFinished(string, error)                            {}

type subscription struct {
	chatID   string
	listener Listener
}

// Subscribe registers l for events of chatID. The returned function removes
// the subscription.
func (m *Manager) Subscribe(chatID string, l Listener) (unsubscribe func()) {
	sub := &subscription{chatID: chatID, listener: l}

	m.listenersMu.Lock()
	m.listeners[chatID] = append(m.listeners[chatID], sub)
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		subs := m.listeners[chatID]
		for i, s := range subs {
			if s == sub {
				m.listeners[chatID] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(m.listeners[chatID]) == 0 {
			delete(m.listeners, chatID)
		}
	}
}

// each calls fn for every listener of chatID. A panicking listener is
// logged and skipped.
func (m *Manager) each(chatID string, fn func(Listener)) {
	m.listenersMu.RLock()
	subs := append([]*subscription(nil), m.listeners[chatID]...)
	m.listenersMu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil && config.DebugLog != nil {
					config.DebugLog.Printf("[Session] Listener for chat %s panicked: %v", chatID, r)
				}
			}()
			fn(s.listener)
		}()
	}
}

func (m *Manager) emitProcessing(chatID string, processing bool) {
	m.each(chatID, func(l Listener) { l.OnProcessingChanged(chatID, processing) })
}

func (m *Manager) emitUphurry(chatID string, step int, question string) {
	m.each(chatID, func(l Listener) { l.OnUphurryProgress(chatID, step, question) })
}

func (m *Manager) emitWarnings(chatID string, warnings []string) {
	m.each(chatID, func(l Listener) { l.OnWarningsChanged(chatID, append([]string(nil), warnings...)) })
}

func (m *Manager) emitChunk(chatID, fragment string, parts []model.MessagePart, tail string) {
	m.each(chatID, func(l Listener) { l.OnChunk(chatID, fragment, model.CloneParts(parts), tail) })
}

func (m *Manager) emitMessages(chatID string, history model.ChatHistory) {
	m.each(chatID, func(l Listener) { l.OnMessagesUpdated(chatID, history.Clone()) })
}

func (m *Manager) emitFinished(chatID string, err error) {
	m.each(chatID, func(l Listener) { l.OnFinished(chatID, err) })
}

// emitContext publishes a snapshot of e and stamps CheckedAt when a
// listener claims it.
func (m *Manager) emitContext(e *entry) {
	snapshot := e.snapshot()
	claimed := false
	m.each(e.id, func(l Listener) {
		if l.OnContextUpdate(e.id, snapshot.Clone()) {
			claimed = true
		}
	})
	if claimed {
		e.mu.Lock()
		e.chat.CheckedAt = m.opts.Now()
		e.mu.Unlock()
	}
}
