// Package session keeps the registry of ongoing chats.
//
// Each loaded chat is an entry holding its context, the request pending on
// it and the action currently working on that request. A chat accepts one
// request at a time. Requests run in their own goroutine; a periodic driver
// re-checks every entry so failed requests are retried and uphurry chains
// continue without user input. History changes are persisted in the order
// they happen.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"otchat/chat"
	"otchat/config"
	"otchat/model"
	"otchat/provider"
	"otchat/storage"
	"otchat/tools"
)

const (
	DefaultCheckInterval   = 5 * time.Second
	DefaultMaxRetries      = 10
	DefaultMaxUphurrySteps = 20
)

// Options configure a Manager.
type Options struct {
	// Store persists chats and the registry snapshot. Required.
	Store *storage.ChatStore
	// Models is the default fallback chain of new chats.
	Models  []config.ModelConfig
	Factory provider.Factory
	Tools   *tools.Registry

	SystemPrompt string
	// Memory enables fact extraction and remembered facts in prompts.
	Memory bool

	CheckInterval   time.Duration
	MaxRetries      int
	MaxToolRounds   int
	MaxUphurrySteps int

	Now   func() time.Time
	NewID func() string
}

// OptionsFromConfig maps settings onto Options.
func OptionsFromConfig(cfg *config.Config, store *storage.ChatStore, models []config.ModelConfig, registry *tools.Registry) Options {
	return Options{
		Store:           store,
		Models:          models,
		Tools:           registry,
		SystemPrompt:    cfg.DefaultSystemPrompt,
		Memory:          cfg.Memory.Enabled,
		CheckInterval:   cfg.CheckInterval(),
		MaxRetries:      cfg.Session.MaxRetries,
		MaxToolRounds:   cfg.Session.MaxToolRounds,
		MaxUphurrySteps: cfg.Session.MaxUphurrySteps,
	}
}

// ChatOptions are the per-chat settings.
type ChatOptions struct {
	// Models overrides the manager's fallback chain when not empty.
	Models []config.ModelConfig
}

// Status describes the request state of a loaded chat.
type Status struct {
	Processing   bool
	Request      *model.ChatRequest
	Retries      int
	Warnings     []string
	UphurrySteps int
}

type entry struct {
	id string

	mu           sync.Mutex
	chat         *model.ChatContext
	opts         ChatOptions
	startedAt    time.Time
	request      *model.ChatRequest
	processing   bool
	checking     bool
	retries      int
	warnings     []string
	uphurrySteps int
	action       *chat.RequestAction
	titled       bool
	memoryFor    *model.ChatRequest

	// persistMu orders the writes of this chat. persisted is the number
	// of stored pairs; removed stops writes once the chat is unloaded.
	persistMu sync.Mutex
	persisted int
	removed   bool
}

func (e *entry) snapshot() *model.ChatContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.chat.Clone()
	c.Progressing = e.processing
	return c
}

// Manager is the registry of ongoing chats. It is safe for concurrent use.
type Manager struct {
	opts  Options
	store *storage.ChatStore

	mu    sync.Mutex
	chats map[string]*entry

	listenersMu sync.RWMutex
	listeners   map[string][]*subscription

	stateMu sync.Mutex

	runMu   sync.Mutex
	baseCtx context.Context
	stop    context.CancelFunc
	ticker  chan struct{}
	wg      sync.WaitGroup

	// stopping marks actions cancelled by Stop rather than CancelChat.
	stopping atomic.Bool
}

// NewManager returns an empty registry.
func NewManager(opts Options) *Manager {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = chat.DefaultMaxRounds
	}
	if opts.MaxUphurrySteps <= 0 {
		opts.MaxUphurrySteps = DefaultMaxUphurrySteps
	}
	if opts.Factory == nil {
		opts.Factory = provider.NewProvider
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		opts:      opts,
		store:     opts.Store,
		chats:     make(map[string]*entry),
		listeners: make(map[string][]*subscription),
		baseCtx:   context.Background(),
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.chats[id]
	if !ok {
		return nil, &model.ChatNotFoundError{ID: id}
	}
	return e, nil
}

func (m *Manager) register(c *model.ChatContext, opts ChatOptions, startedAt time.Time) *entry {
	e := &entry{
		id:        c.ID,
		chat:      c,
		opts:      opts,
		startedAt: startedAt,
		titled:    c.Title != "",
		persisted: c.History.Len(),
	}
	m.mu.Lock()
	m.chats[c.ID] = e
	m.mu.Unlock()
	return e
}

// LoadChat returns the chat with the given id, loading and registering it
// first when needed. An id unknown to the store starts an empty chat.
func (m *Manager) LoadChat(ctx context.Context, id string, opts ChatOptions) (*model.ChatContext, error) {
	m.mu.Lock()
	e, ok := m.chats[id]
	m.mu.Unlock()
	if ok {
		return e.snapshot(), nil
	}

	c, err := m.store.LoadChat(ctx, id)
	if errors.Is(err, model.ErrChatNotFound) {
		c = model.NewChatContext(id, m.opts.Now())
	} else if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", id, err)
	}

	e = m.register(c, opts, m.opts.Now())
	m.saveState(ctx)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Loaded chat %s (%d pairs)", id, c.History.Len())
	}
	return e.snapshot(), nil
}

// EmptyChat registers a new chat with a fresh id.
func (m *Manager) EmptyChat(ctx context.Context, opts ChatOptions) *model.ChatContext {
	now := m.opts.Now()
	e := m.register(model.NewChatContext(m.opts.NewID(), now), opts, now)
	m.saveState(ctx)
	return e.snapshot()
}

// UnloadChat cancels any running work on the chat and drops it from the
// registry. Unknown ids are ignored.
func (m *Manager) UnloadChat(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.chats[id]
	delete(m.chats, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.action != nil {
		e.action.Cancel()
	}
	e.request = nil
	e.processing = false
	e.mu.Unlock()

	e.persistMu.Lock()
	e.removed = true
	e.persistMu.Unlock()

	m.saveState(ctx)
}

// DeleteChat unloads a chat and removes it from the store.
func (m *Manager) DeleteChat(ctx context.Context, id string) error {
	m.UnloadChat(ctx, id)
	if err := m.store.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	return nil
}

// Context returns a snapshot of a loaded chat.
func (m *Manager) Context(id string) (*model.ChatContext, bool) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, false
	}
	return e.snapshot(), true
}

// Status returns the request state of a loaded chat.
func (m *Manager) Status(id string) (Status, bool) {
	e, err := m.lookup(id)
	if err != nil {
		return Status{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Processing:   e.processing,
		Request:      e.request,
		Retries:      e.retries,
		Warnings:     append([]string(nil), e.warnings...),
		UphurrySteps: e.uphurrySteps,
	}, true
}

// ChatIDs returns the ids of the loaded chats.
func (m *Manager) ChatIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.chats))
	for id := range m.chats {
		ids = append(ids, id)
	}
	return ids
}

// SetChatRequest makes req the pending request of the chat and starts
// working on it. It returns false with a *model.ChatAlreadyProcessingError
// while another request is pending; that request is left untouched.
func (m *Manager) SetChatRequest(ctx context.Context, id string, req *model.ChatRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	e, err := m.lookup(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return false, &model.ChatAlreadyProcessingError{ID: id}
	}
	e.request = req
	e.processing = true
	e.retries = 0
	e.uphurrySteps = 0
	hadWarnings := len(e.warnings) > 0
	e.warnings = nil
	e.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Chat %s accepted %s request", id, req.Type)
	}

	m.saveState(ctx)
	m.emitProcessing(id, true)
	if hadWarnings {
		m.emitWarnings(id, nil)
	}
	m.triggerCheck(e)
	return true, nil
}

// CancelChat stops the running action of the chat, drops its pending
// request and releases it for a new one. The chat stays loaded.
func (m *Manager) CancelChat(ctx context.Context, id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.action != nil {
		e.action.Cancel()
	}
	wasProcessing := e.processing
	e.request = nil
	e.processing = false
	e.uphurrySteps = 0
	e.mu.Unlock()

	m.saveState(ctx)
	m.persist(ctx, e)
	if wasProcessing {
		m.emitProcessing(id, false)
	}
	return nil
}

// finishRequest releases the chat once req is done. A request replaced or
// cancelled in the meantime is left alone.
func (m *Manager) finishRequest(ctx context.Context, e *entry, req *model.ChatRequest, cause error) {
	e.mu.Lock()
	if e.request != req {
		e.mu.Unlock()
		return
	}
	e.request = nil
	e.processing = false
	e.uphurrySteps = 0
	e.mu.Unlock()

	m.saveState(ctx)
	m.emitProcessing(e.id, false)
	m.emitFinished(e.id, cause)
}

// saveState persists the registry snapshot.
func (m *Manager) saveState(ctx context.Context) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.mu.Lock()
	ongoing := make([]model.OngoingChatMeta, 0, len(m.chats))
	for _, e := range m.chats {
		e.mu.Lock()
		ongoing = append(ongoing, model.OngoingChatMeta{
			ID:        e.id,
			StartedAt: e.startedAt,
			Request:   e.request,
		})
		e.mu.Unlock()
	}
	m.mu.Unlock()

	if err := m.store.SaveSessionState(context.WithoutCancel(ctx), ongoing); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Failed to save session state: %v", err)
	}
}

// persist writes the chat's changed pairs and index record.
func (m *Manager) persist(ctx context.Context, e *entry) {
	ctx = context.WithoutCancel(ctx)

	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if e.removed {
		return
	}

	e.mu.Lock()
	meta := e.chat.ChatMeta
	history := e.chat.History.Clone()
	e.mu.Unlock()

	if err := m.store.SaveHistory(ctx, e.id, history, e.persisted); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Session] Failed to save messages of chat %s: %v", e.id, err)
		}
		return
	}
	e.persisted = history.Len()

	if err := m.store.SaveChatMeta(ctx, meta); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Session] Failed to save chat %s: %v", e.id, err)
	}
}
