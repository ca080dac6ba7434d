package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"otchat/config"
	"otchat/model"
)

// Collection names.
const (
	CollectionChats   = "chats"
	CollectionSession = "session_state"
	CollectionMemory  = "memory"

	sessionStateID = "ongoing"
)

// MessagesCollection names the collection holding the pairs of one chat.
func MessagesCollection(chatID string) string {
	return "messages:" + chatID
}

// pairID keeps pair records ordered by index when sorted as strings.
func pairID(index int) string {
	return fmt.Sprintf("%08d", index)
}

// ChatStore reads and writes chats through a Store.
type ChatStore struct {
	store Store
}

func NewChatStore(store Store) *ChatStore {
	return &ChatStore{store: store}
}

// Close closes the underlying store.
func (c *ChatStore) Close() error {
	return c.store.Close()
}

func (c *ChatStore) putJSON(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, id, err)
	}
	return c.store.Put(ctx, collection, id, data)
}

func (c *ChatStore) getJSON(ctx context.Context, collection, id string, v any) (bool, error) {
	data, ok, err := c.store.Get(ctx, collection, id)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// SaveChatMeta writes the index record of a chat.
func (c *ChatStore) SaveChatMeta(ctx context.Context, meta model.ChatMeta) error {
	return c.putJSON(ctx, CollectionChats, meta.ID, meta)
}

// GetChatMeta returns the index record of a chat.
func (c *ChatStore) GetChatMeta(ctx context.Context, id string) (model.ChatMeta, bool, error) {
	var meta model.ChatMeta
	ok, err := c.getJSON(ctx, CollectionChats, id, &meta)
	return meta, ok, err
}

// ListChats returns every chat, most recently updated first.
func (c *ChatStore) ListChats(ctx context.Context) ([]model.ChatMeta, error) {
	records, err := c.store.GetAll(ctx, CollectionChats)
	if err != nil {
		return nil, err
	}

	chats := make([]model.ChatMeta, 0, len(records))
	for _, r := range records {
		var meta model.ChatMeta
		if err := json.Unmarshal(r.Data, &meta); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Storage] Skipping corrupted chat record %s: %v", r.ID, err)
			}
			continue
		}
		chats = append(chats, meta)
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// SaveMessage writes the pair at index of a chat.
func (c *ChatStore) SaveMessage(ctx context.Context, chatID string, index int, pair model.MsgPair) error {
	return c.putJSON(ctx, MessagesCollection(chatID), pairID(index), pair)
}

// SaveHistory writes the pairs of h that may have changed since persisted
// pairs were stored (the last persisted one onwards) and deletes pairs past
// the end of h.
func (c *ChatStore) SaveHistory(ctx context.Context, chatID string, h model.ChatHistory, persisted int) error {
	start := persisted - 1
	if start < 0 {
		start = 0
	}
	if start > len(h.MsgPairs) {
		start = len(h.MsgPairs)
	}
	for i := start; i < len(h.MsgPairs); i++ {
		if err := c.SaveMessage(ctx, chatID, i, h.MsgPairs[i]); err != nil {
			return err
		}
	}
	for i := len(h.MsgPairs); i < persisted; i++ {
		if err := c.store.Delete(ctx, MessagesCollection(chatID), pairID(i)); err != nil {
			return err
		}
	}
	return nil
}

// LoadHistory returns the stored pairs of a chat in order.
func (c *ChatStore) LoadHistory(ctx context.Context, chatID string) (model.ChatHistory, error) {
	records, err := c.store.GetAll(ctx, MessagesCollection(chatID))
	if err != nil {
		return model.ChatHistory{}, err
	}

	var h model.ChatHistory
	for _, r := range records {
		if _, err := strconv.Atoi(r.ID); err != nil {
			continue
		}
		var pair model.MsgPair
		if err := json.Unmarshal(r.Data, &pair); err != nil {
			return model.ChatHistory{}, fmt.Errorf("failed to unmarshal message %s of chat %s: %w", r.ID, chatID, err)
		}
		h.MsgPairs = append(h.MsgPairs, pair)
	}
	return h, nil
}

// LoadChat returns a full chat. A chat without an index record is reported
// as *model.ChatNotFoundError.
func (c *ChatStore) LoadChat(ctx context.Context, id string) (*model.ChatContext, error) {
	meta, ok, err := c.GetChatMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.ChatNotFoundError{ID: id}
	}
	h, err := c.LoadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ChatContext{ChatMeta: meta, History: h}, nil
}

// DeleteChat removes a chat's index record and messages.
func (c *ChatStore) DeleteChat(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, CollectionChats, id); err != nil {
		return err
	}
	return c.store.Clear(ctx, MessagesCollection(id))
}

// SaveSessionState writes the snapshot of ongoing chats.
func (c *ChatStore) SaveSessionState(ctx context.Context, ongoing []model.OngoingChatMeta) error {
	if ongoing == nil {
		ongoing = []model.OngoingChatMeta{}
	}
	return c.putJSON(ctx, CollectionSession, sessionStateID, ongoing)
}

// LoadSessionState returns the snapshot of ongoing chats.
func (c *ChatStore) LoadSessionState(ctx context.Context) ([]model.OngoingChatMeta, error) {
	var ongoing []model.OngoingChatMeta
	if _, err := c.getJSON(ctx, CollectionSession, sessionStateID, &ongoing); err != nil {
		return nil, err
	}
	return ongoing, nil
}

type memoryRecord struct {
	Fact string `json:"fact"`
}

// Memory returns the remembered facts about the user.
func (c *ChatStore) Memory(ctx context.Context) ([]string, error) {
	records, err := c.store.GetAll(ctx, CollectionMemory)
	if err != nil {
		return nil, err
	}
	facts := make([]string, 0, len(records))
	for _, r := range records {
		var m memoryRecord
		if err := json.Unmarshal(r.Data, &m); err == nil && m.Fact != "" {
			facts = append(facts, m.Fact)
		}
	}
	return facts, nil
}

// AddMemory stores new facts. Record ids are time ordered so Memory returns
// facts oldest first.
func (c *ChatStore) AddMemory(ctx context.Context, facts ...string) error {
	for _, fact := range facts {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate memory id: %w", err)
		}
		if err := c.putJSON(ctx, CollectionMemory, id.String(), memoryRecord{Fact: fact}); err != nil {
			return err
		}
	}
	return nil
}

// ClearMemory forgets every fact.
func (c *ChatStore) ClearMemory(ctx context.Context) error {
	return c.store.Clear(ctx, CollectionMemory)
}
