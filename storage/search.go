package storage

import (
	"context"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"otchat/model"
)

const previewWidth = 100

// MessageMatch is a message containing a search query.
type MessageMatch struct {
	ChatID    string
	ChatTitle string
	PairIndex int
	Role      string
	Preview   string
	Timestamp time.Time
}

// SearchIndex searches across stored chats.
type SearchIndex struct {
	chats *ChatStore
}

func NewSearchIndex(chats *ChatStore) *SearchIndex {
	return &SearchIndex{chats: chats}
}

type chatTitles []model.ChatMeta

func (c chatTitles) String(i int) string { return c[i].Title }
func (c chatTitles) Len() int            { return len(c) }

// FindChats fuzzy-matches query against chat titles, best match first. An
// empty query returns every chat.
func (si *SearchIndex) FindChats(ctx context.Context, query string) ([]model.ChatMeta, error) {
	chats, err := si.chats.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return chats, nil
	}

	matches := fuzzy.FindFrom(query, chatTitles(chats))
	result := make([]model.ChatMeta, 0, len(matches))
	for _, m := range matches {
		result = append(result, chats[m.Index])
	}
	return result, nil
}

// SearchMessages returns the messages whose prose contains query, case
// insensitively, newest chat first.
func (si *SearchIndex) SearchMessages(ctx context.Context, query string) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	chats, err := si.chats.ListChats(ctx)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	var matches []MessageMatch
	for _, meta := range chats {
		h, err := si.chats.LoadHistory(ctx, meta.ID)
		if err != nil {
			continue
		}
		for i, pair := range h.MsgPairs {
			for _, msg := range []*model.Msg{pair.User, pair.Assistant} {
				if msg == nil {
					continue
				}
				text := model.PlainText(msg.Parts)
				if !strings.Contains(strings.ToLower(text), queryLower) {
					continue
				}
				matches = append(matches, MessageMatch{
					ChatID:    meta.ID,
					ChatTitle: meta.Title,
					PairIndex: i,
					Role:      msg.Role,
					Preview:   Preview(text, previewWidth),
					Timestamp: msg.Timestamp,
				})
			}
		}
	}
	return matches, nil
}

// Preview flattens text to one line truncated to width display cells.
func Preview(text string, width int) string {
	flat := strings.Join(strings.Fields(text), " ")
	return runewidth.Truncate(flat, width, "...")
}
