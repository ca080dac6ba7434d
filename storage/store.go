// Package storage persists chats behind a small key-value interface.
//
// A Store holds JSON records in named collections. Three backends exist:
// SQLite (the default), one JSON file per record, and memory (tests and
// throwaway sessions). ChatStore layers the chat collections on top.
package storage

import (
	"context"
	"fmt"

	"otchat/config"
)

// Record is one stored value.
type Record struct {
	ID   string
	Data []byte
}

// Store is a key-value store over named collections. Records of a
// collection are returned ordered by id.
type Store interface {
	// Get returns the record data and whether it exists.
	Get(ctx context.Context, collection, id string) ([]byte, bool, error)
	Put(ctx context.Context, collection, id string, data []byte) error
	GetAll(ctx context.Context, collection string) ([]Record, error)
	Delete(ctx context.Context, collection, id string) error
	// Clear removes every record of the collection.
	Clear(ctx context.Context, collection string) error
	Close() error
}

// Open returns the backend named by kind (config.StorageSQLite,
// config.StorageJSON or config.StorageMemory) rooted at dataDir.
func Open(kind, dataDir string) (Store, error) {
	switch kind {
	case config.StorageSQLite, "":
		s, err := NewSQLiteStore(config.DatabasePath(dataDir))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageJSON:
		s, err := NewFileStore(config.ChatsDir(dataDir))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
