package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps each collection in a directory and each record in a JSON
// file, the layout otchat used before SQLite.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	// 0700 - user-only access
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) collectionDir(collection string) string {
	return filepath.Join(s.dir, url.QueryEscape(collection))
}

func (s *FileStore) recordPath(collection, id string) string {
	return filepath.Join(s.collectionDir(collection), url.QueryEscape(id)+".json")
}

func (s *FileStore) Get(_ context.Context, collection, id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.recordPath(collection, id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record file: %w", err)
	}
	return data, true, nil
}

func (s *FileStore) Put(_ context.Context, collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.collectionDir(collection)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	// Write then rename so readers never see a partial record. 0600 -
	// records contain conversation history.
	path := s.recordPath(collection, id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

func (s *FileStore) GetAll(_ context.Context, collection string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.collectionDir(collection))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := url.QueryUnescape(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.collectionDir(collection), entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		records = append(records, Record{ID: id, Data: data})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *FileStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.recordPath(collection, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.collectionDir(collection)); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
