package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// storeData is the JSON structure persisted by a MemoryStore.
type storeData struct {
	Entries map[string]string `json:"entries"`
	Updated string            `json:"updated"`
	Note    string            `json:"note"`
}

// MemoryStore keeps mapping entries in memory, optionally persisted to a
// JSON file so that consistency survives restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]string
	filePath string
	group    singleflight.Group
}

// NewMemoryStore creates a store. If filePath is non-empty, existing
// entries are loaded from it and every new entry is written back.
func NewMemoryStore(filePath string) *MemoryStore {
	s := &MemoryStore{
		entries:  make(map[string]string),
		filePath: filePath,
	}
	if filePath != "" {
		s.load()
	}
	return s
}

func (s *MemoryStore) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return // file does not exist yet, start fresh
	}
	var sd storeData
	if err := json.Unmarshal(data, &sd); err != nil {
		log.Warn("could not load mapping file", "path", s.filePath, "err", err)
		return
	}
	if sd.Entries != nil {
		s.entries = sd.Entries
	}
	log.Info("loaded mapping entries", "count", len(s.entries), "path", s.filePath)
}

// save writes the store to disk. Callers must hold at least a read lock.
func (s *MemoryStore) save() {
	if s.filePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		log.Warn("could not create mapping directory", "err", err)
		return
	}
	sd := storeData{
		Entries: s.entries,
		Updated: time.Now().Format(time.RFC3339),
		Note:    "key is valueKind:scope:scopeValue:originalValue",
	}
	data, err := json.MarshalIndent(sd, "", "  ")
	if err != nil {
		log.Warn("could not marshal mapping data", "err", err)
		return
	}
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		log.Warn("could not save mapping file", "path", s.filePath, "err", err)
	}
}

// GetOrCreate returns the committed replacement for key, generating and
// committing one if absent. Concurrent callers for the same key are
// collapsed so that exactly one generator runs.
func (s *MemoryStore) GetOrCreate(_ context.Context, key Key, gen Generator) (string, error) {
	k := key.String()

	s.mu.RLock()
	v, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	v2, err, _ := s.group.Do(k, func() (any, error) {
		s.mu.RLock()
		existing, ok := s.entries[k]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}
		fresh, err := gen()
		if err != nil {
			return "", fmt.Errorf("could not generate replacement value: %w", err)
		}
		s.mu.Lock()
		// A racer may have committed between the recheck and here; the
		// committed value always wins.
		if existing, ok := s.entries[k]; ok {
			s.mu.Unlock()
			return existing, nil
		}
		s.entries[k] = fresh
		s.save()
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v2.(string), nil
}

// Len returns the number of committed entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
