package statestore

import "sync"

type memoryPointer struct {
	devboxID    string
	url         string
	blueprintID string
}

// MemoryStore is an in-memory Store, used in tests and as the backend of
// last resort when no persistent store is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	pointers map[string]memoryPointer
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pointers: make(map[string]memoryPointer)}
}

func (s *MemoryStore) Get(role string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointers[role].devboxID, nil
}

func (s *MemoryStore) Set(role, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pointers[role]
	p.devboxID = id
	s.pointers[role] = p
	return nil
}

func (s *MemoryStore) GetURL(role string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointers[role].url, nil
}

func (s *MemoryStore) SetURL(role, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pointers[role]
	p.url = url
	s.pointers[role] = p
	return nil
}

func (s *MemoryStore) GetBlueprintID(role string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointers[role].blueprintID, nil
}

func (s *MemoryStore) SetBlueprintID(role, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pointers[role]
	p.blueprintID = id
	s.pointers[role] = p
	return nil
}
