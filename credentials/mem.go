package credentials

import (
	"sort"
	"sync"
)

// MemStore is an in-memory credential store. It backs tests and any caller
// that provisions secrets programmatically for the life of the process.
type MemStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{secrets: make(map[string]string)}
}

func memKey(provider, account string) string {
	return provider + "/" + account
}

func (s *MemStore) Resolve(provider, account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if secret, ok := s.secrets[memKey(provider, account)]; ok {
		return secret, nil
	}
	if account != "" {
		if secret, ok := s.secrets[memKey(provider, "")]; ok {
			return secret, nil
		}
	}
	return "", &MissingError{Provider: provider, Account: account}
}

func (s *MemStore) Store(provider, account, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[memKey(provider, account)] = secret
	return nil
}

func (s *MemStore) Delete(provider, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, memKey(provider, account))
	return nil
}

func (s *MemStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.secrets))
	for k := range s.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
