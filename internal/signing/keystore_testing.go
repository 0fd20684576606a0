package signing

import (
	"fmt"
	"strings"
	"sync"
)

// MockKeyStore is an in-memory KeyStore for tests and for environments
// without an OS credential store (CI, containers).
type MockKeyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMockKeyStore creates an empty in-memory key store.
func NewMockKeyStore() *MockKeyStore {
	return &MockKeyStore{keys: make(map[string]string)}
}

// Resolve dereferences a signing key reference against the in-memory map.
func (ms *MockKeyStore) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("signing key reference cannot be empty")
	}
	if !strings.HasPrefix(ref, KeyringPrefix) {
		return ref, nil
	}

	name := strings.TrimPrefix(ref, KeyringPrefix)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	value, ok := ms.keys[name]
	if !ok {
		return "", fmt.Errorf("no signing key %q in the credential store", name)
	}
	return value, nil
}

// StoreKey saves a named signing key value.
func (ms *MockKeyStore) StoreKey(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("signing key name cannot be empty")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.keys[name] = value
	return nil
}

// DeleteKey removes a named signing key.
func (ms *MockKeyStore) DeleteKey(name string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.keys, name)
	return nil
}

// HasKey checks whether a named key is stored.
func (ms *MockKeyStore) HasKey(name string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, ok := ms.keys[name]
	return ok
}
