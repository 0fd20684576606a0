// Package signing resolves account signing key references. Key management
// itself stays out of scope; the core only dereferences "keyring:<name>"
// entries through the OS credential store and passes everything else
// through verbatim (key ids and file paths are git's business).
package signing

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// Service name for the OS credential store.
	keyService = "gitid"

	// KeyringPrefix marks a signing key reference resolved through the OS
	// credential store instead of being used verbatim.
	KeyringPrefix = "keyring:"
)

// KeyStore resolves and manages named signing key references.
type KeyStore interface {
	// Resolve dereferences a signing key reference. Plain references
	// (key ids, file paths) are returned unchanged; "keyring:<name>"
	// references are looked up in the credential store.
	Resolve(ref string) (string, error)

	// StoreKey saves a named signing key value in the credential store.
	StoreKey(name, value string) error

	// DeleteKey removes a named signing key from the credential store.
	// Deleting a missing key is not an error.
	DeleteKey(name string) error

	// HasKey checks whether a named key is stored without retrieving it.
	HasKey(name string) bool
}

// KeyringStore is the OS credential store backed implementation.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a key store using the OS credential store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyService}
}

// Resolve dereferences a signing key reference.
func (ks *KeyringStore) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("signing key reference cannot be empty")
	}
	if !strings.HasPrefix(ref, KeyringPrefix) {
		return ref, nil
	}

	name := strings.TrimPrefix(ref, KeyringPrefix)
	if name == "" {
		return "", fmt.Errorf("signing key reference %q has no key name after %q", ref, KeyringPrefix)
	}

	value, err := keyring.Get(ks.service, name)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", fmt.Errorf("no signing key %q in the credential store - store one with 'gitid account set-key'", name)
		}
		return "", fmt.Errorf("failed to retrieve signing key from credential store: %w", err)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("stored signing key %q is empty - store it again with 'gitid account set-key'", name)
	}
	return value, nil
}

// StoreKey saves a named signing key value in the credential store.
func (ks *KeyringStore) StoreKey(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("signing key name cannot be empty")
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("signing key value cannot be empty")
	}
	if err := keyring.Set(ks.service, name, value); err != nil {
		return fmt.Errorf("failed to store signing key in credential store: %w", err)
	}
	return nil
}

// DeleteKey removes a named signing key from the credential store.
func (ks *KeyringStore) DeleteKey(name string) error {
	err := keyring.Delete(ks.service, name)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete signing key from credential store: %w", err)
	}
	return nil
}

// HasKey checks whether a named key is stored without retrieving it.
func (ks *KeyringStore) HasKey(name string) bool {
	_, err := keyring.Get(ks.service, name)
	return err == nil
}
