// Package identity provides the account model and the in-memory account
// registry used by every resolution component.
package identity

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownAccount indicates a referenced account does not exist.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrAccountExists indicates an account with that ID already exists.
	ErrAccountExists = errors.New("account already exists")

	// ErrNoAccounts indicates the registry holds no accounts at all.
	ErrNoAccounts = errors.New("no accounts configured")
)

// Registry is a thread-safe in-memory view of the configured accounts.
// It is built from the records the ConfigStore loads and is the single
// authority every write boundary validates account references against.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewRegistry creates a registry from the given accounts. The slice is
// validated as a whole; an invalid slice never becomes a registry.
func NewRegistry(accounts []Account) (*Registry, error) {
	if err := ValidateAllAccounts(accounts); err != nil {
		return nil, err
	}

	m := make(map[string]*Account, len(accounts))
	for i := range accounts {
		a := accounts[i]
		m[a.ID] = &a
	}
	return &Registry{accounts: m}, nil
}

// Get returns a copy of the account with the given ID.
func (r *Registry) Get(id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return *a, nil
}

// Exists reports whether an account with the given ID is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.accounts[id]
	return ok
}

// All returns copies of all accounts, ordered by priority then ID for
// deterministic iteration.
func (r *Registry) All() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Default returns the account flagged as default. When none is flagged,
// resolution falls back to the account with the lowest priority number,
// ties broken by ID.
func (r *Registry) Default() (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.accounts) == 0 {
		return Account{}, ErrNoAccounts
	}

	var fallback *Account
	for _, a := range r.accounts {
		if a.IsDefault {
			return *a, nil
		}
		if fallback == nil ||
			a.Priority < fallback.Priority ||
			(a.Priority == fallback.Priority && a.ID < fallback.ID) {
			fallback = a
		}
	}
	return *fallback, nil
}

// Add inserts a new account. Returns ErrAccountExists if the ID is taken.
// Flagging the new account as default clears the flag on any current default.
func (r *Registry) Add(a Account) error {
	if err := ValidateAccount(a); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.ID)
	}
	for _, existing := range r.accounts {
		if existing.DisplayName == a.DisplayName {
			return fmt.Errorf("%w: display name %q is taken", ErrAccountExists, a.DisplayName)
		}
	}

	if a.IsDefault {
		r.clearDefaultLocked()
	}
	r.accounts[a.ID] = &a
	return nil
}

// Update replaces an existing account. Returns ErrUnknownAccount if the ID
// is not registered. Flagging the account as default clears any other flag.
func (r *Registry) Update(a Account) error {
	if err := ValidateAccount(a); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, a.ID)
	}
	if a.IsDefault {
		r.clearDefaultLocked()
	}
	r.accounts[a.ID] = &a
	return nil
}

// Remove deletes an account by ID.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	delete(r.accounts, id)
	return nil
}

// RecordUsage increments the account's usage counter by exactly one and
// stamps the last-used time. This is the only mutation the resolution core
// performs on accounts, and only as the terminal step of an accepted
// suggestion.
func (r *Registry) RecordUsage(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	a.UsageCount++
	a.LastUsedAt = at.UTC().Unix()
	return nil
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// clearDefaultLocked removes the default flag from every account.
// Caller must hold the write lock.
func (r *Registry) clearDefaultLocked() {
	for _, a := range r.accounts {
		a.IsDefault = false
	}
}
