package store

import (
	"sync"

	"gitid/internal/identity"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"
)

// MemStore is an in-memory Store used by tests and by callers that manage
// their own persistence.
type MemStore struct {
	mu       sync.Mutex
	accounts []identity.Account
	patterns []pattern.Pattern
	policies []policy.BranchPolicy
	mappings []remote.Mapping
	projects []project.Project
	settings Settings
	hasSet   bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (ms *MemStore) LoadAccounts() ([]identity.Account, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]identity.Account(nil), ms.accounts...), nil
}

func (ms *MemStore) SaveAccounts(accounts []identity.Account) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.accounts = append([]identity.Account(nil), accounts...)
	return nil
}

func (ms *MemStore) LoadPatterns() ([]pattern.Pattern, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]pattern.Pattern(nil), ms.patterns...), nil
}

func (ms *MemStore) SavePatterns(patterns []pattern.Pattern) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.patterns = append([]pattern.Pattern(nil), patterns...)
	return nil
}

func (ms *MemStore) LoadPolicies() ([]policy.BranchPolicy, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]policy.BranchPolicy(nil), ms.policies...), nil
}

func (ms *MemStore) SavePolicies(policies []policy.BranchPolicy) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.policies = append([]policy.BranchPolicy(nil), policies...)
	return nil
}

func (ms *MemStore) LoadMappings() ([]remote.Mapping, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]remote.Mapping(nil), ms.mappings...), nil
}

func (ms *MemStore) SaveMappings(mappings []remote.Mapping) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.mappings = append([]remote.Mapping(nil), mappings...)
	return nil
}

func (ms *MemStore) LoadProjects() ([]project.Project, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]project.Project(nil), ms.projects...), nil
}

func (ms *MemStore) SaveProjects(projects []project.Project) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.projects = append([]project.Project(nil), projects...)
	return nil
}

func (ms *MemStore) LoadSettings() (Settings, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.hasSet {
		return DefaultSettings(), nil
	}
	return ms.settings, nil
}

func (ms *MemStore) SaveSettings(s Settings) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.settings = s
	ms.hasSet = true
	return nil
}
