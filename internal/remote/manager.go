// Package remote binds git remotes to accounts per project and resolves
// which account applies for a remote-qualified operation.
package remote

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/project"
	"gitid/internal/suggest"
)

var (
	// ErrUnknownRemote indicates the remote name is not configured on the
	// project.
	ErrUnknownRemote = errors.New("unknown remote")

	// ErrUnknownAccount indicates the mapping references an account that is
	// not in the registry.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrNoResolution indicates neither a mapping nor a suggestion could
	// name an account for the operation.
	ErrNoResolution = errors.New("no account resolved for remote")
)

// Direction qualifies a remote operation.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// IsValid checks if the direction is a supported value.
func (d Direction) IsValid() bool {
	return d == DirectionPush || d == DirectionPull
}

// Mapping binds one remote of one project to an account.
//
// Invariant: per project, at most one mapping carries IsDefaultPush and at
// most one carries IsDefaultPull. SetMapping maintains this atomically.
type Mapping struct {
	ProjectID     string `yaml:"project_id" json:"project_id"`
	RemoteName    string `yaml:"remote_name" json:"remote_name"`
	AccountID     string `yaml:"account_id" json:"account_id"`
	SignCommits   bool   `yaml:"sign_commits,omitempty" json:"sign_commits,omitempty"`
	IsDefaultPush bool   `yaml:"is_default_push,omitempty" json:"is_default_push,omitempty"`
	IsDefaultPull bool   `yaml:"is_default_pull,omitempty" json:"is_default_pull,omitempty"`
}

// String returns a string representation of the mapping for logging.
func (m Mapping) String() string {
	return fmt.Sprintf("Mapping{Project: %s, Remote: %s, Account: %s, DefaultPush: %t, DefaultPull: %t}",
		m.ProjectID, m.RemoteName, m.AccountID, m.IsDefaultPush, m.IsDefaultPull)
}

// ValidateMapping checks structural correctness of a stored mapping.
func ValidateMapping(m Mapping) error {
	if strings.TrimSpace(m.ProjectID) == "" {
		return fmt.Errorf("mapping project ID cannot be empty")
	}
	if strings.TrimSpace(m.RemoteName) == "" {
		return fmt.Errorf("mapping remote name cannot be empty")
	}
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("mapping account ID cannot be empty")
	}
	return nil
}

// ValidateAllMappings validates a mapping list, enforcing the single
// default-push/default-pull invariant per project.
func ValidateAllMappings(mappings []Mapping) error {
	type key struct{ project, remote string }
	seen := make(map[key]bool, len(mappings))
	defaultPush := make(map[string]string) // project -> remote
	defaultPull := make(map[string]string)

	for i, m := range mappings {
		if err := ValidateMapping(m); err != nil {
			return fmt.Errorf("mapping[%d]: %w", i, err)
		}
		k := key{m.ProjectID, m.RemoteName}
		if seen[k] {
			return fmt.Errorf("duplicate mapping for project %s remote %q", m.ProjectID, m.RemoteName)
		}
		seen[k] = true

		if m.IsDefaultPush {
			if other, ok := defaultPush[m.ProjectID]; ok {
				return fmt.Errorf("project %s has two default-push remotes: %q and %q",
					m.ProjectID, other, m.RemoteName)
			}
			defaultPush[m.ProjectID] = m.RemoteName
		}
		if m.IsDefaultPull {
			if other, ok := defaultPull[m.ProjectID]; ok {
				return fmt.Errorf("project %s has two default-pull remotes: %q and %q",
					m.ProjectID, other, m.RemoteName)
			}
			defaultPull[m.ProjectID] = m.RemoteName
		}
	}
	return nil
}

// SetOptions carries the optional flags of a SetMapping call.
type SetOptions struct {
	SignCommits   bool
	IsDefaultPush bool
	IsDefaultPull bool
}

// Resolution is the outcome of ResolveForRemote.
type Resolution struct {
	AccountID   string `json:"account_id"`
	SignCommits bool   `json:"sign_commits"`
	// Source explains where the binding came from: "mapping",
	// "default-mapping" or "suggestion".
	Source string `json:"source"`
	// Suggestion is set when the resolution fell through to the suggestion
	// engine, so callers can surface confidence and ambiguity.
	Suggestion *suggest.Suggestion `json:"suggestion,omitempty"`
}

// Manager maps each git remote of a project to an account and signing
// preference.
type Manager struct {
	mu       sync.RWMutex
	mappings map[string]map[string]*Mapping // projectID -> remoteName -> mapping
	accounts *identity.Registry
	projects *project.Registry
	engine   *suggest.Engine
	logger   *logging.AppLogger
}

// NewManager creates a manager over the given mappings. The slice is
// validated as a whole; an invalid slice never becomes a manager.
func NewManager(mappings []Mapping, accounts *identity.Registry, projects *project.Registry,
	engine *suggest.Engine, logger *logging.AppLogger) (*Manager, error) {
	if err := ValidateAllMappings(mappings); err != nil {
		return nil, err
	}

	byProject := make(map[string]map[string]*Mapping)
	for i := range mappings {
		m := mappings[i]
		if byProject[m.ProjectID] == nil {
			byProject[m.ProjectID] = make(map[string]*Mapping)
		}
		byProject[m.ProjectID][m.RemoteName] = &m
	}

	return &Manager{
		mappings: byProject,
		accounts: accounts,
		projects: projects,
		engine:   engine,
		logger:   logger,
	}, nil
}

// SetMapping creates or replaces the binding of a remote to an account.
// Fails with ErrUnknownRemote when the remote is not configured on the
// project and ErrUnknownAccount when the account does not exist. Setting
// IsDefaultPush or IsDefaultPull atomically clears the flag on any other
// mapping of the same project; the invariant is maintained as a single
// write, not last-write-wins across fields.
func (mg *Manager) SetMapping(projectID, remoteName, accountID string, opts SetOptions) error {
	proj, err := mg.projects.Get(projectID)
	if err != nil {
		return err
	}
	if !proj.HasRemote(remoteName) {
		return fmt.Errorf("%w: project %s has no remote %q", ErrUnknownRemote, projectID, remoteName)
	}
	if !mg.accounts.Exists(accountID) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()

	if mg.mappings[projectID] == nil {
		mg.mappings[projectID] = make(map[string]*Mapping)
	}
	if opts.IsDefaultPush {
		for _, m := range mg.mappings[projectID] {
			m.IsDefaultPush = false
		}
	}
	if opts.IsDefaultPull {
		for _, m := range mg.mappings[projectID] {
			m.IsDefaultPull = false
		}
	}

	mg.mappings[projectID][remoteName] = &Mapping{
		ProjectID:     projectID,
		RemoteName:    remoteName,
		AccountID:     accountID,
		SignCommits:   opts.SignCommits,
		IsDefaultPush: opts.IsDefaultPush,
		IsDefaultPull: opts.IsDefaultPull,
	}

	if mg.logger != nil {
		mg.logger.Info("Remote mapping set",
			"project_id", projectID,
			"remote", remoteName,
			"account_id", accountID,
			"default_push", opts.IsDefaultPush,
			"default_pull", opts.IsDefaultPull,
		)
	}
	return nil
}

// GetMapping returns the explicit mapping for a remote, if present.
func (mg *Manager) GetMapping(projectID, remoteName string) (Mapping, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	m, ok := mg.mappings[projectID][remoteName]
	if !ok {
		return Mapping{}, false
	}
	return *m, true
}

// Mappings returns all mappings ordered by project then remote name, for
// persistence and export.
func (mg *Manager) Mappings() []Mapping {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	var out []Mapping
	for _, remotes := range mg.mappings {
		for _, m := range remotes {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].RemoteName < out[j].RemoteName
	})
	return out
}

// RemoveMapping deletes the binding of one remote.
func (mg *Manager) RemoveMapping(projectID, remoteName string) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if _, ok := mg.mappings[projectID][remoteName]; !ok {
		return fmt.Errorf("%w: project %s has no mapping for remote %q",
			ErrUnknownRemote, projectID, remoteName)
	}
	delete(mg.mappings[projectID], remoteName)
	return nil
}

// ResolveForRemote determines the account for a remote-qualified operation.
// Lookup order: explicit mapping for the named remote, then the project's
// directional default mapping, then the suggestion engine fed with the
// remote's URL. Fails with ErrUnknownRemote when the remote name is not
// present on the project.
func (mg *Manager) ResolveForRemote(projectID, remoteName string, direction Direction) (Resolution, error) {
	if !direction.IsValid() {
		return Resolution{}, fmt.Errorf("invalid direction %q (must be %q or %q)",
			direction, DirectionPush, DirectionPull)
	}

	proj, err := mg.projects.Get(projectID)
	if err != nil {
		return Resolution{}, err
	}
	remoteURL, hasRemote := proj.RemoteURLs[remoteName]
	if !hasRemote {
		return Resolution{}, fmt.Errorf("%w: project %s has no remote %q",
			ErrUnknownRemote, projectID, remoteName)
	}

	mg.mu.RLock()
	if m, ok := mg.mappings[projectID][remoteName]; ok {
		res := Resolution{AccountID: m.AccountID, SignCommits: m.SignCommits, Source: "mapping"}
		mg.mu.RUnlock()
		return res, nil
	}
	for _, m := range mg.mappings[projectID] {
		if (direction == DirectionPush && m.IsDefaultPush) ||
			(direction == DirectionPull && m.IsDefaultPull) {
			res := Resolution{AccountID: m.AccountID, SignCommits: m.SignCommits, Source: "default-mapping"}
			mg.mu.RUnlock()
			return res, nil
		}
	}
	mg.mu.RUnlock()

	if mg.engine == nil {
		return Resolution{}, fmt.Errorf("%w: project %s remote %q", ErrNoResolution, projectID, remoteName)
	}

	s, err := mg.engine.Suggest(projectID, pattern.MatchContext{Path: proj.Path, RemoteURL: remoteURL})
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: project %s remote %q: %v",
			ErrNoResolution, projectID, remoteName, err)
	}

	account, err := mg.accounts.Get(s.AccountID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		AccountID:   s.AccountID,
		SignCommits: account.HasSigningKey(),
		Source:      "suggestion",
		Suggestion:  s,
	}, nil
}
