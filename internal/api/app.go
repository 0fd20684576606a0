// Package api assembles the resolution core and exposes it through the
// single inbound boundary: a request/response contract with no knowledge
// of windows, menus or terminal formatting.
package api

import (
	"fmt"
	"path/filepath"

	"gitid/internal/audit"
	"gitid/internal/enforcer"
	"gitid/internal/identity"
	"gitid/internal/logging"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"
	"gitid/internal/signing"
	"gitid/internal/store"
	"gitid/internal/suggest"
)

// App owns the loaded registries and the engines built over them. One App
// corresponds to one short-lived invocation; nothing inside it outlives
// the process.
type App struct {
	Store    store.Store
	Settings store.Settings

	Accounts *identity.Registry
	Projects *project.Registry
	Patterns []pattern.Pattern

	Matcher  *pattern.Matcher
	Suggest  *suggest.Engine
	Remotes  *remote.Manager
	Policies *policy.Engine
	Enforcer *enforcer.Enforcer

	Keys   signing.KeyStore
	Sink   audit.Sink
	Logger *logging.AppLogger
}

// Load reads every registry from the store and wires the engines. Stored
// records were validated on the way in; a load failure here means the
// store was edited by hand and is reported, not repaired.
func Load(st store.Store, sink audit.Sink, logger *logging.AppLogger) (*App, error) {
	settings, err := st.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	accounts, err := st.LoadAccounts()
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	accountReg, err := identity.NewRegistry(accounts)
	if err != nil {
		return nil, fmt.Errorf("building account registry: %w", err)
	}

	projects, err := st.LoadProjects()
	if err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}
	projectReg, err := project.NewRegistry(projects)
	if err != nil {
		return nil, fmt.Errorf("building project registry: %w", err)
	}

	patterns, err := st.LoadPatterns()
	if err != nil {
		return nil, fmt.Errorf("loading patterns: %w", err)
	}

	policies, err := st.LoadPolicies()
	if err != nil {
		return nil, fmt.Errorf("loading policies: %w", err)
	}

	mappings, err := st.LoadMappings()
	if err != nil {
		return nil, fmt.Errorf("loading mappings: %w", err)
	}

	if sink == nil {
		sink = audit.NopSink{}
	}

	matcher := pattern.NewMatcher(patterns, logger)
	engine, err := suggest.NewEngine(matcher, accountReg, projectReg, settings.Weights, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("building suggestion engine: %w", err)
	}

	remoteMgr, err := remote.NewManager(mappings, accountReg, projectReg, engine, logger)
	if err != nil {
		return nil, fmt.Errorf("building remote manager: %w", err)
	}

	policyEngine := policy.NewEngine(policies, logger)

	enf := enforcer.New(accountReg, projectReg, engine, remoteMgr, policyEngine, sink, logger)
	enf.ApplySettings(settings)

	return &App{
		Store:    st,
		Settings: settings,
		Accounts: accountReg,
		Projects: projectReg,
		Patterns: patterns,
		Matcher:  matcher,
		Suggest:  engine,
		Remotes:  remoteMgr,
		Policies: policyEngine,
		Enforcer: enf,
		Keys:     signing.NewKeyringStore(),
		Sink:     sink,
		Logger:   logger,
	}, nil
}

// LoadDefault opens the standard file store and audit trail.
func LoadDefault(logger *logging.AppLogger) (*App, error) {
	st := store.NewFileStore("", logger)
	settings, err := st.LoadSettings()
	if err != nil {
		return nil, err
	}

	var sink audit.Sink = audit.NopSink{}
	if settings.AuditLog {
		sink = audit.NewFileSink(filepath.Join(store.DefaultStateDir(), "audit.jsonl"), logger)
	}
	return Load(st, sink, logger)
}

// saveAccounts persists the account registry.
func (a *App) saveAccounts() error {
	return a.Store.SaveAccounts(a.Accounts.All())
}

// saveProjects persists the project registry.
func (a *App) saveProjects() error {
	return a.Store.SaveProjects(a.Projects.All())
}

// savePatterns persists the pattern slice and rebuilds the matcher so
// subsequent operations in the same invocation see the new rules. The
// remote manager captured the old engine at load time, so it is rebuilt
// too; long-lived callers of the boundary would otherwise resolve against
// stale patterns.
func (a *App) savePatterns() error {
	if err := a.Store.SavePatterns(a.Patterns); err != nil {
		return err
	}
	a.Matcher = pattern.NewMatcher(a.Patterns, a.Logger)
	engine, err := suggest.NewEngine(a.Matcher, a.Accounts, a.Projects, a.Settings.Weights, a.Sink, a.Logger)
	if err != nil {
		return err
	}
	a.Suggest = engine
	remotes, err := remote.NewManager(a.Remotes.Mappings(), a.Accounts, a.Projects, engine, a.Logger)
	if err != nil {
		return err
	}
	a.Remotes = remotes
	return nil
}

// savePolicies persists the policy engine's rules.
func (a *App) savePolicies() error {
	return a.Store.SavePolicies(a.Policies.Policies())
}

// saveMappings persists the remote manager's mappings.
func (a *App) saveMappings() error {
	return a.Store.SaveMappings(a.Remotes.Mappings())
}
