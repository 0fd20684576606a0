// Package store persists the configuration registries. Each record kind
// saves independently and atomically; the resolution core only ever sees
// fully written files.
package store

import (
	"gitid/internal/identity"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/project"
	"gitid/internal/remote"
	"gitid/internal/suggest"
)

// Kind names one independently persisted record collection.
type Kind string

const (
	KindAccounts Kind = "accounts"
	KindPatterns Kind = "patterns"
	KindPolicies Kind = "policies"
	KindMappings Kind = "mappings"
	KindProjects Kind = "projects"
)

// Settings are the persisted tunables that are configuration rather than
// records: scoring weights and hook behavior.
type Settings struct {
	// Weights are the suggestion scoring constants.
	Weights suggest.Weights `yaml:"weights"`
	// AutoFix lets the pre-commit hook rewrite the local identity to the
	// expected account instead of warning.
	AutoFix bool `yaml:"auto_fix"`
	// AuditLog enables the file-backed audit trail.
	AuditLog bool   `yaml:"audit_log"`
	Version  string `yaml:"version"`
	InitTime int64  `yaml:"init_time"`
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		Weights:  suggest.DefaultWeights(),
		AutoFix:  false,
		AuditLog: true,
		Version:  "1.0",
	}
}

// Store is the persistence boundary of the resolution core. Every method
// is atomic per kind: a load observes either the previous or the next save,
// never a torn write.
type Store interface {
	LoadAccounts() ([]identity.Account, error)
	SaveAccounts([]identity.Account) error

	LoadPatterns() ([]pattern.Pattern, error)
	SavePatterns([]pattern.Pattern) error

	LoadPolicies() ([]policy.BranchPolicy, error)
	SavePolicies([]policy.BranchPolicy) error

	LoadMappings() ([]remote.Mapping, error)
	SaveMappings([]remote.Mapping) error

	LoadProjects() ([]project.Project, error)
	SaveProjects([]project.Project) error

	LoadSettings() (Settings, error)
	SaveSettings(Settings) error
}
