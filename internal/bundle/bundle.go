// Package bundle exports and imports configuration subsets. Sharing the
// files is someone else's concern; this package only guarantees that an
// imported bundle passes the exact validation interactive CRUD applies, so
// a round trip reproduces identical matching and verdict behavior.
package bundle

import (
	"fmt"

	"gitid/internal/identity"
	"gitid/internal/pattern"
	"gitid/internal/policy"
	"gitid/internal/remote"

	"gopkg.in/yaml.v3"
)

// Bundle is a shareable subset of the configuration. Accounts travel
// optionally; patterns, policies and mappings reference them by id.
type Bundle struct {
	Version  string                `yaml:"version"`
	Accounts []identity.Account    `yaml:"accounts,omitempty"`
	Patterns []pattern.Pattern     `yaml:"patterns,omitempty"`
	Policies []policy.BranchPolicy `yaml:"policies,omitempty"`
	Mappings []remote.Mapping      `yaml:"mappings,omitempty"`
}

// CurrentVersion is the bundle schema version written by Export.
const CurrentVersion = "1"

// Export serializes the given records as a YAML bundle.
func Export(b Bundle) ([]byte, error) {
	b.Version = CurrentVersion
	out, err := yaml.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	return out, nil
}

// Import parses and validates a bundle against the given account registry.
// Validation is all-or-nothing per kind: one bad record rejects the whole
// bundle, and nothing is inserted by this function — the caller merges the
// returned records into its registries and persists them.
//
// Records referencing unknown accounts are rejected unless the bundle
// itself carries the account. Bundled accounts are validated as a registry
// of their own before anything referencing them is checked.
func Import(data []byte, accounts *identity.Registry) (Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("failed to parse bundle: %w", err)
	}

	if err := identity.ValidateAllAccounts(b.Accounts); err != nil {
		return Bundle{}, fmt.Errorf("bundle accounts invalid: %w", err)
	}

	// Reference checks run against the union of the local registry and the
	// accounts the bundle brings along.
	checker := unionChecker{registry: accounts, bundled: make(map[string]bool, len(b.Accounts))}
	for _, a := range b.Accounts {
		checker.bundled[a.ID] = true
	}

	if err := pattern.ValidateAllPatterns(b.Patterns, checker); err != nil {
		return Bundle{}, fmt.Errorf("bundle patterns invalid: %w", err)
	}
	if err := policy.ValidateAllPolicies(b.Policies, checker); err != nil {
		return Bundle{}, fmt.Errorf("bundle policies invalid: %w", err)
	}
	if err := remote.ValidateAllMappings(b.Mappings); err != nil {
		return Bundle{}, fmt.Errorf("bundle mappings invalid: %w", err)
	}
	for i, m := range b.Mappings {
		if !checker.Exists(m.AccountID) {
			return Bundle{}, fmt.Errorf("bundle mapping[%d] references unknown account %q", i, m.AccountID)
		}
	}

	return b, nil
}

// unionChecker answers existence checks against the local registry plus
// the accounts carried by the bundle itself.
type unionChecker struct {
	registry *identity.Registry
	bundled  map[string]bool
}

func (u unionChecker) Exists(id string) bool {
	if u.bundled[id] {
		return true
	}
	return u.registry != nil && u.registry.Exists(id)
}
