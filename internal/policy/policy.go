package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidPolicyExpression indicates a branch pattern that does not
	// compile as a regular expression.
	ErrInvalidPolicyExpression = errors.New("invalid policy expression")

	// ErrUnknownAccount indicates the policy references an account that is
	// not in the registry.
	ErrUnknownAccount = errors.New("policy references unknown account")

	// ErrPolicyConflict indicates two strict policies require mutually
	// exclusive accounts for the same branch. Surfaced, never silently
	// resolved.
	ErrPolicyConflict = errors.New("policy conflict")
)

// Enforcement is the severity a policy applies with.
type Enforcement string

const (
	// EnforcementStrict blocks violating commits.
	EnforcementStrict Enforcement = "strict"
	// EnforcementWarning lets violating commits proceed with a warning.
	EnforcementWarning Enforcement = "warning"
	// EnforcementAdvisory is surfaced to the UI as a note and never gates.
	EnforcementAdvisory Enforcement = "advisory"
	// EnforcementOff keeps the rule on record for audit but inert.
	EnforcementOff Enforcement = "off"
)

// IsValid checks if the enforcement level is a supported value.
func (e Enforcement) IsValid() bool {
	switch e {
	case EnforcementStrict, EnforcementWarning, EnforcementAdvisory, EnforcementOff:
		return true
	}
	return false
}

// String returns the string representation of the enforcement level.
func (e Enforcement) String() string {
	return string(e)
}

// BranchPolicy constrains commits on branches matching BranchPattern.
//
// Fields:
//   - ID: Unique identifier (UUID, assigned on creation)
//   - BranchPattern: Regular expression matched against the branch name
//   - RequiredAccountID: When set, commits must use this account
//   - RequireSignedCommits: When true, commits must carry a valid signature
//   - RequireLinearHistory: Recorded on the verdict for the caller to check;
//     the engine does not hold the commit graph
//   - Enforcement: strict, warning, advisory or off
//   - AllowedUserIDs: When non-empty, the committing user must be a member
type BranchPolicy struct {
	ID                   string      `yaml:"id" json:"id"`
	BranchPattern        string      `yaml:"branch_pattern" json:"branch_pattern"`
	RequiredAccountID    string      `yaml:"required_account_id,omitempty" json:"required_account_id,omitempty"`
	RequireSignedCommits bool        `yaml:"require_signed_commits,omitempty" json:"require_signed_commits,omitempty"`
	RequireLinearHistory bool        `yaml:"require_linear_history,omitempty" json:"require_linear_history,omitempty"`
	Enforcement          Enforcement `yaml:"enforcement" json:"enforcement"`
	AllowedUserIDs       []string    `yaml:"allowed_user_ids,omitempty" json:"allowed_user_ids,omitempty"`
}

// Matches reports whether the policy applies to the given branch name.
// An uncompilable pattern never matches; validation keeps those out of the
// store, and match-time failures are reported by the engine.
func (p BranchPolicy) Matches(branch string) (bool, error) {
	re, err := regexp.Compile(p.BranchPattern)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrInvalidPolicyExpression, p.BranchPattern, err)
	}
	return re.MatchString(branch), nil
}

// allowsUser reports whether the user passes the allow list. An empty list
// allows everyone.
func (p BranchPolicy) allowsUser(userID string) bool {
	if len(p.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range p.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// String returns a string representation of the policy for logging.
func (p BranchPolicy) String() string {
	return fmt.Sprintf("BranchPolicy{ID: %s, Pattern: %q, Enforcement: %s, RequiredAccount: %s}",
		p.ID, p.BranchPattern, p.Enforcement, p.RequiredAccountID)
}

// AccountChecker is the subset of the account registry the policy package
// needs for reference validation.
type AccountChecker interface {
	Exists(id string) bool
}

// ValidatePolicy validates a branch policy for structural correctness,
// compiles its branch pattern, and checks account references. Records
// failing validation are rejected at the boundary and never reach the store.
func ValidatePolicy(p BranchPolicy, accounts AccountChecker) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("policy ID cannot be empty")
	}
	if strings.TrimSpace(p.BranchPattern) == "" {
		return fmt.Errorf("policy branch pattern cannot be empty")
	}
	if _, err := regexp.Compile(p.BranchPattern); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPolicyExpression, p.BranchPattern, err)
	}
	if !p.Enforcement.IsValid() {
		return fmt.Errorf("invalid enforcement level %q (must be %q, %q, %q or %q)",
			p.Enforcement, EnforcementStrict, EnforcementWarning, EnforcementAdvisory, EnforcementOff)
	}
	if p.RequiredAccountID != "" && accounts != nil && !accounts.Exists(p.RequiredAccountID) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, p.RequiredAccountID)
	}
	for _, id := range p.AllowedUserIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("policy allowed user IDs cannot contain empty entries")
		}
	}
	return nil
}

// ValidateAllPolicies validates a list of policies, checking for duplicate
// IDs and validating each record.
func ValidateAllPolicies(policies []BranchPolicy, accounts AccountChecker) error {
	seen := make(map[string]bool, len(policies))
	var validationErrors []string
	for i, p := range policies {
		if seen[p.ID] {
			return fmt.Errorf("duplicate policy ID %q", p.ID)
		}
		seen[p.ID] = true
		if err := ValidatePolicy(p, accounts); err != nil {
			validationErrors = append(validationErrors,
				fmt.Sprintf("policy[%d] (%s): %v", i, p.BranchPattern, err))
		}
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("policy validation failed:\n  - %s",
			strings.Join(validationErrors, "\n  - "))
	}
	return nil
}
